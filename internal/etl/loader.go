package etl

import (
	"context"

	"github.com/BartekS5/casemigrate/internal/api"
	"github.com/BartekS5/casemigrate/internal/filter"
	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/pkg/logger"
	"github.com/BartekS5/casemigrate/pkg/models"
)

// APIExtractor reads pages through the source API client.
type APIExtractor struct {
	Client api.Client
}

func (e *APIExtractor) Extract(ctx context.Context, rt resource.Type, f *filter.Filters, pageIndex, pageSize int) (*api.Page, error) {
	return e.Client.Fetch(ctx, rt, f, pageIndex, pageSize)
}

// StoreLoader upserts rows into the resource's table keyed on its key field,
// so re-running a page never duplicates rows.
type StoreLoader struct {
	Records store.Records
}

func NewStoreLoader(records store.Records) *StoreLoader {
	return &StoreLoader{Records: records}
}

func (l *StoreLoader) Load(ctx context.Context, rt resource.Type, rows []store.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	table, err := resource.TableName(rt)
	if err != nil {
		return 0, err
	}
	n, err := l.Records.Upsert(ctx, table, rt.KeyField(), rows, models.FieldVerificationStatus)
	if err != nil {
		return 0, err
	}
	logger.Debugf("Loaded %d/%d %s rows into %s", n, len(rows), rt, table)
	return n, nil
}
