package etl

import (
	"context"

	"github.com/BartekS5/casemigrate/internal/api"
	"github.com/BartekS5/casemigrate/internal/filter"
	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/store"
)

// Extractor pulls one page of a resource from the source system.
type Extractor interface {
	Extract(ctx context.Context, rt resource.Type, f *filter.Filters, pageIndex, pageSize int) (*api.Page, error)
}

// Loader writes transformed rows of a resource and reports how many were stored.
type Loader interface {
	Load(ctx context.Context, rt resource.Type, rows []store.Row) (int, error)
}
