// Package migration tracks migration runs and their batches.
package migration

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/filter"
	"github.com/BartekS5/casemigrate/internal/resource"
)

const DefaultBatchSize = 100

// Tracker drives the migration and batch lifecycles on top of a Repository.
type Tracker struct {
	repo  Repository
	nowFn func() time.Time
}

func NewTracker(repo Repository) *Tracker {
	return &Tracker{repo: repo, nowFn: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source, for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.nowFn = now
	return t
}

type CreateInput struct {
	Name          string
	ResourceTypes []interface{}
	Filters       *filter.Filters
	BatchSize     int
}

// Create registers a PENDING migration with zero counters. Resource types
// are resolved and put into dependency order.
func (t *Tracker) Create(ctx context.Context, in CreateInput) (*DataMigration, error) {
	if len(in.ResourceTypes) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "a migration needs at least one resource type")
	}
	types, err := resource.Order(in.ResourceTypes)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(types))
	for i, rt := range types {
		if !rt.IsMigratable() {
			return nil, apperr.Unsupported("migration", rt.Name())
		}
		names[i] = rt.Value()
	}
	batchSize := in.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	snapshot := map[string]interface{}{}
	if in.Filters != nil {
		snapshot = in.Filters.Snapshot()
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.Join(names, "+")
	}
	m := &DataMigration{
		ID:            uuid.NewString(),
		Name:          name,
		ResourceTypes: names,
		Filters:       snapshot,
		Status:        StatusPending,
		BatchSize:     batchSize,
		CreatedAt:     t.nowFn(),
	}
	if err := t.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (t *Tracker) Get(ctx context.Context, id string) (*DataMigration, error) {
	return t.repo.Get(ctx, id)
}

func (t *Tracker) List(ctx context.Context) ([]DataMigration, error) {
	return t.repo.List(ctx)
}

func (t *Tracker) Batches(ctx context.Context, migrationID string) ([]DataMigrationBatch, error) {
	return t.repo.Batches(ctx, migrationID)
}

func (t *Tracker) SetTotal(ctx context.Context, id string, total int) error {
	if total < 0 {
		return apperr.New(apperr.InvalidInput, "total items cannot be negative")
	}
	return t.repo.SetTotal(ctx, id, total)
}

// StartBatch opens the next batch of a migration for one page.
func (t *Tracker) StartBatch(ctx context.Context, migrationID string, rt resource.Type, pageIndex, pageSize int, f *filter.Filters) (*DataMigrationBatch, error) {
	if pageSize <= 0 {
		return nil, apperr.New(apperr.InvalidInput, "page size must be positive, got %d", pageSize)
	}
	snapshot := map[string]interface{}{}
	if f != nil {
		entries, err := f.ByResource(rt)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			snapshot[e.Type.Value()] = e.Value
		}
	}
	snapshot[filter.PageIndex.Value()] = pageIndex
	snapshot[filter.PageSize.Value()] = pageSize

	now := t.nowFn()
	b := &DataMigrationBatch{
		ID:             uuid.NewString(),
		MigrationID:    migrationID,
		PageIndex:      pageIndex,
		PageSize:       pageSize,
		ResourceType:   rt.Value(),
		Status:         BatchInProgress,
		ItemsRequested: pageSize,
		Filters:        snapshot,
		StartedAt:      &now,
	}
	if err := t.repo.StartBatch(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// CompleteBatch closes a batch as COMPLETED with the given counts.
func (t *Tracker) CompleteBatch(ctx context.Context, batchID string, received, stored, failed int, response map[string]interface{}) (*DataMigrationBatch, error) {
	if received < 0 || stored < 0 || failed < 0 {
		return nil, apperr.New(apperr.InvalidInput, "batch counts cannot be negative")
	}
	if stored+failed > received {
		return nil, apperr.New(apperr.InvalidInput, "stored (%d) + failed (%d) exceeds received (%d)", stored, failed, received)
	}
	return t.repo.FinishBatch(ctx, batchID, BatchResult{
		Status:      BatchCompleted,
		Received:    received,
		Stored:      stored,
		Failed:      failed,
		Response:    response,
		CompletedAt: t.nowFn(),
	})
}

// FailBatch closes a batch as FAILED. Every received item counts as failed.
func (t *Tracker) FailBatch(ctx context.Context, batchID string, received int, cause error, response map[string]interface{}) (*DataMigrationBatch, error) {
	if response == nil {
		response = map[string]interface{}{}
	}
	if cause != nil {
		response["error"] = cause.Error()
	}
	if received < 0 {
		received = 0
	}
	return t.repo.FinishBatch(ctx, batchID, BatchResult{
		Status:      BatchFailed,
		Received:    received,
		Failed:      received,
		Response:    response,
		CompletedAt: t.nowFn(),
	})
}

func (t *Tracker) Complete(ctx context.Context, id, summary string) error {
	var s *string
	if summary != "" {
		s = &summary
	}
	return t.repo.Finish(ctx, id, StatusCompleted, nil, s, t.nowFn())
}

func (t *Tracker) Fail(ctx context.Context, id string, cause error, summary string) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	var s *string
	if summary != "" {
		s = &summary
	}
	return t.repo.Finish(ctx, id, StatusFailed, &msg, s, t.nowFn())
}

func (t *Tracker) Cancel(ctx context.Context, id string) error {
	return t.repo.Finish(ctx, id, StatusCancelled, nil, nil, t.nowFn())
}
