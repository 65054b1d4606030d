package migration

import (
	"context"
	"time"
)

// Repository persists migrations and batches. Implementations must apply
// StartBatch, FinishBatch and Finish atomically against concurrent callers:
// batch numbers are never reused and counter increments are never lost.
type Repository interface {
	Create(ctx context.Context, m *DataMigration) error
	Get(ctx context.Context, id string) (*DataMigration, error)
	List(ctx context.Context) ([]DataMigration, error)
	// HasCompleted reports whether a COMPLETED migration targeted resourceType.
	HasCompleted(ctx context.Context, resourceType string) (bool, error)
	// StartBatch assigns b.BatchNumber, stores b and moves a PENDING parent
	// to IN_PROGRESS. It fails if the parent is terminal.
	StartBatch(ctx context.Context, b *DataMigrationBatch) error
	// FinishBatch closes an IN_PROGRESS batch and adds its counts to the
	// parent while the parent is IN_PROGRESS.
	FinishBatch(ctx context.Context, batchID string, res BatchResult) (*DataMigrationBatch, error)
	Batches(ctx context.Context, migrationID string) ([]DataMigrationBatch, error)
	// SetTotal raises total_items; lower values are ignored.
	SetTotal(ctx context.Context, id string, total int) error
	// Finish moves a non-terminal migration to a terminal status.
	Finish(ctx context.Context, id string, to Status, errMsg, summary *string, at time.Time) error
}
