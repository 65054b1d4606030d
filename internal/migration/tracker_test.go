package migration_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/filter"
	"github.com/BartekS5/casemigrate/internal/migration"
	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/store/memory"
)

func newTracker() *migration.Tracker {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return migration.NewTracker(memory.NewMigrations()).WithClock(func() time.Time { return fixed })
}

func TestCreateStartsPending(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	f := filter.New()
	require.NoError(t, f.Set("createdDateFrom", "2024-01-01"))

	m, err := tr.Create(ctx, migration.CreateInput{
		ResourceTypes: []interface{}{"sessions", "cases"},
		Filters:       f,
	})
	require.NoError(t, err)
	assert.Equal(t, migration.StatusPending, m.Status)
	assert.Equal(t, []string{"case", "session"}, m.ResourceTypes)
	assert.Equal(t, "case+session", m.Name)
	assert.Equal(t, migration.DefaultBatchSize, m.BatchSize)
	assert.Equal(t, "2024-01-01", m.Filters["created_date_from"])
	assert.Zero(t, m.ProcessedItems+m.SuccessfulItems+m.FailedItems+m.TotalItems)
	assert.Nil(t, m.StartedAt)
}

func TestCreateRejectsBadTypes(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()

	_, err := tr.Create(ctx, migration.CreateInput{})
	assert.True(t, apperr.HasCode(err, apperr.InvalidInput))

	_, err = tr.Create(ctx, migration.CreateInput{ResourceTypes: []interface{}{"planets"}})
	assert.True(t, apperr.IsResolution(err))

	_, err = tr.Create(ctx, migration.CreateInput{ResourceTypes: []interface{}{resource.FullCase}})
	assert.True(t, apperr.IsUnsupported(err))
}

func TestBatchLifecycle(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	m, err := tr.Create(ctx, migration.CreateInput{Name: "nightly", ResourceTypes: []interface{}{"client"}, BatchSize: 10})
	require.NoError(t, err)

	f := filter.New()
	require.NoError(t, f.Set(filter.EndDateTo, "2024-02-01"))
	require.NoError(t, f.Set(filter.SortColumn, "Name"))

	b1, err := tr.StartBatch(ctx, m.ID, resource.Client, 1, 10, f)
	require.NoError(t, err)
	assert.Equal(t, 1, b1.BatchNumber)
	assert.Equal(t, 10, b1.ItemsRequested)
	assert.Equal(t, "Name", b1.Filters["sort_column"])
	assert.NotContains(t, b1.Filters, "end_date_to")

	got, err := tr.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, migration.StatusInProgress, got.Status)
	require.NotNil(t, got.StartedAt)

	done, err := tr.CompleteBatch(ctx, b1.ID, 10, 9, 1, map[string]interface{}{"TotalCount": 14})
	require.NoError(t, err)
	assert.Equal(t, migration.BatchCompleted, done.Status)
	assert.Equal(t, 9, done.ItemsStored)

	b2, err := tr.StartBatch(ctx, m.ID, resource.Client, 2, 10, f)
	require.NoError(t, err)
	assert.Equal(t, 2, b2.BatchNumber)
	_, err = tr.FailBatch(ctx, b2.ID, 4, errors.New("timeout"), nil)
	require.NoError(t, err)

	got, err = tr.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, got.ProcessedItems)
	assert.Equal(t, 9, got.SuccessfulItems)
	assert.Equal(t, 5, got.FailedItems)

	batches, err := tr.Batches(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, migration.BatchFailed, batches[1].Status)
	assert.Equal(t, "timeout", batches[1].APIResponse["error"])

	// a closed batch cannot be closed again
	_, err = tr.CompleteBatch(ctx, b1.ID, 1, 1, 0, nil)
	assert.True(t, apperr.HasCode(err, apperr.InvalidTransition))
}

func TestCompleteBatchValidatesCounts(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	m, err := tr.Create(ctx, migration.CreateInput{ResourceTypes: []interface{}{"client"}})
	require.NoError(t, err)
	b, err := tr.StartBatch(ctx, m.ID, resource.Client, 1, 5, nil)
	require.NoError(t, err)

	_, err = tr.CompleteBatch(ctx, b.ID, 3, 3, 1, nil)
	assert.True(t, apperr.HasCode(err, apperr.InvalidInput))
	_, err = tr.CompleteBatch(ctx, b.ID, -1, 0, 0, nil)
	assert.True(t, apperr.HasCode(err, apperr.InvalidInput))
	_, err = tr.StartBatch(ctx, m.ID, resource.Client, 1, 0, nil)
	assert.True(t, apperr.HasCode(err, apperr.InvalidInput))
}

func TestTerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	for _, finish := range []func(*migration.Tracker, string) error{
		func(tr *migration.Tracker, id string) error { return tr.Complete(ctx, id, "ok") },
		func(tr *migration.Tracker, id string) error { return tr.Fail(ctx, id, errors.New("boom"), "") },
		func(tr *migration.Tracker, id string) error { return tr.Cancel(ctx, id) },
	} {
		tr := newTracker()
		m, err := tr.Create(ctx, migration.CreateInput{ResourceTypes: []interface{}{"case"}})
		require.NoError(t, err)
		require.NoError(t, finish(tr, m.ID))

		assert.True(t, apperr.HasCode(tr.Complete(ctx, m.ID, ""), apperr.InvalidTransition))
		assert.True(t, apperr.HasCode(tr.Cancel(ctx, m.ID), apperr.InvalidTransition))
		_, err = tr.StartBatch(ctx, m.ID, resource.Case, 1, 10, nil)
		assert.True(t, apperr.HasCode(err, apperr.InvalidTransition))
		assert.True(t, apperr.HasCode(tr.SetTotal(ctx, m.ID, 5), apperr.InvalidTransition))
	}
}

func TestFailRecordsMessage(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	m, err := tr.Create(ctx, migration.CreateInput{ResourceTypes: []interface{}{"case"}})
	require.NoError(t, err)
	require.NoError(t, tr.Fail(ctx, m.ID, errors.New("api down"), `{"case":0}`))

	got, err := tr.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, migration.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "api down", *got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
}

func TestSetTotalIsMonotonic(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	m, err := tr.Create(ctx, migration.CreateInput{ResourceTypes: []interface{}{"case"}})
	require.NoError(t, err)
	require.NoError(t, tr.SetTotal(ctx, m.ID, 40))
	require.NoError(t, tr.SetTotal(ctx, m.ID, 10))
	got, _ := tr.Get(ctx, m.ID)
	assert.Equal(t, 40, got.TotalItems)
	assert.Error(t, tr.SetTotal(ctx, m.ID, -1))
}

func TestConcurrentBatchesDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	m, err := tr.Create(ctx, migration.CreateInput{ResourceTypes: []interface{}{"client"}})
	require.NoError(t, err)

	const workers = 20
	numbers := make(chan int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			b, err := tr.StartBatch(ctx, m.ID, resource.Client, page, 10, nil)
			if !assert.NoError(t, err) {
				return
			}
			numbers <- b.BatchNumber
			_, err = tr.CompleteBatch(ctx, b.ID, 10, 8, 2, nil)
			assert.NoError(t, err)
		}(i + 1)
	}
	wg.Wait()
	close(numbers)

	seen := map[int]bool{}
	for n := range numbers {
		assert.False(t, seen[n], "batch number %d reused", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)

	got, err := tr.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, workers*10, got.ProcessedItems)
	assert.Equal(t, workers*8, got.SuccessfulItems)
	assert.Equal(t, workers*2, got.FailedItems)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, migration.CanTransition(migration.StatusPending, migration.StatusInProgress))
	assert.True(t, migration.CanTransition(migration.StatusPending, migration.StatusCancelled))
	assert.True(t, migration.CanTransition(migration.StatusInProgress, migration.StatusCompleted))
	assert.False(t, migration.CanTransition(migration.StatusCompleted, migration.StatusInProgress))
	assert.False(t, migration.CanTransition(migration.StatusCancelled, migration.StatusFailed))
	assert.False(t, migration.CanTransition(migration.StatusFailed, migration.StatusFailed))
}
