package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/casemigrate/internal/api"
	"github.com/BartekS5/casemigrate/internal/filter"
	"github.com/BartekS5/casemigrate/internal/metrics"
	"github.com/BartekS5/casemigrate/internal/migration"
	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/internal/store/memory"
	"github.com/BartekS5/casemigrate/pkg/models"
)

type call struct {
	rt        resource.Type
	pageIndex int
	pageSize  int
}

// fakeExtractor serves fixed item lists per resource, paged 1-based.
type fakeExtractor struct {
	mu    sync.Mutex
	items map[resource.Type][]store.Row
	fail  map[resource.Type]error
	calls []call
	onGet func()
}

func (f *fakeExtractor) Extract(_ context.Context, rt resource.Type, _ *filter.Filters, pageIndex, pageSize int) (*api.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{rt, pageIndex, pageSize})
	f.mu.Unlock()
	if f.onGet != nil {
		f.onGet()
	}
	if err := f.fail[rt]; err != nil {
		return nil, err
	}
	all := f.items[rt]
	start := (pageIndex - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return &api.Page{Items: all[start:end], Summary: map[string]interface{}{"TotalCount": float64(len(all))}}, nil
}

func cases(n int) []store.Row {
	out := make([]store.Row, n)
	for i := range out {
		out[i] = store.Row{"CaseId": fmt.Sprintf("C%d", i+1), "CreatedDate": "2024-01-02T03:04:05Z"}
	}
	return out
}

type fixture struct {
	records *memory.Records
	repo    *memory.Migrations
	tracker *migration.Tracker
	metrics *metrics.Metrics
	pipe    *Pipeline
	ext     *fakeExtractor
}

func newFixture(ext *fakeExtractor) *fixture {
	records := memory.NewRecords()
	repo := memory.NewMigrations()
	tracker := migration.NewTracker(repo)
	m := metrics.New()
	registry := resource.NewRegistry(records, repo)
	return &fixture{
		records: records,
		repo:    repo,
		tracker: tracker,
		metrics: m,
		ext:     ext,
		pipe:    NewPipeline(tracker, registry, ext, NewStoreLoader(records), m),
	}
}

func (fx *fixture) create(t *testing.T, batchSize int, f *filter.Filters, types ...interface{}) *migration.DataMigration {
	t.Helper()
	m, err := fx.tracker.Create(context.Background(), migration.CreateInput{ResourceTypes: types, Filters: f, BatchSize: batchSize})
	require.NoError(t, err)
	return m
}

func TestRunPagesUntilShortPage(t *testing.T) {
	ctx := context.Background()
	ext := &fakeExtractor{items: map[resource.Type][]store.Row{resource.Case: cases(5)}}
	fx := newFixture(ext)
	m := fx.create(t, 2, nil, "case")

	summary, err := fx.pipe.Run(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, &ResourceSummary{Pages: 3, Received: 5, Stored: 5}, summary.Resources["case"])
	assert.Equal(t, []call{{resource.Case, 1, 2}, {resource.Case, 2, 2}, {resource.Case, 3, 2}}, ext.calls)

	got, err := fx.tracker.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, migration.StatusCompleted, got.Status)
	assert.Equal(t, 5, got.ProcessedItems)
	assert.Equal(t, 5, got.SuccessfulItems)
	assert.Equal(t, 5, got.TotalItems)
	require.NotNil(t, got.Summary)
	var stored Summary
	require.NoError(t, json.Unmarshal([]byte(*got.Summary), &stored))
	assert.Equal(t, 5, stored.Resources["case"].Stored)

	rows, err := fx.records.All(ctx, models.TableCases)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "PENDING", rows[0][models.FieldVerificationStatus])
	assert.Equal(t, "case", rows[0][models.FieldResourceType])
	assert.NotEmpty(t, rows[0][models.FieldBatchID])

	batches, err := fx.tracker.Batches(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, 3, batches[2].BatchNumber)
	assert.Equal(t, float64(3), testutil.ToFloat64(fx.metrics.BatchesTotal.WithLabelValues("case", "COMPLETED")))
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ext := &fakeExtractor{items: map[resource.Type][]store.Row{resource.Case: cases(3)}}
	fx := newFixture(ext)
	for i := 0; i < 2; i++ {
		m := fx.create(t, 10, nil, "case")
		_, err := fx.pipe.Run(ctx, m.ID)
		require.NoError(t, err)
	}
	n, err := fx.records.Count(ctx, models.TableCases)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRunKeepsVerificationOutcome(t *testing.T) {
	ctx := context.Background()
	ext := &fakeExtractor{items: map[resource.Type][]store.Row{resource.Case: cases(2)}}
	fx := newFixture(ext)
	first := fx.create(t, 10, nil, "case")
	_, err := fx.pipe.Run(ctx, first.ID)
	require.NoError(t, err)
	require.NoError(t, fx.records.Update(ctx, models.TableCases, models.FieldCaseID, "C1",
		store.Row{models.FieldVerificationStatus: models.VerificationVerified.Value()}))

	ext.items[resource.Case] = cases(3)
	second := fx.create(t, 10, nil, "case")
	_, err = fx.pipe.Run(ctx, second.ID)
	require.NoError(t, err)

	rows, err := fx.records.All(ctx, models.TableCases)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	byID := map[string]store.Row{}
	for _, row := range rows {
		byID[row[models.FieldCaseID].(string)] = row
	}
	assert.Equal(t, "VERIFIED", byID["C1"][models.FieldVerificationStatus])
	assert.Equal(t, "PENDING", byID["C2"][models.FieldVerificationStatus])
	assert.Equal(t, "PENDING", byID["C3"][models.FieldVerificationStatus])
	assert.Equal(t, byID["C3"][models.FieldBatchID], byID["C1"][models.FieldBatchID])
}

func TestRunHonoursPageFilters(t *testing.T) {
	ext := &fakeExtractor{items: map[resource.Type][]store.Row{resource.Client: {
		{"ClientId": "A"}, {"ClientId": "B"}, {"ClientId": "C"},
	}}}
	fx := newFixture(ext)
	f := filter.New()
	require.NoError(t, f.Set(filter.PageIndex, 2))
	require.NoError(t, f.Set(filter.PageSize, 2))
	m := fx.create(t, 50, f, "clients")

	summary, err := fx.pipe.Run(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, []call{{resource.Client, 2, 2}}, ext.calls)
	assert.Equal(t, 1, summary.Resources["client"].Stored)
}

func TestRunSkipsSessionsWithoutCases(t *testing.T) {
	ctx := context.Background()
	ext := &fakeExtractor{items: map[resource.Type][]store.Row{
		resource.Session: {{"SessionId": "S1"}},
	}}
	fx := newFixture(ext)
	m := fx.create(t, 10, nil, "session")

	summary, err := fx.pipe.Run(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"session"}, summary.Skipped)
	assert.Empty(t, summary.Resources)
	assert.Empty(t, ext.calls)

	got, err := fx.tracker.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, migration.StatusCompleted, got.Status)
}

func TestRunSessionsAfterCases(t *testing.T) {
	ctx := context.Background()
	ext := &fakeExtractor{items: map[resource.Type][]store.Row{
		resource.Case:    cases(1),
		resource.Session: {{"SessionId": "S1", "CaseId": "C1"}, {"CaseId": "C1"}},
	}}
	fx := newFixture(ext)
	m := fx.create(t, 10, nil, "session", "case")

	summary, err := fx.pipe.Run(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, summary.Skipped)
	assert.Equal(t, &ResourceSummary{Pages: 1, Received: 2, Stored: 1, Failed: 1}, summary.Resources["session"])

	got, err := fx.tracker.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailedItems)
	assert.Equal(t, 3, got.ProcessedItems)
}

func TestRunDryRunStoresNothing(t *testing.T) {
	ctx := context.Background()
	ext := &fakeExtractor{items: map[resource.Type][]store.Row{resource.Case: cases(2)}}
	fx := newFixture(ext)
	fx.pipe.DryRun = true
	m := fx.create(t, 10, nil, "case")

	summary, err := fx.pipe.Run(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.Resources["case"].Received)
	n, err := fx.records.Count(ctx, models.TableCases)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunMaxPages(t *testing.T) {
	ext := &fakeExtractor{items: map[resource.Type][]store.Row{resource.Case: cases(10)}}
	fx := newFixture(ext)
	fx.pipe.MaxPages = 2
	m := fx.create(t, 3, nil, "case")

	summary, err := fx.pipe.Run(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Resources["case"].Pages)
	assert.Len(t, ext.calls, 2)
}

func TestRunFailsOnExtractError(t *testing.T) {
	ctx := context.Background()
	ext := &fakeExtractor{fail: map[resource.Type]error{resource.Case: errors.New("api down")}}
	fx := newFixture(ext)
	m := fx.create(t, 10, nil, "case")

	_, err := fx.pipe.Run(ctx, m.ID)
	require.Error(t, err)

	got, err := fx.tracker.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, migration.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "api down")

	batches, err := fx.tracker.Batches(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, migration.BatchFailed, batches[0].Status)
	assert.Equal(t, "api down", batches[0].APIResponse["error"])
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ext := &fakeExtractor{items: map[resource.Type][]store.Row{resource.Case: cases(10)}}
	ext.onGet = cancel
	fx := newFixture(ext)
	m := fx.create(t, 2, nil, "case")

	_, err := fx.pipe.Run(ctx, m.ID)
	assert.ErrorIs(t, err, context.Canceled)

	got, err := fx.tracker.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, migration.StatusCancelled, got.Status)
}

func TestTransformerAndValidator(t *testing.T) {
	tr := NewTransformer()
	row := tr.Transform(resource.Client, "b1", store.Row{"ClientID": "X", "CreatedDate": "2024-05-06", "Notes": []interface{}{"a"}})
	assert.Equal(t, "X", row["client_id"])
	assert.Equal(t, "b1", row[models.FieldBatchID])
	assert.NotContains(t, row, models.FieldVerificationStatus)
	assert.Equal(t, []interface{}{"a"}, row["notes"])
	assert.Equal(t, 2024, row["created_date"].(interface{ Year() int }).Year())

	v := NewValidator()
	assert.NoError(t, v.Validate(resource.Client, row))
	assert.Error(t, v.Validate(resource.Case, row))
	assert.Error(t, v.Validate(resource.Client, store.Row{"client_id": ""}))
}
