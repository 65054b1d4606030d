package etl

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/BartekS5/casemigrate/internal/filter"
	"github.com/BartekS5/casemigrate/internal/metrics"
	"github.com/BartekS5/casemigrate/internal/migration"
	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/pkg/logger"
	"github.com/BartekS5/casemigrate/pkg/utils"
)

const totalCountField = "TotalCount"

// ResourceSummary counts what one resource type contributed to a run.
type ResourceSummary struct {
	Pages    int `json:"pages"`
	Received int `json:"received"`
	Stored   int `json:"stored"`
	Failed   int `json:"failed"`
}

// Summary is stored as JSON text on the finished migration.
type Summary struct {
	Resources map[string]*ResourceSummary `json:"resources"`
	Skipped   []string                    `json:"skipped"`
	DryRun    bool                        `json:"dry_run"`
}

func (s *Summary) JSON() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(data)
}

type Pipeline struct {
	Tracker     *migration.Tracker
	Registry    *resource.Registry
	Extractor   Extractor
	Loader      Loader
	Transformer *Transformer
	Validator   *Validator
	Metrics     *metrics.Metrics
	DryRun      bool
	// MaxPages stops each resource after that many pages; 0 means no limit.
	MaxPages int
}

// NewEnhancedPipeline creates a pipeline with dry-run support.
func NewEnhancedPipeline(tracker *migration.Tracker, registry *resource.Registry, ext Extractor, loader Loader, m *metrics.Metrics, dryRun bool) *Pipeline {
	return &Pipeline{
		Tracker:     tracker,
		Registry:    registry,
		Extractor:   ext,
		Loader:      loader,
		Transformer: NewTransformer(),
		Validator:   NewValidator(),
		Metrics:     m,
		DryRun:      dryRun,
	}
}

func NewPipeline(tracker *migration.Tracker, registry *resource.Registry, ext Extractor, loader Loader, m *metrics.Metrics) *Pipeline {
	return NewEnhancedPipeline(tracker, registry, ext, loader, m, false)
}

// Run executes a PENDING migration page by page, one resource type at a
// time in the order stored on the migration. A resource that is not
// migratable when its turn comes is skipped. Any fetch or store error
// fails the migration; cancelling ctx cancels it.
func (p *Pipeline) Run(ctx context.Context, migrationID string) (*Summary, error) {
	m, err := p.Tracker.Get(ctx, migrationID)
	if err != nil {
		return nil, err
	}
	filters, err := filter.FromMap(m.Filters)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Resources: map[string]*ResourceSummary{}, Skipped: []string{}, DryRun: p.DryRun}
	logger.Infof("Starting migration %s (%s). Batch Size: %d, DryRun: %v", m.ID, m.Name, m.BatchSize, p.DryRun)
	startTime := time.Now()
	total := 0

	for _, name := range m.ResourceTypes {
		rt, err := resource.Resolve(name)
		if err != nil {
			return summary, p.abort(ctx, m.ID, err, summary)
		}
		ok, err := p.Registry.IsMigratable(ctx, rt)
		if err != nil {
			return summary, p.abort(ctx, m.ID, err, summary)
		}
		if !ok {
			logger.Warnf("Skipping %s: not migratable yet", rt)
			summary.Skipped = append(summary.Skipped, rt.Value())
			continue
		}

		rs := &ResourceSummary{}
		summary.Resources[rt.Value()] = rs
		if err := p.runResource(ctx, m, rt, filters, rs, &total); err != nil {
			return summary, p.abort(ctx, m.ID, err, summary)
		}

		rate := 0.0
		if d := time.Since(startTime); d.Seconds() > 0 {
			rate = float64(rs.Received) / d.Seconds()
		}
		logger.Infof("%s done. Received: %d, Stored: %d, Failed: %d. Rate: %.2f docs/sec", rt, rs.Received, rs.Stored, rs.Failed, rate)
	}

	if err := p.Tracker.Complete(ctx, m.ID, summary.JSON()); err != nil {
		return summary, err
	}
	logger.Infof("Migration %s finished successfully.", m.ID)
	return summary, nil
}

func (p *Pipeline) runResource(ctx context.Context, m *migration.DataMigration, rt resource.Type, filters *filter.Filters, rs *ResourceSummary, total *int) error {
	pageIndex := filters.Int(filter.PageIndex, 1)
	pageSize := filters.Int(filter.PageSize, m.BatchSize)
	if pageSize <= 0 {
		pageSize = m.BatchSize
	}

	for page := 0; p.MaxPages <= 0 || page < p.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := p.Tracker.StartBatch(ctx, m.ID, rt, pageIndex, pageSize, filters)
		if err != nil {
			return err
		}

		// 1. Extract
		data, err := p.Extractor.Extract(ctx, rt, filters, pageIndex, pageSize)
		if err != nil {
			p.failBatch(batch, rt, 0, err, nil)
			return errors.Wrapf(err, "extracting %s page %d", rt, pageIndex)
		}
		received := len(data.Items)
		if page == 0 {
			if n, err := utils.ConvertToInt(data.Summary[totalCountField]); err == nil && n > 0 {
				*total += n
				if err := p.Tracker.SetTotal(ctx, m.ID, *total); err != nil {
					logger.Warnf("Could not record total for %s: %v", m.ID, err)
				}
			}
		}

		// 2. Transform and validate
		rows := make([]store.Row, 0, received)
		failed := 0
		for _, item := range data.Items {
			row := p.Transformer.Transform(rt, batch.ID, item)
			if err := p.Validator.Validate(rt, row); err != nil {
				logger.Errorf("Skipping row: %v", err)
				failed++
				continue
			}
			rows = append(rows, row)
		}

		// 3. Load (skip if DryRun)
		stored := 0
		if !p.DryRun {
			stored, err = p.Loader.Load(ctx, rt, rows)
			if err != nil {
				p.failBatch(batch, rt, received, err, data.Summary)
				return errors.Wrapf(err, "loading %s page %d", rt, pageIndex)
			}
		} else {
			logger.Infof("[DRY RUN] Would load %d %s records", len(rows), rt)
		}

		// 4. Checkpoint & stats
		if _, err := p.Tracker.CompleteBatch(ctx, batch.ID, received, stored, failed, data.Summary); err != nil {
			return err
		}
		p.Metrics.ObserveBatch(rt.Value(), string(migration.BatchCompleted), received, stored)
		rs.Pages++
		rs.Received += received
		rs.Stored += stored
		rs.Failed += failed
		logger.Infof("Batch %d done: %s page %d, received %d, stored %d", batch.BatchNumber, rt, pageIndex, received, stored)

		if received < pageSize {
			return nil
		}
		pageIndex++
	}
	logger.Infof("Reached page limit of %d for %s", p.MaxPages, rt)
	return nil
}

// failBatch closes a batch after an error. It uses a fresh context so a
// cancelled run still records the outcome.
func (p *Pipeline) failBatch(batch *migration.DataMigrationBatch, rt resource.Type, received int, cause error, response map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := p.Tracker.FailBatch(ctx, batch.ID, received, cause, response); err != nil {
		logger.Errorf("Could not mark batch %s failed: %v", batch.ID, err)
	}
	p.Metrics.ObserveBatch(rt.Value(), string(migration.BatchFailed), received, 0)
}

func (p *Pipeline) abort(ctx context.Context, id string, cause error, summary *Summary) error {
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if ctx.Err() != nil {
		logger.Warnf("Migration %s cancelled: %v", id, cause)
		err = p.Tracker.Cancel(finishCtx, id)
	} else {
		logger.Errorf("Migration %s failed: %v", id, cause)
		err = p.Tracker.Fail(finishCtx, id, cause, summary.JSON())
	}
	if err != nil {
		logger.Errorf("Could not close migration %s: %v", id, err)
	}
	return cause
}
