// Package sessions derives shallow session stubs from migrated case data.
package sessions

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/metrics"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/pkg/logger"
	"github.com/BartekS5/casemigrate/pkg/models"
	"github.com/BartekS5/casemigrate/pkg/utils"
)

// Sources in priority order.
const (
	SourceMigratedCases = models.TableCases
	SourceEnrichedCases = models.TableEnrichedCases
)

var sourcePriority = []string{SourceMigratedCases, SourceEnrichedCases}

// Stats summarises one generation pass.
type Stats struct {
	Source             string          `json:"source"`
	TotalSessionsFound int             `json:"total_sessions_found"`
	NewlyCreated       int             `json:"newly_created"`
	AlreadyExisted     int             `json:"already_existed"`
	Errors             []*apperr.Error `json:"errors"`
}

// Generator creates MigratedShallowSession rows from case rows.
type Generator struct {
	records store.Records
	metrics *metrics.Metrics
	nowFn   func() time.Time
}

func NewGenerator(records store.Records, m *metrics.Metrics) *Generator {
	return &Generator{
		records: records,
		metrics: m,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// AvailableSource returns the first non-empty source table, or "" if none.
func (g *Generator) AvailableSource(ctx context.Context) (string, error) {
	for _, table := range sourcePriority {
		n, err := g.records.Count(ctx, table)
		if err != nil {
			return "", errors.Wrapf(err, "counting %s", table)
		}
		if n > 0 {
			return table, nil
		}
	}
	return "", nil
}

func (g *Generator) CanGenerate(ctx context.Context) (bool, error) {
	src, err := g.AvailableSource(ctx)
	return src != "", err
}

// Generate inserts a shallow session for every session id found in the
// source rows that is not stored yet. Malformed rows are reported in
// Stats.Errors and do not stop the pass. Running it again on the same data
// creates nothing new.
func (g *Generator) Generate(ctx context.Context) (*Stats, error) {
	source, err := g.AvailableSource(ctx)
	if err != nil {
		return nil, err
	}
	if source == "" {
		return nil, apperr.New(apperr.NoData, "no migrated cases or enriched cases to derive sessions from")
	}

	stats := &Stats{Source: source, Errors: []*apperr.Error{}}
	logger.Infof("Generating shallow sessions from %s", source)

	rowIndex := 0
	err = g.records.Each(ctx, source, func(row store.Row) error {
		defer func() { rowIndex++ }()
		g.processRow(ctx, source, rowIndex, row, stats)
		return ctx.Err()
	})
	if err != nil {
		return stats, errors.Wrapf(err, "reading %s", source)
	}

	logger.Infof("Shallow sessions: found %d, created %d, existing %d, errors %d",
		stats.TotalSessionsFound, stats.NewlyCreated, stats.AlreadyExisted, len(stats.Errors))
	return stats, nil
}

func (g *Generator) processRow(ctx context.Context, source string, index int, row store.Row, stats *Stats) {
	caseID := rowCaseID(row)
	rowErr := func(cause error, msg string) {
		e := apperr.Wrap(apperr.PartialRow, cause, "%s row %d: %s", source, index, msg).
			WithDetail("source", source).
			WithDetail("row", index).
			WithDetail("case_id", caseID)
		if id, ok := row["_id"]; ok {
			e.WithDetail("row_id", utils.ToString(id))
		}
		logger.Warnf("%v", e)
		stats.Errors = append(stats.Errors, e)
	}

	ids, err := ExtractSessionIDs(row[models.FieldSessions])
	if err != nil {
		rowErr(err, "cannot read sessions")
		return
	}
	if len(ids) == 0 {
		return
	}
	if caseID == "" {
		rowErr(nil, "row has sessions but no case_id")
		return
	}

	for _, id := range ids {
		stats.TotalSessionsFound++
		session := models.ShallowSession{
			SessionID: id,
			CaseID:    caseID,
			Source:    source,
			CreatedAt: g.nowFn(),
		}
		created, err := g.records.InsertIfAbsent(ctx, models.TableShallowSessions, models.FieldSessionID, session.Row())
		if err != nil {
			rowErr(err, "storing session "+id)
			continue
		}
		if created {
			stats.NewlyCreated++
			g.metrics.ObserveSession("newly_created")
		} else {
			stats.AlreadyExisted++
			g.metrics.ObserveSession("already_existed")
		}
	}
}

func rowCaseID(row store.Row) string {
	for _, k := range []string{models.FieldCaseID, "CaseId"} {
		if v, ok := row[k]; ok && v != nil {
			return utils.ToString(v)
		}
	}
	return ""
}
