package sqlserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/migration"
)

const migrationColumns = `id, name, resource_types, filters, status, total_items, processed_items,
	successful_items, failed_items, batch_size, last_batch_number, error_message, summary,
	started_at, completed_at, created_at`

const batchColumns = `id, migration_id, batch_number, page_index, page_size, resource_type, status,
	items_requested, items_received, items_stored, filters, api_response, started_at, completed_at`

const openStatuses = `('PENDING', 'IN_PROGRESS')`

// Migrations is a migration.Repository on SQL Server. Every read-modify-write
// is a single conditional statement or runs in a transaction holding an
// update lock on the parent row.
type Migrations struct {
	DB *sql.DB
}

func NewMigrations(db *sql.DB) *Migrations {
	return &Migrations{DB: db}
}

var _ migration.Repository = (*Migrations)(nil)

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Migrations) Create(ctx context.Context, m *migration.DataMigration) error {
	types, err := encodeJSON(m.ResourceTypes)
	if err != nil {
		return err
	}
	filters, err := encodeJSON(m.Filters)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO `+tableMigrations+` (id, name, resource_types, filters, status, batch_size, created_at)
		VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7)`,
		m.ID, m.Name, types, filters, string(m.Status), m.BatchSize, m.CreatedAt)
	return errors.Wrapf(err, "creating migration %s", m.ID)
}

func (s *Migrations) Get(ctx context.Context, id string) (*migration.DataMigration, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+migrationColumns+` FROM `+tableMigrations+` WHERE id = @p1`, id)
	m, err := scanMigration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	return m, err
}

func (s *Migrations) List(ctx context.Context) ([]migration.DataMigration, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+migrationColumns+` FROM `+tableMigrations+` ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "listing migrations")
	}
	defer rows.Close()

	out := []migration.DataMigration{}
	for rows.Next() {
		m, err := scanMigration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Migrations) HasCompleted(ctx context.Context, resourceType string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM `+tableMigrations+` m
		WHERE m.status = @p1 AND EXISTS (SELECT 1 FROM OPENJSON(m.resource_types) WHERE value = @p2)`,
		string(migration.StatusCompleted), resourceType).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "checking completed migrations")
	}
	return n > 0, nil
}

func (s *Migrations) StartBatch(ctx context.Context, b *migration.DataMigrationBatch) error {
	filters, err := encodeJSON(b.Filters)
	if err != nil {
		return err
	}
	started := time.Now().UTC()
	if b.StartedAt != nil {
		started = *b.StartedAt
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer tx.Rollback()

	var number int
	err = tx.QueryRowContext(ctx,
		`UPDATE `+tableMigrations+` WITH (ROWLOCK, UPDLOCK)
		SET last_batch_number = last_batch_number + 1,
			status = @p2,
			started_at = COALESCE(started_at, @p3)
		OUTPUT INSERTED.last_batch_number
		WHERE id = @p1 AND status IN `+openStatuses,
		b.MigrationID, string(migration.StatusInProgress), started).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return s.explainClosed(ctx, tx, b.MigrationID, "start a batch")
	}
	if err != nil {
		return errors.Wrapf(err, "numbering batch for %s", b.MigrationID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+tableBatches+` (`+batchColumns+`)
		VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, 0, 0, @p9, NULL, @p10, NULL)`,
		b.ID, b.MigrationID, number, b.PageIndex, b.PageSize, b.ResourceType, string(b.Status),
		b.ItemsRequested, filters, started)
	if err != nil {
		return errors.Wrapf(err, "inserting batch %d of %s", number, b.MigrationID)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing batch start")
	}
	b.BatchNumber = number
	b.StartedAt = &started
	return nil
}

func (s *Migrations) FinishBatch(ctx context.Context, batchID string, res migration.BatchResult) (*migration.DataMigrationBatch, error) {
	response, err := encodeJSON(res.Response)
	if err != nil {
		return nil, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "starting transaction")
	}
	defer tx.Rollback()

	var migrationID string
	err = tx.QueryRowContext(ctx,
		`UPDATE `+tableBatches+` WITH (ROWLOCK, UPDLOCK)
		SET status = @p2, items_received = @p3, items_stored = @p4, api_response = @p5, completed_at = @p6
		OUTPUT INSERTED.migration_id
		WHERE id = @p1 AND status = @p7`,
		batchID, string(res.Status), res.Received, res.Stored, response, res.CompletedAt,
		string(migration.BatchInProgress)).Scan(&migrationID)
	if errors.Is(err, sql.ErrNoRows) {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM `+tableBatches+` WHERE id = @p1`, batchID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "batch %s not found", batchID)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading batch %s", batchID)
		}
		return nil, apperr.New(apperr.InvalidTransition, "batch %s is already %s", batchID, status)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "closing batch %s", batchID)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE `+tableMigrations+`
		SET processed_items = processed_items + @p2,
			successful_items = successful_items + @p3,
			failed_items = failed_items + @p4
		WHERE id = @p1 AND status = @p5`,
		migrationID, res.Received, res.Stored, res.Failed, string(migration.StatusInProgress))
	if err != nil {
		return nil, errors.Wrapf(err, "adding batch counts to %s", migrationID)
	}

	b, err := scanBatch(tx.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM `+tableBatches+` WHERE id = @p1`, batchID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing batch result")
	}
	return b, nil
}

func (s *Migrations) Batches(ctx context.Context, migrationID string) ([]migration.DataMigrationBatch, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM `+tableBatches+` WHERE migration_id = @p1 ORDER BY batch_number`, migrationID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing batches of %s", migrationID)
	}
	defer rows.Close()

	var out []migration.DataMigrationBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Migrations) SetTotal(ctx context.Context, id string, total int) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE `+tableMigrations+`
		SET total_items = CASE WHEN @p2 > total_items THEN @p2 ELSE total_items END
		WHERE id = @p1 AND status IN `+openStatuses,
		id, total)
	if err != nil {
		return errors.Wrapf(err, "setting total of %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.explainClosed(ctx, s.DB, id, "set its total")
	}
	return nil
}

func (s *Migrations) Finish(ctx context.Context, id string, to migration.Status, errMsg, summary *string, at time.Time) error {
	if !to.Terminal() {
		return apperr.New(apperr.InvalidTransition, "migration %s cannot be finished as %s", id, to)
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE `+tableMigrations+`
		SET status = @p2, error_message = @p3, summary = @p4, completed_at = @p5
		WHERE id = @p1 AND status IN `+openStatuses,
		id, string(to), nullString(errMsg), nullString(summary), at)
	if err != nil {
		return errors.Wrapf(err, "finishing migration %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.explainClosed(ctx, s.DB, id, "move to "+string(to))
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// explainClosed turns a conditional update that matched nothing into
// NotFound or InvalidTransition.
func (s *Migrations) explainClosed(ctx context.Context, q queryer, id, action string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM `+tableMigrations+` WHERE id = @p1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(id)
	}
	if err != nil {
		return errors.Wrapf(err, "reading migration %s", id)
	}
	return apperr.New(apperr.InvalidTransition, "migration %s is %s, cannot %s", id, status, action)
}

func scanMigration(row scanner) (*migration.DataMigration, error) {
	var (
		m                    migration.DataMigration
		status               string
		types, filters       string
		errMsg, summary      sql.NullString
		startedAt, completed sql.NullTime
	)
	err := row.Scan(&m.ID, &m.Name, &types, &filters, &status, &m.TotalItems, &m.ProcessedItems,
		&m.SuccessfulItems, &m.FailedItems, &m.BatchSize, &m.LastBatchNumber, &errMsg, &summary,
		&startedAt, &completed, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Status = migration.Status(status)
	if err := decodeJSON(types, &m.ResourceTypes); err != nil {
		return nil, err
	}
	if err := decodeJSON(filters, &m.Filters); err != nil {
		return nil, err
	}
	m.ErrorMessage = stringPtr(errMsg)
	m.Summary = stringPtr(summary)
	m.StartedAt = timePtr(startedAt)
	m.CompletedAt = timePtr(completed)
	return &m, nil
}

func scanBatch(row scanner) (*migration.DataMigrationBatch, error) {
	var (
		b                    migration.DataMigrationBatch
		status, filters      string
		response             sql.NullString
		startedAt, completed sql.NullTime
	)
	err := row.Scan(&b.ID, &b.MigrationID, &b.BatchNumber, &b.PageIndex, &b.PageSize, &b.ResourceType,
		&status, &b.ItemsRequested, &b.ItemsReceived, &b.ItemsStored, &filters, &response,
		&startedAt, &completed)
	if err != nil {
		return nil, errors.Wrap(err, "scanning batch")
	}
	b.Status = migration.BatchStatus(status)
	if err := decodeJSON(filters, &b.Filters); err != nil {
		return nil, err
	}
	if response.Valid {
		if err := decodeJSON(response.String, &b.APIResponse); err != nil {
			return nil, err
		}
	}
	b.StartedAt = timePtr(startedAt)
	b.CompletedAt = timePtr(completed)
	return &b, nil
}

func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encoding json column")
	}
	return string(data), nil
}

func decodeJSON(text string, out interface{}) error {
	if text == "" {
		return nil
	}
	return errors.Wrap(json.Unmarshal([]byte(text), out), "decoding json column")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func notFound(id string) error {
	return apperr.New(apperr.NotFound, "migration %s not found", id)
}
