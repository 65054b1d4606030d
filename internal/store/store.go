// Package store declares the generic keyed record store the migration core
// writes migrated rows into. Implementations live in the subpackages.
package store

import "context"

// Row is one stored record, keyed by field name.
type Row map[string]interface{}

// Records is a keyed store of rows grouped into named tables.
type Records interface {
	Count(ctx context.Context, table string) (int64, error)
	// CountWhere counts rows matching every field of match. An empty
	// match counts the whole table.
	CountWhere(ctx context.Context, table string, match Row) (int64, error)
	Exists(ctx context.Context, table, field string, value interface{}) (bool, error)
	Insert(ctx context.Context, table string, row Row) (string, error)
	// InsertIfAbsent atomically inserts row unless a row with the same
	// value in keyField exists. It reports whether a row was created.
	InsertIfAbsent(ctx context.Context, table, keyField string, row Row) (bool, error)
	// Upsert writes rows keyed on keyField and returns how many were
	// inserted or modified. Fields named in insertOnly are written when a
	// row is created and left untouched on an existing row.
	Upsert(ctx context.Context, table, keyField string, rows []Row, insertOnly ...string) (int, error)
	// Update sets fields on the row whose keyField equals key.
	Update(ctx context.Context, table, keyField string, key interface{}, set Row) error
	// Each streams every row of table to fn, stopping at the first error.
	Each(ctx context.Context, table string, fn func(Row) error) error
	All(ctx context.Context, table string) ([]Row, error)
	// Sample returns up to n rows matching match, chosen at random.
	Sample(ctx context.Context, table string, match Row, n int) ([]Row, error)
}
