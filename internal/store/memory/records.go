// Package memory provides mutex-guarded in-process stores used by tests
// and dry runs.
package memory

import (
	"context"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/pkg/utils"
)

const idField = "_id"

// Records is an in-memory store.Records.
type Records struct {
	mu     sync.RWMutex
	tables map[string][]store.Row
}

func NewRecords() *Records {
	return &Records{tables: make(map[string][]store.Row)}
}

var _ store.Records = (*Records)(nil)

func (r *Records) Count(_ context.Context, table string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.tables[table])), nil
}

func (r *Records) CountWhere(_ context.Context, table string, match store.Row) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, row := range r.tables[table] {
		if matches(row, match) {
			n++
		}
	}
	return n, nil
}

func (r *Records) Exists(_ context.Context, table, field string, value interface{}) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(table, field, value) >= 0, nil
}

func (r *Records) Insert(_ context.Context, table string, row store.Row) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(table, row), nil
}

func (r *Records) InsertIfAbsent(_ context.Context, table, keyField string, row store.Row) (bool, error) {
	key, ok := row[keyField]
	if !ok || key == nil {
		return false, apperr.New(apperr.InvalidInput, "row has no %s", keyField)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(table, keyField, key) >= 0 {
		return false, nil
	}
	r.insertLocked(table, row)
	return true, nil
}

func (r *Records) Upsert(_ context.Context, table, keyField string, rows []store.Row, insertOnly ...string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keep := make(map[string]bool, len(insertOnly))
	for _, f := range insertOnly {
		keep[f] = true
	}
	written := 0
	for _, row := range rows {
		key, ok := row[keyField]
		if !ok || key == nil {
			continue
		}
		if i := r.indexOf(table, keyField, key); i >= 0 {
			existing := r.tables[table][i]
			for k, v := range row {
				if !keep[k] {
					existing[k] = v
				}
			}
		} else {
			r.insertLocked(table, row)
		}
		written++
	}
	return written, nil
}

func (r *Records) Update(_ context.Context, table, keyField string, key interface{}, set store.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(table, keyField, key)
	if i < 0 {
		return apperr.New(apperr.NotFound, "%s: no row with %s=%v", table, keyField, key)
	}
	for k, v := range set {
		r.tables[table][i][k] = v
	}
	return nil
}

func (r *Records) Each(ctx context.Context, table string, fn func(store.Row) error) error {
	rows, err := r.All(ctx, table)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (r *Records) All(_ context.Context, table string) ([]store.Row, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]store.Row, len(r.tables[table]))
	for i, row := range r.tables[table] {
		out[i] = copyRow(row)
	}
	return out, nil
}

func (r *Records) Sample(_ context.Context, table string, match store.Row, n int) ([]store.Row, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var rows []store.Row
	for _, row := range r.tables[table] {
		if matches(row, match) {
			rows = append(rows, row)
		}
	}
	if n > len(rows) {
		n = len(rows)
	}
	if n <= 0 {
		return []store.Row{}, nil
	}
	out := make([]store.Row, 0, n)
	for _, i := range rand.Perm(len(rows))[:n] {
		out = append(out, copyRow(rows[i]))
	}
	return out, nil
}

func (r *Records) insertLocked(table string, row store.Row) string {
	c := copyRow(row)
	id, ok := c[idField]
	if !ok || id == nil {
		id = uuid.NewString()
		c[idField] = id
	}
	r.tables[table] = append(r.tables[table], c)
	return utils.ToString(id)
}

func (r *Records) indexOf(table, field string, value interface{}) int {
	for i, row := range r.tables[table] {
		if sameValue(row[field], value) {
			return i
		}
	}
	return -1
}

func matches(row, match store.Row) bool {
	for k, v := range match {
		if !sameValue(row[k], v) {
			return false
		}
	}
	return true
}

func sameValue(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return utils.ToString(a) == utils.ToString(b)
}

func copyRow(row store.Row) store.Row {
	c := make(store.Row, len(row))
	for k, v := range row {
		c[k] = v
	}
	return c
}
