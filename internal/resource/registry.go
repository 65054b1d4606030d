package resource

import (
	"context"

	"github.com/pkg/errors"

	"github.com/BartekS5/casemigrate/pkg/models"
)

// Counter reports how many rows a storage target holds.
type Counter interface {
	Count(ctx context.Context, table string) (int64, error)
}

// CompletionChecker reports whether a completed migration covered a type.
type CompletionChecker interface {
	HasCompleted(ctx context.Context, resourceType string) (bool, error)
}

// Registry answers storage-dependent questions about resource types.
// Nothing is cached: every call reads current storage state.
type Registry struct {
	counter    Counter
	migrations CompletionChecker
}

func NewRegistry(counter Counter, migrations CompletionChecker) *Registry {
	return &Registry{counter: counter, migrations: migrations}
}

// IsMigratable resolves input and reports whether it may run now.
func (r *Registry) IsMigratable(ctx context.Context, input interface{}) (bool, error) {
	t, err := Resolve(input)
	if err != nil {
		return false, err
	}
	if !t.IsMigratable() {
		return false, nil
	}
	dep, ok := t.Dependency()
	if !ok {
		return true, nil
	}
	return r.hasRows(ctx, dep)
}

// CanEnrichCases is true once a migration that included shallow cases has completed.
func (r *Registry) CanEnrichCases(ctx context.Context) (bool, error) {
	ok, err := r.migrations.HasCompleted(ctx, ShallowCase.Value())
	if err != nil {
		return false, errors.Wrap(err, "checking completed shallow case migrations")
	}
	return ok, nil
}

// CanEnrichSessions is true once any shallow session exists.
func (r *Registry) CanEnrichSessions(ctx context.Context) (bool, error) {
	n, err := r.counter.Count(ctx, models.TableShallowSessions)
	if err != nil {
		return false, errors.Wrapf(err, "counting %s", models.TableShallowSessions)
	}
	return n > 0, nil
}

// TableName resolves input and returns its storage target.
func (r *Registry) TableName(input interface{}) (string, error) {
	t, err := Resolve(input)
	if err != nil {
		return "", err
	}
	return TableName(t)
}

func (r *Registry) hasRows(ctx context.Context, t Type) (bool, error) {
	table, err := TableName(t)
	if err != nil {
		return false, err
	}
	n, err := r.counter.Count(ctx, table)
	if err != nil {
		return false, errors.Wrapf(err, "counting %s", table)
	}
	return n > 0, nil
}
