package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/migration"
)

// Migrations is an in-memory migration.Repository. One mutex serialises
// every read-modify-write, which gives the atomicity the contract demands.
type Migrations struct {
	mu         sync.Mutex
	migrations map[string]*migration.DataMigration
	order      []string
	batches    map[string]*migration.DataMigrationBatch
}

func NewMigrations() *Migrations {
	return &Migrations{
		migrations: make(map[string]*migration.DataMigration),
		batches:    make(map[string]*migration.DataMigrationBatch),
	}
}

var _ migration.Repository = (*Migrations)(nil)

func (s *Migrations) Create(_ context.Context, m *migration.DataMigration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.migrations[m.ID]; ok {
		return apperr.New(apperr.InvalidInput, "migration %s already exists", m.ID)
	}
	c := *m
	s.migrations[m.ID] = &c
	s.order = append(s.order, m.ID)
	return nil
}

func (s *Migrations) Get(_ context.Context, id string) (*migration.DataMigration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.migrations[id]
	if !ok {
		return nil, notFound(id)
	}
	c := *m
	return &c, nil
}

func (s *Migrations) List(_ context.Context) ([]migration.DataMigration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]migration.DataMigration, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.migrations[id])
	}
	return out, nil
}

func (s *Migrations) HasCompleted(_ context.Context, resourceType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.migrations {
		if m.Status == migration.StatusCompleted && m.Includes(resourceType) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Migrations) StartBatch(_ context.Context, b *migration.DataMigrationBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.migrations[b.MigrationID]
	if !ok {
		return notFound(b.MigrationID)
	}
	if !migration.CanTransition(m.Status, migration.StatusInProgress) {
		return apperr.New(apperr.InvalidTransition, "migration %s is %s, cannot start a batch", m.ID, m.Status)
	}
	if m.Status == migration.StatusPending {
		m.Status = migration.StatusInProgress
		started := time.Now().UTC()
		if b.StartedAt != nil {
			started = *b.StartedAt
		}
		m.StartedAt = &started
	}
	m.LastBatchNumber++
	b.BatchNumber = m.LastBatchNumber
	c := *b
	s.batches[b.ID] = &c
	return nil
}

func (s *Migrations) FinishBatch(_ context.Context, batchID string, res migration.BatchResult) (*migration.DataMigrationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "batch %s not found", batchID)
	}
	if b.Status != migration.BatchInProgress {
		return nil, apperr.New(apperr.InvalidTransition, "batch %s is already %s", batchID, b.Status)
	}
	b.Status = res.Status
	b.ItemsReceived = res.Received
	b.ItemsStored = res.Stored
	b.APIResponse = res.Response
	at := res.CompletedAt
	b.CompletedAt = &at

	if m, ok := s.migrations[b.MigrationID]; ok && m.Status == migration.StatusInProgress {
		m.ProcessedItems += res.Received
		m.SuccessfulItems += res.Stored
		m.FailedItems += res.Failed
	}
	c := *b
	return &c, nil
}

func (s *Migrations) Batches(_ context.Context, migrationID string) ([]migration.DataMigrationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []migration.DataMigrationBatch
	for _, b := range s.batches {
		if b.MigrationID == migrationID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchNumber < out[j].BatchNumber })
	return out, nil
}

func (s *Migrations) SetTotal(_ context.Context, id string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.migrations[id]
	if !ok {
		return notFound(id)
	}
	if m.Status.Terminal() {
		return apperr.New(apperr.InvalidTransition, "migration %s is %s", id, m.Status)
	}
	if total > m.TotalItems {
		m.TotalItems = total
	}
	return nil
}

func (s *Migrations) Finish(_ context.Context, id string, to migration.Status, errMsg, summary *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.migrations[id]
	if !ok {
		return notFound(id)
	}
	if !to.Terminal() || !migration.CanTransition(m.Status, to) {
		return apperr.New(apperr.InvalidTransition, "migration %s cannot move from %s to %s", id, m.Status, to)
	}
	m.Status = to
	m.ErrorMessage = errMsg
	m.Summary = summary
	m.CompletedAt = &at
	return nil
}

func notFound(id string) error {
	return apperr.New(apperr.NotFound, "migration %s not found", id)
}
