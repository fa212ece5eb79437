// Package repo provides control store implementations living outside the
// platform layer: an in-memory store for tests and single-node development.
package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// MemoryControlStore is a mutex-guarded ControlStore with the same semantics
// as the Postgres implementation: slug uniqueness, legal status transitions
// and constant-structure API key matching.
type MemoryControlStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]persistence.TenantRecord
	now     func() time.Time
}

func NewMemoryControlStore() *MemoryControlStore {
	return &MemoryControlStore{
		records: make(map[uuid.UUID]persistence.TenantRecord),
		now:     time.Now,
	}
}

func (s *MemoryControlStore) Create(_ context.Context, rec persistence.TenantRecord) (persistence.TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.Slug == rec.Slug {
			return persistence.TenantRecord{}, fmt.Errorf("slug %q: %w", rec.Slug, persistence.ErrSlugConflict)
		}
	}
	if rec.TenantID == uuid.Nil {
		rec.TenantID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = persistence.StatusPending
	}
	if !rec.Status.Valid() {
		return persistence.TenantRecord{}, fmt.Errorf("invalid status %q", rec.Status)
	}
	now := s.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.records[rec.TenantID] = rec
	return rec, nil
}

func (s *MemoryControlStore) Get(_ context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return persistence.TenantRecord{}, persistence.ErrControlRecordNotFound
	}
	return rec, nil
}

func (s *MemoryControlStore) GetBySlug(_ context.Context, slug string) (persistence.TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Slug == slug {
			return rec, nil
		}
	}
	return persistence.TenantRecord{}, persistence.ErrControlRecordNotFound
}

func (s *MemoryControlStore) GetByAPIKeyHash(_ context.Context, hash string) (persistence.TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.APIKeyHash != nil && persistence.SecureCompare(*rec.APIKeyHash, hash) {
			return rec, nil
		}
	}
	return persistence.TenantRecord{}, persistence.ErrControlRecordNotFound
}

func (s *MemoryControlStore) UpdateStatus(_ context.Context, id uuid.UUID, status persistence.TenantStatus) (persistence.TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return persistence.TenantRecord{}, persistence.ErrControlRecordNotFound
	}
	if !rec.Status.CanTransition(status) {
		return persistence.TenantRecord{}, fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidStatusTransition, rec.Status, status)
	}
	rec.Status = status
	rec.UpdatedAt = s.now().UTC()
	s.records[id] = rec
	return rec, nil
}

func (s *MemoryControlStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return persistence.ErrControlRecordNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryControlStore) List(_ context.Context) ([]persistence.TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.TenantRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryControlStore) ListPendingOlderThan(_ context.Context, cutoff time.Time) ([]persistence.TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []persistence.TenantRecord
	for _, rec := range s.records {
		if rec.Status == persistence.StatusPending && rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ persistence.ControlStore = (*MemoryControlStore)(nil)
