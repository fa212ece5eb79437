package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cache"
)

const (
	controlCacheIDPrefix   = "control:id:"
	controlCacheSlugPrefix = "control:slug:"
	controlCacheHashPrefix = "control:hash:"
)

// CachedControlStore decorates any ControlStore with TTL read caching.
// Reads are cached by id, slug and API-key hash; writes invalidate the
// affected entries both before and after the underlying write so a crash
// mid-write cannot pin a stale entry for longer than the TTL.
type CachedControlStore struct {
	inner ControlStore
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedControlStore wraps inner. ttl <= 0 falls back to 5 minutes.
func NewCachedControlStore(inner ControlStore, c cache.Cache, ttl time.Duration) *CachedControlStore {
	if inner == nil {
		panic("cached control store requires inner store")
	}
	if c == nil {
		panic("cached control store requires cache")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedControlStore{inner: inner, cache: c, ttl: ttl}
}

func (s *CachedControlStore) Create(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	s.invalidate(ctx, rec)
	created, err := s.inner.Create(ctx, rec)
	if err != nil {
		return TenantRecord{}, err
	}
	s.invalidate(ctx, created)
	return created, nil
}

func (s *CachedControlStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	key := controlCacheIDPrefix + id.String()
	if rec, ok := s.cached(ctx, key); ok {
		return rec, nil
	}
	rec, err := s.inner.Get(ctx, id)
	if err != nil {
		return TenantRecord{}, err
	}
	s.store(ctx, key, rec)
	return rec, nil
}

func (s *CachedControlStore) GetBySlug(ctx context.Context, slug string) (TenantRecord, error) {
	key := controlCacheSlugPrefix + slug
	if rec, ok := s.cached(ctx, key); ok {
		return rec, nil
	}
	rec, err := s.inner.GetBySlug(ctx, slug)
	if err != nil {
		return TenantRecord{}, err
	}
	s.store(ctx, key, rec)
	return rec, nil
}

func (s *CachedControlStore) GetByAPIKeyHash(ctx context.Context, hash string) (TenantRecord, error) {
	key := controlCacheHashPrefix + hash
	if rec, ok := s.cached(ctx, key); ok {
		return rec, nil
	}
	rec, err := s.inner.GetByAPIKeyHash(ctx, hash)
	if err != nil {
		return TenantRecord{}, err
	}
	s.store(ctx, key, rec)
	return rec, nil
}

func (s *CachedControlStore) UpdateStatus(ctx context.Context, id uuid.UUID, status TenantStatus) (TenantRecord, error) {
	if current, err := s.inner.Get(ctx, id); err == nil {
		s.invalidate(ctx, current)
	}
	updated, err := s.inner.UpdateStatus(ctx, id, status)
	if err != nil {
		return TenantRecord{}, err
	}
	s.invalidate(ctx, updated)
	return updated, nil
}

func (s *CachedControlStore) Delete(ctx context.Context, id uuid.UUID) error {
	if current, err := s.inner.Get(ctx, id); err == nil {
		s.invalidate(ctx, current)
	}
	if err := s.inner.Delete(ctx, id); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, controlCacheIDPrefix+id.String())
	return nil
}

func (s *CachedControlStore) List(ctx context.Context) ([]TenantRecord, error) {
	return s.inner.List(ctx)
}

func (s *CachedControlStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]TenantRecord, error) {
	return s.inner.ListPendingOlderThan(ctx, cutoff)
}

func (s *CachedControlStore) cached(ctx context.Context, key string) (TenantRecord, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		// A broken cache degrades to a miss, never to a failed read.
		return TenantRecord{}, false
	}
	var rec TenantRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		_ = s.cache.Delete(ctx, key)
		return TenantRecord{}, false
	}
	return rec, true
}

func (s *CachedControlStore) store(ctx context.Context, key string, rec TenantRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, string(raw), s.ttl)
}

func (s *CachedControlStore) invalidate(ctx context.Context, rec TenantRecord) {
	_ = s.cache.Delete(ctx, controlCacheIDPrefix+rec.TenantID.String())
	if rec.Slug != "" {
		_ = s.cache.Delete(ctx, controlCacheSlugPrefix+rec.Slug)
	}
	if rec.APIKeyHash != nil {
		_ = s.cache.Delete(ctx, controlCacheHashPrefix+*rec.APIKeyHash)
	}
}

var _ ControlStore = (*CachedControlStore)(nil)
