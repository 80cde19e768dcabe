package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/gramo/internal/core/domain"
	"github.com/vietddude/gramo/internal/infra/storage"
)

type cachedResult struct {
	result    *domain.PipelineResult
	expiresAt time.Time
}

type MemoryStorage struct {
	analyses map[string]*domain.AnalysisRecord
	results  map[string]cachedResult
	ttl      time.Duration
	now      func() time.Time
	swept    time.Time
	mu       sync.RWMutex
}

// NewMemoryStorage creates an in-process store. ttl bounds cached results;
// zero keeps them forever.
func NewMemoryStorage(ttl time.Duration) *MemoryStorage {
	return &MemoryStorage{
		analyses: make(map[string]*domain.AnalysisRecord),
		results:  make(map[string]cachedResult),
		ttl:      ttl,
		now:      time.Now,
	}
}

// -----------------------------------------------------------------------------
// Analysis Repository
// -----------------------------------------------------------------------------

type AnalysisRepo struct {
	store *MemoryStorage
}

func NewAnalysisRepo(store *MemoryStorage) *AnalysisRepo {
	return &AnalysisRepo{store: store}
}

func (r *AnalysisRepo) Save(ctx context.Context, rec *domain.AnalysisRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.analyses[rec.ID] = rec
	return nil
}

func (r *AnalysisRepo) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.analyses[id]
	if !ok {
		return nil, storage.ErrAnalysisNotFound
	}
	return rec, nil
}

func (r *AnalysisRepo) List(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.AnalysisRecord, 0, len(r.store.analyses))
	for _, rec := range r.store.analyses {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AnalysisRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for id, rec := range r.store.analyses {
		if rec.CreatedAt.Before(before) {
			delete(r.store.analyses, id)
			n++
		}
	}
	// Expired cache entries go with the same sweep.
	r.store.sweepResultsUnsafe(r.store.now())
	return n, nil
}

// sweepResultsUnsafe drops expired cache entries. Caller holds mu.
func (s *MemoryStorage) sweepResultsUnsafe(now time.Time) {
	for key, c := range s.results {
		if !c.expiresAt.IsZero() && !now.Before(c.expiresAt) {
			delete(s.results, key)
		}
	}
	s.swept = now
}

// -----------------------------------------------------------------------------
// Result Cache
// -----------------------------------------------------------------------------

type ResultCache struct {
	store *MemoryStorage
}

func NewResultCache(store *MemoryStorage) *ResultCache {
	return &ResultCache{store: store}
}

func (c *ResultCache) Get(ctx context.Context, key string) (*domain.PipelineResult, bool, error) {
	c.store.mu.RLock()
	entry, ok := c.store.results[key]
	c.store.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.store.now().Before(entry.expiresAt) {
		c.store.mu.Lock()
		delete(c.store.results, key)
		c.store.mu.Unlock()
		return nil, false, nil
	}
	return entry.result, true, nil
}

// Set stores res under key. At most once per ttl it also drops every expired
// entry, so keys that are never read again do not pile up.
func (c *ResultCache) Set(ctx context.Context, key string, res *domain.PipelineResult) error {
	now := c.store.now()
	entry := cachedResult{result: res}
	if c.store.ttl > 0 {
		entry.expiresAt = now.Add(c.store.ttl)
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if c.store.ttl > 0 && now.Sub(c.store.swept) >= c.store.ttl {
		c.store.sweepResultsUnsafe(now)
	}
	c.store.results[key] = entry
	return nil
}
