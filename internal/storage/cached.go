package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"repowiki/internal/wiki"
)

type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 128,
		TTL:        30 * time.Minute,
	}
}

type MetricsSnapshot struct {
	Hits           uint64
	Misses         uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type cacheMetrics struct {
	hits           atomic.Uint64
	misses         atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

// CachedStore keeps recently used records in an expiring in-memory LRU in
// front of a durable origin. Misses on the origin are not cached.
type CachedStore struct {
	origin  Store
	cache   *expirable.LRU[string, *wiki.AnalyzeCacheRecord]
	metrics cacheMetrics

	// OnLookup, when set, is told whether each Get was served from memory.
	OnLookup func(hit bool)
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &CachedStore{
		origin: origin,
		cache:  expirable.NewLRU[string, *wiki.AnalyzeCacheRecord](cfg.MaxEntries, nil, cfg.TTL),
	}
}

func (s *CachedStore) Get(ctx context.Context, key string) (*wiki.AnalyzeCacheRecord, error) {
	if rec, ok := s.cache.Get(key); ok {
		s.metrics.hits.Add(1)
		s.observe(true)
		return copyRecord(rec), nil
	}
	s.metrics.misses.Add(1)
	s.observe(false)
	s.metrics.originReads.Add(1)

	rec, err := s.origin.Get(ctx, key)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	s.cache.Add(key, copyRecord(rec))
	return rec, nil
}

func (s *CachedStore) Put(ctx context.Context, key string, rec *wiki.AnalyzeCacheRecord) error {
	s.metrics.originWrites.Add(1)
	if err := s.origin.Put(ctx, key, rec); err != nil {
		s.metrics.originWriteErr.Add(1)
		return err
	}
	// Drop rather than set so the next read returns whatever the origin kept.
	s.cache.Remove(key)
	return nil
}

func (s *CachedStore) Close() error {
	s.cache.Purge()
	return s.origin.Close()
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:           s.metrics.hits.Load(),
		Misses:         s.metrics.misses.Load(),
		OriginReads:    s.metrics.originReads.Load(),
		OriginWrites:   s.metrics.originWrites.Load(),
		OriginReadErr:  s.metrics.originReadErr.Load(),
		OriginWriteErr: s.metrics.originWriteErr.Load(),
	}
}

func (s *CachedStore) observe(hit bool) {
	if s.OnLookup != nil {
		s.OnLookup(hit)
	}
}

// copyRecord shallow-copies the record and its top-level slices so callers
// cannot mutate the cached value.
func copyRecord(rec *wiki.AnalyzeCacheRecord) *wiki.AnalyzeCacheRecord {
	if rec == nil {
		return nil
	}
	out := *rec
	out.Result.Subsystems = append([]wiki.Subsystem(nil), rec.Result.Subsystems...)
	out.Result.WikiPages = append([]wiki.WikiPage(nil), rec.Result.WikiPages...)
	return &out
}
