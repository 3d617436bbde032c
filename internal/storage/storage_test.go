package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repowiki/internal/config"
	"repowiki/internal/wiki"
)

func testRecord(summary string) *wiki.AnalyzeCacheRecord {
	return &wiki.AnalyzeCacheRecord{
		CacheKey:  wiki.CacheKey("Acme", "Shop", "ABC"),
		Owner:     "Acme",
		Repo:      "Shop",
		HeadSHA:   "ABC",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Result: wiki.AnalyzeResult{
			ProductSummary: summary,
			Subsystems:     []wiki.Subsystem{{ID: "checkout", Name: "Checkout"}},
			WikiPages: []wiki.WikiPage{{
				SubsystemID: "checkout",
				Markdown:    "## Overview",
				Citations:   []wiki.Citation{{Path: "a.go", StartLine: 1, EndLine: 2, URL: "u"}},
			}},
		},
	}
}

func TestSQLiteStore_RoundTripAndMiss(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	rec, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)

	want := testRecord("first")
	require.NoError(t, store.Put(ctx, want.CacheKey, want))

	got, err := store.Get(ctx, want.CacheKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Result, got.Result)
	assert.Equal(t, "ABC", got.HeadSHA)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestSQLiteStore_RecordsAreImmutable(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	first := testRecord("first")
	require.NoError(t, store.Put(ctx, first.CacheKey, first))
	require.NoError(t, store.Put(ctx, first.CacheKey, testRecord("second")))

	got, err := store.Get(ctx, first.CacheKey)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Result.ProductSummary)
}

type countingStore struct {
	Store
	gets int
}

func (c *countingStore) Get(ctx context.Context, key string) (*wiki.AnalyzeCacheRecord, error) {
	c.gets++
	return c.Store.Get(ctx, key)
}

func TestCachedStore_ServesRepeatReadsFromMemory(t *testing.T) {
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	origin := &countingStore{Store: sqlite}
	store := NewCachedStore(origin, CacheConfig{MaxEntries: 4, TTL: time.Minute})
	defer store.Close()
	ctx := context.Background()

	var lookups []bool
	store.OnLookup = func(hit bool) { lookups = append(lookups, hit) }

	rec := testRecord("first")
	require.NoError(t, store.Put(ctx, rec.CacheKey, rec))

	for i := 0; i < 3; i++ {
		got, err := store.Get(ctx, rec.CacheKey)
		require.NoError(t, err)
		require.NotNil(t, got)
		got.Result.WikiPages[0].Markdown = "mutated"
	}

	assert.Equal(t, 1, origin.gets)
	assert.Equal(t, []bool{false, true, true}, lookups)
	m := store.Metrics()
	assert.EqualValues(t, 2, m.Hits)
	assert.EqualValues(t, 1, m.Misses)

	got, err := store.Get(ctx, rec.CacheKey)
	require.NoError(t, err)
	assert.Equal(t, "## Overview", got.Result.WikiPages[0].Markdown)
}

func TestCachedStore_DoesNotCacheMisses(t *testing.T) {
	origin := &countingStore{Store: NopStore{}}
	store := NewCachedStore(origin, CacheConfig{})

	for i := 0; i < 2; i++ {
		rec, err := store.Get(context.Background(), "k")
		require.NoError(t, err)
		assert.Nil(t, rec)
	}
	assert.Equal(t, 2, origin.gets)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.CacheConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)
	assert.False(t, Persistent(s))
	assert.False(t, Persistent(nil))

	s, err = Open(ctx, config.CacheConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "c.db"), MemoryEntries: 8})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &CachedStore{}, s)
	assert.True(t, Persistent(s))

	_, err = Open(ctx, config.CacheConfig{Driver: "redis"})
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "analyses/acme__shop__abc.json", objectKey("analyses", "acme__shop__abc"))
	assert.Equal(t, "acme__shop__abc.json", objectKey("", "acme__shop__abc"))
}
