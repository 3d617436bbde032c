package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"repowiki/internal/wiki"
)

// Store persists analysis results keyed by wiki.CacheKey.
type Store interface {
	// Get returns the record for key, or nil and no error when absent.
	Get(ctx context.Context, key string) (*wiki.AnalyzeCacheRecord, error)

	// Put stores rec under key. Records are immutable: putting an existing key is a no-op.
	Put(ctx context.Context, key string, rec *wiki.AnalyzeCacheRecord) error

	Close() error
}

// NopStore never hits and discards writes.
type NopStore struct{}

func (NopStore) Get(context.Context, string) (*wiki.AnalyzeCacheRecord, error) { return nil, nil }
func (NopStore) Put(context.Context, string, *wiki.AnalyzeCacheRecord) error   { return nil }
func (NopStore) Close() error                                                  { return nil }

// Persistent reports whether s keeps records, that is, it is neither nil nor
// a NopStore.
func Persistent(s Store) bool {
	switch s.(type) {
	case nil, NopStore, *NopStore:
		return false
	}
	return true
}

func encodeResult(rec *wiki.AnalyzeCacheRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("record is nil")
	}
	return json.Marshal(rec.Result)
}

func decodeRecord(key, owner, repo, sha string, createdAt time.Time, result []byte) (*wiki.AnalyzeCacheRecord, error) {
	rec := &wiki.AnalyzeCacheRecord{
		CacheKey:  key,
		Owner:     owner,
		Repo:      repo,
		HeadSHA:   sha,
		CreatedAt: createdAt.UTC(),
	}
	if err := json.Unmarshal(result, &rec.Result); err != nil {
		return nil, fmt.Errorf("decode cached result %s: %w", key, err)
	}
	return rec, nil
}
