package storage

import (
	"context"
	"fmt"
	"strings"

	"repowiki/internal/config"
)

// Open builds the configured backend, fronted by an in-memory LRU when
// cfg.MemoryEntries > 0.
func Open(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	var origin Store
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "sqlite":
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		origin = s
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres cache: %w", err)
		}
		origin = s
	case "s3":
		s, err := NewS3Store(S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 cache: %w", err)
		}
		origin = s
	case "none", "":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}

	if cfg.MemoryEntries <= 0 {
		return origin, nil
	}
	return NewCachedStore(origin, CacheConfig{MaxEntries: cfg.MemoryEntries, TTL: cfg.MemoryTTL}), nil
}
