package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	sqlStore
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &PostgresStore{sqlStore{
		db: db,
		getSQL: `SELECT owner, repo, head_sha, created_at, result
			FROM analyze_cache WHERE cache_key = $1`,
		putSQL: `INSERT INTO analyze_cache (cache_key, owner, repo, head_sha, created_at, result)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (cache_key) DO NOTHING`,
	}}
	if err := s.initSchema(ctx, []string{
		`CREATE TABLE IF NOT EXISTS analyze_cache (
			cache_key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			head_sha TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			result JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyze_cache_repo ON analyze_cache (owner, repo)`,
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}
