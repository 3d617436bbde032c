package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{sqlStore{
		db: db,
		getSQL: `SELECT owner, repo, head_sha, created_at, result
			FROM analyze_cache WHERE cache_key = ?`,
		putSQL: `INSERT INTO analyze_cache (cache_key, owner, repo, head_sha, created_at, result)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(cache_key) DO NOTHING`,
	}}
	if err := s.initSchema(context.Background(), []string{
		`CREATE TABLE IF NOT EXISTS analyze_cache (
			cache_key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			head_sha TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			result JSON NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analyze_cache_repo ON analyze_cache(owner, repo);`,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}
