package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"repowiki/internal/wiki"
)

// sqlStore is the database/sql implementation shared by the SQLite and
// Postgres backends; only the DDL and placeholders differ.
type sqlStore struct {
	db     *sql.DB
	getSQL string
	putSQL string
}

func (s *sqlStore) Get(ctx context.Context, key string) (*wiki.AnalyzeCacheRecord, error) {
	var (
		owner, repo, sha string
		createdAt        time.Time
		result           []byte
	)
	err := s.db.QueryRowContext(ctx, s.getSQL, key).Scan(&owner, &repo, &sha, &createdAt, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache record %s: %w", key, err)
	}
	return decodeRecord(key, owner, repo, sha, createdAt, result)
}

func (s *sqlStore) Put(ctx context.Context, key string, rec *wiki.AnalyzeCacheRecord) error {
	result, err := encodeResult(rec)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, s.putSQL, key, rec.Owner, rec.Repo, rec.HeadSHA, createdAt.UTC(), string(result)); err != nil {
		return fmt.Errorf("failed to write cache record %s: %w", key, err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) initSchema(ctx context.Context, queries []string) error {
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
