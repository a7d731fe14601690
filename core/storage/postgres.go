package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps engine state in a single kv_store table. It is the
// backend of choice when the bot runs next to an existing Postgres
// instance; the schema is managed by migrations.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an established connection. The caller owns
// migrations and connection lifecycle configuration.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM kv_store
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, expires_at)
		 VALUES ($1, $2, NULL)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = NULL`,
		key, value)
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *PostgresStore) Increment(ctx context.Context, key string) (int64, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw,
		`INSERT INTO kv_store (key, value, expires_at)
		 VALUES ($1, '1', NULL)
		 ON CONFLICT (key) DO UPDATE SET
		   value = CASE
		     WHEN kv_store.expires_at IS NOT NULL AND kv_store.expires_at <= now() THEN '1'
		     ELSE (kv_store.value::bigint + 1)::text
		   END,
		   expires_at = CASE
		     WHEN kv_store.expires_at IS NOT NULL AND kv_store.expires_at <= now() THEN NULL
		     ELSE kv_store.expires_at
		   END
		 RETURNING value`, key)
	if err != nil {
		return 0, fmt.Errorf("%w: increment %s: %v", ErrUnavailable, key, err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("increment %s: non-numeric value %q", key, raw)
	}
	return n, nil
}

func (s *PostgresStore) ExpireAfter(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE kv_store SET expires_at = now() + ($2 * interval '1 millisecond')
		 WHERE key = $1`, key, ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("%w: expire %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *PostgresStore) ScanByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.SelectContext(ctx, &keys,
		`SELECT key FROM kv_store
		 WHERE key LIKE $1 || '%' AND (expires_at IS NULL OR expires_at > now())
		 ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrUnavailable, prefix, err)
	}
	return keys, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
