package kvstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a PostgreSQL implementation of Store. State lives in a single
// app_state table:
//
//	CREATE TABLE app_state (
//	    key        text PRIMARY KEY,
//	    value      jsonb NOT NULL,
//	    updated_at timestamptz NOT NULL DEFAULT now()
//	);
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Get returns the value stored under key.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM app_state WHERE key = $1`

	var value []byte
	err := p.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	return value, nil
}

// Put stores value under key.
func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO app_state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
	`

	_, err := p.pool.Exec(ctx, query, key, value)
	return err
}

// Delete removes key.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM app_state WHERE key = $1`, key)
	return err
}

var _ Store = (*Postgres)(nil)
