package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jsamuelsen/quotebook/internal/domain"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS quote_kv (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres stores values in the quote_kv table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects with dsn and creates the quote_kv table.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()

		return nil, fmt.Errorf("init quote_kv schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Get implements ports.KeyValueStore.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := p.pool.QueryRow(ctx, `SELECT value FROM quote_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", key, err)
	}

	return value, nil
}

// Set implements ports.KeyValueStore.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO quote_kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}

	return nil
}

// Close implements ports.KeyValueStore.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Name implements ports.HealthChecker.
func (p *Postgres) Name() string {
	return "postgres"
}

// Check implements ports.HealthChecker.
func (p *Postgres) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
