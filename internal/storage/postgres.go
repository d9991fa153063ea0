// Package storage provides Postgres-backed persistence for listing records
// and blob upload of dump artifacts.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ria-tools/riawatch/internal/scraper"
)

// StoreConfig controls the Postgres connection pool.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbConn is the pool surface the store needs; pgxpool.Pool satisfies it in
// production, pgxmock in tests.
type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// Store writes listing rows into Postgres. Deduplication relies entirely on
// the url uniqueness constraint, so it holds under concurrent workers.
type Store struct {
	pool dbConn
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cars (
	id             BIGSERIAL PRIMARY KEY,
	url            TEXT NOT NULL UNIQUE,
	title          TEXT NOT NULL,
	price_usd      BIGINT,
	odometer       BIGINT,
	username       TEXT,
	phone_number   TEXT,
	image_url      TEXT,
	images_count   BIGINT,
	car_number     TEXT,
	car_vin        TEXT,
	datetime_found TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const insertSQL = `
INSERT INTO cars (
	url, title, price_usd, odometer, username, phone_number,
	image_url, images_count, car_number, car_vin
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (url) DO NOTHING`

// New connects a pooled Store and verifies the connection. A failure here is
// fatal at boot: the process must not start without a reachable database.
func New(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithConn constructs a Store from an existing connection surface,
// primarily for testing.
func NewWithConn(conn dbConn) (*Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	return &Store{pool: conn}, nil
}

// EnsureSchema creates the cars table when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure cars schema: %w", err)
	}
	return nil
}

// Insert persists a record if its URL is unseen. It returns Inserted for a
// fresh row and SkippedDuplicate when the uniqueness constraint absorbed the
// insert; every other failure is a per-record persist error. datetime_found
// is assigned here by the database, not carried from extraction.
func (s *Store) Insert(ctx context.Context, rec scraper.ListingRecord) (scraper.Outcome, error) {
	tag, err := s.pool.Exec(ctx, insertSQL,
		rec.URL,
		rec.Title,
		rec.PriceUSD,
		rec.Odometer,
		rec.Username,
		rec.PhoneNumber,
		rec.ImageURL,
		rec.ImagesCount,
		rec.CarNumber,
		rec.CarVIN,
	)
	if err != nil {
		return 0, fmt.Errorf("insert listing %s: %w", rec.URL, err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.SkippedDuplicate, nil
	}
	return scraper.Inserted, nil
}

// Ping verifies database reachability, used by the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
