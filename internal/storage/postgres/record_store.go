// Package postgres provides Postgres-backed pagination state and checkpoints.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
	"github.com/JakeFAU/wayback-fetcher/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "pagination_state"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// RecordStore keeps one row per domain holding its PaginationState.
type RecordStore struct {
	pool  querier
	table string
}

// Connect opens a pgx pool from cfg.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	return pool, nil
}

// NewRecordStoreWithPool constructs a store on a pool opened by Connect; the
// caller owns the pool.
func NewRecordStoreWithPool(pool querier, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the state table if it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	domain      TEXT PRIMARY KEY,
	header      JSONB NOT NULL,
	resume_key  TEXT NOT NULL,
	records     JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Load reads the state row for domain.
func (s *RecordStore) Load(ctx context.Context, domain string) (archive.PaginationState, error) {
	query := fmt.Sprintf(`SELECT domain, header, resume_key, records FROM %s WHERE domain = $1`, s.table)
	var (
		state       archive.PaginationState
		headerJSON  []byte
		recordsJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, domain).Scan(&state.Domain, &headerJSON, &state.ResumeKey, &recordsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return archive.PaginationState{}, fmt.Errorf("load %s: %w", domain, store.ErrNotFound)
		}
		return archive.PaginationState{}, fmt.Errorf("select state: %w", err)
	}
	if state.Domain != domain {
		return archive.PaginationState{}, fmt.Errorf("load %s (found %q): %w", domain, state.Domain, store.ErrDomainMismatch)
	}
	if err := json.Unmarshal(headerJSON, &state.Header); err != nil {
		return archive.PaginationState{}, fmt.Errorf("decode header: %w", err)
	}
	if err := json.Unmarshal(recordsJSON, &state.Records); err != nil {
		return archive.PaginationState{}, fmt.Errorf("decode records: %w", err)
	}
	return state, nil
}

// Save upserts the state row for state.Domain.
func (s *RecordStore) Save(ctx context.Context, state archive.PaginationState) error {
	if state.Domain == "" {
		return fmt.Errorf("state domain is required")
	}
	header := state.Header
	if header == nil {
		header = []string{}
	}
	records := state.Records
	if records == nil {
		records = []archive.IndexRecord{}
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	recordsJSON, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (domain, header, resume_key, records, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (domain) DO UPDATE SET
	header = EXCLUDED.header,
	resume_key = EXCLUDED.resume_key,
	records = EXCLUDED.records,
	updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, state.Domain, headerJSON, state.ResumeKey, recordsJSON); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}
