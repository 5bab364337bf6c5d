// Package postgres provides the Postgres-backed delivery audit log.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sheets-relay/internal/audit"
)

const defaultTable = "deliveries"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DeliveryStoreConfig controls the Postgres connection pool used for delivery rows.
type DeliveryStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// DeliveryStore writes delivery rows into Postgres.
type DeliveryStore struct {
	pool  execCloser
	table string
}

// NewDeliveryStore creates a Postgres-backed DeliveryStore using the provided config.
func NewDeliveryStore(ctx context.Context, cfg DeliveryStoreConfig) (*DeliveryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DeliveryStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewDeliveryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDeliveryStoreWithPool(pool execCloser, table string) (*DeliveryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &DeliveryStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *DeliveryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordDelivery inserts one delivery row.
func (s *DeliveryStore) RecordDelivery(ctx context.Context, rec audit.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("delivery store is not configured")
	}
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	run_id,
	source,
	sheet_name,
	sheet_gid,
	chat_id,
	filename,
	size_bytes,
	sha256,
	status,
	error,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, s.table)

	args := []any{
		rec.ID,
		rec.RunID,
		rec.Source,
		rec.Sheet,
		rec.GID,
		rec.ChatID,
		rec.Filename,
		rec.Bytes,
		rec.SHA256,
		rec.Status,
		nullable(rec.Error),
		rec.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
