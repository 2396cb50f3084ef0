// Package postgres writes the update-cycle audit trail to PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/epayprotocol/oracle-usdp/pkg/metrics"
	"github.com/epayprotocol/oracle-usdp/pkg/store"
)

const storeName = "postgres"

const schema = `
CREATE TABLE IF NOT EXISTS oracle_cycles (
	id            UUID PRIMARY KEY,
	symbol        TEXT NOT NULL,
	accepted      BOOLEAN NOT NULL,
	price         NUMERIC(28, 8) NOT NULL,
	median        NUMERIC(28, 8) NOT NULL,
	valid_sources INTEGER NOT NULL,
	deviation_bps BIGINT NOT NULL,
	reject_reason TEXT NOT NULL DEFAULT '',
	observed_at   BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS oracle_cycles_symbol_observed_idx ON oracle_cycles (symbol, observed_at DESC);
CREATE TABLE IF NOT EXISTS oracle_source_prices (
	cycle_id    UUID NOT NULL REFERENCES oracle_cycles (id) ON DELETE CASCADE,
	symbol      TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	price       NUMERIC(28, 8) NOT NULL,
	weight      BIGINT NOT NULL,
	outlier     BOOLEAN NOT NULL,
	observed_at BIGINT NOT NULL,
	PRIMARY KEY (cycle_id, source_id)
);`

const insertCycle = `
	INSERT INTO oracle_cycles (id, symbol, accepted, price, median, valid_sources, deviation_bps, reject_reason, observed_at, created_at)
	VALUES (:id, :symbol, :accepted, :price, :median, :valid_sources, :deviation_bps, :reject_reason, :observed_at, :created_at)`

const insertSource = `
	INSERT INTO oracle_source_prices (cycle_id, symbol, source_id, price, weight, outlier, observed_at)
	VALUES (:cycle_id, :symbol, :source_id, :price, :weight, :outlier, :observed_at)`

// AuditLog implements store.AuditLog backed by PostgreSQL.
type AuditLog struct {
	db *sqlx.DB
}

var (
	_ store.AuditLog    = (*AuditLog)(nil)
	_ store.AuditReader = (*AuditLog)(nil)
)

// Open connects with the lib/pq driver.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*AuditLog, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	return New(db), nil
}

// New creates an AuditLog using the provided database handle.
func New(db *sqlx.DB) *AuditLog {
	return &AuditLog{db: db}
}

// EnsureSchema creates the audit tables if they are missing.
func (a *AuditLog) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		metrics.RecordStoreError(storeName, "schema")
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (a *AuditLog) RecordCycle(ctx context.Context, rec store.CycleRecord) error {
	if _, err := a.db.NamedExecContext(ctx, insertCycle, rec); err != nil {
		metrics.RecordStoreError(storeName, "record_cycle")
		return fmt.Errorf("insert cycle %s: %w", rec.ID, err)
	}
	return nil
}

func (a *AuditLog) RecordSource(ctx context.Context, rec store.SourceRecord) error {
	if _, err := a.db.NamedExecContext(ctx, insertSource, rec); err != nil {
		metrics.RecordStoreError(storeName, "record_source")
		return fmt.Errorf("insert source %s/%s: %w", rec.CycleID, rec.SourceID, err)
	}
	return nil
}

// RecentCycles returns the newest cycles for symbol, newest first.
func (a *AuditLog) RecentCycles(ctx context.Context, symbol string, limit int) ([]store.CycleRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []store.CycleRecord
	err := a.db.SelectContext(ctx, &out, `
		SELECT id, symbol, accepted, price, median, valid_sources, deviation_bps, reject_reason, observed_at, created_at
		FROM oracle_cycles
		WHERE symbol = $1
		ORDER BY observed_at DESC
		LIMIT $2`, symbol, limit)
	if err != nil {
		metrics.RecordStoreError(storeName, "recent_cycles")
		return nil, fmt.Errorf("select cycles: %w", err)
	}
	return out, nil
}

// Close closes the database handle.
func (a *AuditLog) Close() error {
	return a.db.Close()
}
