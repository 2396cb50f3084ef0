// Package store persists engine state snapshots and the per-cycle audit trail.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/aggregator"
	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
)

// ErrSymbolRequired is returned when a store is addressed without a symbol.
var ErrSymbolRequired = errors.New("symbol is required")

// StateStore loads and saves engine snapshots keyed by symbol.
type StateStore interface {
	// Load returns false when nothing was saved for symbol.
	Load(ctx context.Context, symbol string) (engine.State, bool, error)
	Save(ctx context.Context, symbol string, state engine.State) error
}

// AuditLog records the outcome of update cycles and the samples behind them.
type AuditLog interface {
	RecordCycle(ctx context.Context, rec CycleRecord) error
	RecordSource(ctx context.Context, rec SourceRecord) error
}

// AuditReader reads recorded cycles back, newest first.
type AuditReader interface {
	RecentCycles(ctx context.Context, symbol string, limit int) ([]CycleRecord, error)
}

// CycleRecord is one completed or rejected update cycle.
type CycleRecord struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	Symbol       string           `db:"symbol" json:"symbol"`
	Accepted     bool             `db:"accepted" json:"accepted"`
	Price        fixedpoint.Price `db:"price" json:"price"`
	Median       fixedpoint.Price `db:"median" json:"median"`
	ValidSources int              `db:"valid_sources" json:"valid_sources"`
	DeviationBps int64            `db:"deviation_bps" json:"deviation_bps"`
	RejectReason string           `db:"reject_reason" json:"reject_reason,omitempty"`
	ObservedAt   int64            `db:"observed_at" json:"observed_at"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// SourceRecord is one sample contributed to a cycle.
type SourceRecord struct {
	CycleID    uuid.UUID        `db:"cycle_id" json:"cycle_id"`
	Symbol     string           `db:"symbol" json:"symbol"`
	SourceID   string           `db:"source_id" json:"source_id"`
	Price      fixedpoint.Price `db:"price" json:"price"`
	Weight     int64            `db:"weight" json:"weight"`
	Outlier    bool             `db:"outlier" json:"outlier"`
	ObservedAt int64            `db:"observed_at" json:"observed_at"`
}

// NewCycleRecord builds the audit row for a cycle result.
func NewCycleRecord(id uuid.UUID, symbol string, res engine.CycleResult, now uint64) CycleRecord {
	return CycleRecord{
		ID:           id,
		Symbol:       symbol,
		Accepted:     res.Accepted,
		Price:        res.Price,
		Median:       res.Median,
		ValidSources: res.ValidSourceCount,
		DeviationBps: int64(res.DeviationBps),
		RejectReason: string(res.RejectReason),
		ObservedAt:   int64(now),
		CreatedAt:    time.Now().UTC(),
	}
}

// NewSourceRecords builds one row per sample, flagging the ones the cycle
// rejected as outliers.
func NewSourceRecords(id uuid.UUID, symbol string, samples []aggregator.Sample, res engine.CycleResult, now uint64) []SourceRecord {
	outliers := make(map[string]struct{}, len(res.Outliers))
	for _, o := range res.Outliers {
		outliers[o.SourceID] = struct{}{}
	}

	recs := make([]SourceRecord, 0, len(samples))
	for _, s := range samples {
		_, isOutlier := outliers[s.SourceID]
		recs = append(recs, SourceRecord{
			CycleID:    id,
			Symbol:     symbol,
			SourceID:   s.SourceID,
			Price:      s.Price,
			Weight:     int64(s.Weight),
			Outlier:    isOutlier,
			ObservedAt: int64(now),
		})
	}
	return recs
}
