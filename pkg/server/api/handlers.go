package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
	"github.com/epayprotocol/oracle-usdp/pkg/server/twap"
)

const (
	maxHistoryLimit  = 1000
	defaultAuditRows = 50
	maxAuditRows     = 500
)

// PriceResponse is a feed price as served to consumers. Price is the decimal
// rendering, PriceE8 the raw 8-decimal integer.
type PriceResponse struct {
	Symbol       string `json:"symbol"`
	Price        string `json:"price"`
	PriceE8      uint64 `json:"price_e8"`
	IsValid      bool   `json:"is_valid"`
	Timestamp    uint64 `json:"timestamp"`
	ValidSources int    `json:"valid_sources"`
	Paused       bool   `json:"paused,omitempty"`
}

// TwapResponse is a time-weighted average over a window.
type TwapResponse struct {
	Symbol  string `json:"symbol"`
	Window  uint64 `json:"window"`
	Price   string `json:"price"`
	PriceE8 uint64 `json:"price_e8"`
}

// StateResponse exposes the configuration and safety state of a feed.
type StateResponse struct {
	Symbol         string                `json:"symbol"`
	Parameters     engine.Parameters     `json:"parameters"`
	Breaker        string                `json:"breaker"`
	Reference      string                `json:"reference_price"`
	Latest         PriceResponse         `json:"latest"`
	Paused         bool                  `json:"paused"`
	EmergencyPrice string                `json:"emergency_price"`
	Sources        []engine.SourceConfig `json:"sources"`
}

// HistoryEntry is one accepted price in the TWAP ring.
type HistoryEntry struct {
	Price     string `json:"price"`
	PriceE8   uint64 `json:"price_e8"`
	Timestamp uint64 `json:"timestamp"`
	Sequence  uint64 `json:"sequence"`
}

// AuditEntry is one recorded update cycle.
type AuditEntry struct {
	ID           string    `json:"id"`
	Accepted     bool      `json:"accepted"`
	Price        string    `json:"price"`
	PriceE8      uint64    `json:"price_e8"`
	Median       string    `json:"median"`
	ValidSources int       `json:"valid_sources"`
	DeviationBps int64     `json:"deviation_bps"`
	RejectReason string    `json:"reject_reason,omitempty"`
	ObservedAt   int64     `json:"observed_at"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// handleHealth handles /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func priceView(symbol string, e *engine.Engine, now uint64) PriceResponse {
	price, valid := e.QueryWithValidity(now)
	latest := e.LatestAggregate()
	return PriceResponse{
		Symbol:       symbol,
		Price:        price.String(),
		PriceE8:      uint64(price),
		IsValid:      valid,
		Timestamp:    latest.Timestamp,
		ValidSources: latest.ValidSourceCount,
		Paused:       e.Paused(),
	}
}

// handlePrices handles /v1/prices and /latest: every feed with its validity.
func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	symbols := s.registry.Symbols()
	out := make([]PriceResponse, 0, len(symbols))
	for _, symbol := range symbols {
		e, ok := s.registry.Engine(symbol)
		if !ok {
			continue
		}
		out = append(out, priceView(symbol, e, now))
	}
	s.sendJSON(w, http.StatusOK, out)
}

// handleLatest serves the current price, refusing stale or breaker-blocked ones.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	e, symbol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	now := s.now()
	price, err := e.QueryLatest(now)
	if err != nil {
		s.sendError(w, statusFor(err), err.Error())
		return
	}
	resp := priceView(symbol, e, now)
	resp.Price = price.String()
	resp.PriceE8 = uint64(price)
	resp.IsValid = true
	s.sendJSON(w, http.StatusOK, resp)
}

// handleTwap serves the TWAP over ?window=<seconds>; 0 or absent uses the
// feed's configured period.
func (s *Server) handleTwap(w http.ResponseWriter, r *http.Request) {
	e, symbol, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var window uint64
	if raw := r.URL.Query().Get("window"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "window must be a non-negative integer")
			return
		}
		window = v
	}
	if window == 0 || window > twap.MaxWindow {
		window = e.Parameters().TwapPeriod
	}

	price := e.QueryTwap(window, s.now())
	if price.IsZero() {
		s.sendError(w, http.StatusServiceUnavailable, engine.ErrNoPriceAvailable.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, TwapResponse{
		Symbol:  symbol,
		Window:  window,
		Price:   price.String(),
		PriceE8: uint64(price),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	e, symbol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	br := e.BreakerState()
	s.sendJSON(w, http.StatusOK, StateResponse{
		Symbol:         symbol,
		Parameters:     e.Parameters(),
		Breaker:        br.Status().String(),
		Reference:      br.LastAcceptedPrice.String(),
		Latest:         priceView(symbol, e, s.now()),
		Paused:         e.Paused(),
		EmergencyPrice: e.EmergencyPrice().String(),
		Sources:        e.Sources(),
	})
}

// handleHistory serves the newest ?limit= TWAP entries, oldest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	e, _, ok := s.lookup(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			s.sendError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = v
	}
	if limit == 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries := e.History(limit)
	out := make([]HistoryEntry, len(entries))
	for i, en := range entries {
		out[i] = HistoryEntry{
			Price:     en.Price.String(),
			PriceE8:   uint64(en.Price),
			Timestamp: en.Timestamp,
			Sequence:  en.Sequence,
		}
	}
	s.sendJSON(w, http.StatusOK, out)
}

// handleAudit serves the newest ?limit= recorded cycles of a feed, newest
// first.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	_, symbol, ok := s.lookup(w, r)
	if !ok {
		return
	}

	limit := defaultAuditRows
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			s.sendError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if v > 0 {
			limit = v
		}
	}
	if limit > maxAuditRows {
		limit = maxAuditRows
	}

	records, err := s.audit.RecentCycles(r.Context(), symbol, limit)
	if err != nil {
		s.logger.Error("Failed to read audit log", "symbol", symbol, "error", err)
		s.sendError(w, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}

	out := make([]AuditEntry, len(records))
	for i, rec := range records {
		out[i] = AuditEntry{
			ID:           rec.ID.String(),
			Accepted:     rec.Accepted,
			Price:        rec.Price.String(),
			PriceE8:      uint64(rec.Price),
			Median:       rec.Median.String(),
			ValidSources: rec.ValidSources,
			DeviationBps: rec.DeviationBps,
			RejectReason: rec.RejectReason,
			ObservedAt:   rec.ObservedAt,
			RecordedAt:   rec.CreatedAt,
		}
	}
	s.sendJSON(w, http.StatusOK, out)
}
