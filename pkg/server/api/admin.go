package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
)

const maxBodyBytes = 64 << 10

// ParametersRequest replaces the feed parameters.
type ParametersRequest struct {
	PriceDeviationThresholdBps uint64 `json:"price_deviation_threshold_bps" validate:"required,min=1,max=10000"`
	CircuitBreakerThresholdBps uint64 `json:"circuit_breaker_threshold_bps" validate:"required,min=1,max=10000"`
	MaxPriceAge                uint64 `json:"max_price_age" validate:"required,min=1"`
	TwapPeriod                 uint64 `json:"twap_period" validate:"required,min=1,max=604800"`
	MinSourcesRequired         int    `json:"min_sources_required" validate:"required,min=1"`
}

// PausedRequest pauses or resumes a feed.
type PausedRequest struct {
	Paused *bool `json:"paused" validate:"required"`
}

// EmergencyPriceRequest sets the price served while paused, e.g. "1.0000".
type EmergencyPriceRequest struct {
	Price string `json:"price" validate:"required,numeric"`
}

// AddSourceRequest registers a source with a feed.
type AddSourceRequest struct {
	ID          string `json:"id" validate:"required,max=64"`
	ExternalRef string `json:"external_ref" validate:"required,max=128"`
	Weight      uint64 `json:"weight" validate:"required,min=1"`
	Active      *bool  `json:"active"`
}

// UpdateSourceRequest changes the weight and active flag of a source.
type UpdateSourceRequest struct {
	Active *bool  `json:"active" validate:"required"`
	Weight uint64 `json:"weight" validate:"required,min=1"`
}

// decode reads a JSON body into v and validates its tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "failed to read body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// persist saves the feed after an admin change. A failed save is logged; the
// change is already live.
func (s *Server) persist(r *http.Request, symbol string) {
	if err := s.registry.Persist(r.Context(), symbol); err != nil {
		s.logger.Error("Failed to persist admin change", "symbol", symbol, "error", err)
	}
}

func (s *Server) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	e, symbol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	reset := e.ResetBreaker(s.now())
	if reset {
		s.persist(r, symbol)
	}
	s.sendJSON(w, http.StatusOK, map[string]bool{"reset": reset})
}

func (s *Server) handleSetParameters(w http.ResponseWriter, r *http.Request) {
	e, symbol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req ParametersRequest
	if !s.decode(w, r, &req) {
		return
	}
	params := engine.Parameters{
		PriceDeviationThresholdBps: req.PriceDeviationThresholdBps,
		CircuitBreakerThresholdBps: req.CircuitBreakerThresholdBps,
		MaxPriceAge:                req.MaxPriceAge,
		TwapPeriod:                 req.TwapPeriod,
		MinSourcesRequired:         req.MinSourcesRequired,
	}
	if err := e.SetParameters(params); err != nil {
		s.sendError(w, statusFor(err), err.Error())
		return
	}
	s.persist(r, symbol)
	s.sendJSON(w, http.StatusOK, e.Parameters())
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	e, symbol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req PausedRequest
	if !s.decode(w, r, &req) {
		return
	}
	e.SetPaused(*req.Paused)
	s.persist(r, symbol)
	s.sendJSON(w, http.StatusOK, map[string]bool{"paused": e.Paused()})
}

func (s *Server) handleSetEmergencyPrice(w http.ResponseWriter, r *http.Request) {
	e, symbol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req EmergencyPriceRequest
	if !s.decode(w, r, &req) {
		return
	}
	price, err := fixedpoint.ParsePrice(req.Price)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := e.SetEmergencyPrice(price); err != nil {
		s.sendError(w, statusFor(err), err.Error())
		return
	}
	s.persist(r, symbol)
	s.sendJSON(w, http.StatusOK, map[string]string{"emergency_price": price.String()})
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	e, symbol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req AddSourceRequest
	if !s.decode(w, r, &req) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	err := e.AddSource(engine.SourceConfig{
		ID:          req.ID,
		ExternalRef: req.ExternalRef,
		Weight:      req.Weight,
		Active:      active,
	})
	if err != nil {
		s.sendError(w, statusFor(err), err.Error())
		return
	}
	s.persist(r, symbol)
	s.sendJSON(w, http.StatusCreated, e.Sources())
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	e, symbol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req UpdateSourceRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := e.UpdateSource(chi.URLParam(r, "id"), *req.Active, req.Weight); err != nil {
		s.sendError(w, statusFor(err), err.Error())
		return
	}
	s.persist(r, symbol)
	s.sendJSON(w, http.StatusOK, e.Sources())
}

func (s *Server) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	e, symbol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := e.RemoveSource(chi.URLParam(r, "id")); err != nil {
		s.sendError(w, statusFor(err), err.Error())
		return
	}
	s.persist(r, symbol)
	w.WriteHeader(http.StatusNoContent)
}
