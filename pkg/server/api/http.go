// Package api provides HTTP and WebSocket API endpoints for the price feeds.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/epayprotocol/oracle-usdp/pkg/logging"
	"github.com/epayprotocol/oracle-usdp/pkg/metrics"
	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
	"github.com/epayprotocol/oracle-usdp/pkg/store"
)

// Registry resolves feed engines by symbol.
type Registry interface {
	Engine(symbol string) (*engine.Engine, bool)
	Symbols() []string
	Persist(ctx context.Context, symbol string) error
}

// Config configures the HTTP server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CertFile     string
	KeyFile      string
	EnableAdmin  bool
}

// Server represents the HTTP API server.
type Server struct {
	cfg      Config
	registry Registry
	hub      *WebSocketHub
	audit    store.AuditReader
	server   *http.Server
	logger   *logging.Logger
	validate *validator.Validate
	clock    func() time.Time
}

// NewServer creates a new HTTP API server. hub may be nil to disable /ws.
func NewServer(cfg Config, registry Registry, hub *WebSocketHub, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		hub:      hub,
		logger:   logger,
		validate: validator.New(),
		clock:    time.Now,
	}
}

// SetAuditReader enables /v1/feeds/{symbol}/audit. Call it before Handler
// or Start.
func (s *Server) SetAuditReader(r store.AuditReader) {
	s.audit = r
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Get("/latest", s.handlePrices) // Compatibility with the legacy feeder
	if s.hub != nil {
		r.Get("/ws", s.hub.ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/prices", s.handlePrices)
		r.Route("/feeds/{symbol}", func(r chi.Router) {
			r.Get("/latest", s.handleLatest)
			r.Get("/twap", s.handleTwap)
			r.Get("/state", s.handleState)
			r.Get("/history", s.handleHistory)
			if s.audit != nil {
				r.Get("/audit", s.handleAudit)
			}

			if s.cfg.EnableAdmin {
				r.Post("/breaker/reset", s.handleResetBreaker)
				r.Put("/parameters", s.handleSetParameters)
				r.Put("/paused", s.handleSetPaused)
				r.Put("/emergency-price", s.handleSetEmergencyPrice)
				r.Post("/sources", s.handleAddSource)
				r.Patch("/sources/{id}", s.handleUpdateSource)
				r.Delete("/sources/{id}", s.handleRemoveSource)
			}
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.cfg.Addr, "admin", s.cfg.EnableAdmin, "websocket", s.hub != nil)

	var err error
	if s.cfg.CertFile != "" {
		err = s.server.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
	} else {
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// instrument records request count and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(endpoint, strconv.Itoa(status), time.Since(start))
	})
}

func (s *Server) now() uint64 {
	return uint64(s.clock().Unix())
}

// feedSymbol reads the {symbol} URL parameter. Symbols may be given
// URL-encoded ("USDP%2FUSD") or with a dash ("USDP-USD").
func feedSymbol(r *http.Request) string {
	raw := chi.URLParam(r, "symbol")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	return strings.ToUpper(strings.ReplaceAll(raw, "-", "/"))
}

// lookup resolves the feed engine or writes a 404.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*engine.Engine, string, bool) {
	symbol := feedSymbol(r)
	e, ok := s.registry.Engine(symbol)
	if !ok {
		s.sendError(w, http.StatusNotFound, fmt.Sprintf("unknown feed %s", symbol))
		return nil, symbol, false
	}
	return e, symbol, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, errorResponse{Error: msg})
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrCircuitBreakerActive):
		return http.StatusConflict
	case errors.Is(err, engine.ErrPriceStale), errors.Is(err, engine.ErrNoPriceAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrSourceExists):
		return http.StatusConflict
	case errors.Is(err, engine.ErrSourceNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
