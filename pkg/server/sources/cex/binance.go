// Package cex provides centralized exchange price sources.
package cex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/sources"
	"github.com/epayprotocol/oracle-usdp/pkg/version"
)

const (
	binanceBaseURL   = "https://api.binance.com"
	binanceTimeout   = 10 * time.Second
	binanceRateLimit = 10
	maxResponseBytes = 1 << 20
)

// BinanceSource fetches ticker prices from the Binance REST API.
type BinanceSource struct {
	*sources.BaseSource
	apiURL   string
	client   *http.Client
	limiter  *rate.Limiter
	validate *validator.Validate

	initOnce sync.Once
}

// BinancePriceTicker represents price data from the /ticker/price endpoint.
type BinancePriceTicker struct {
	Symbol string `json:"symbol" validate:"required"`         // e.g., "USDPUSDT"
	Price  string `json:"price" validate:"required,numeric"` // Current price
}

// NewBinanceSource creates a Binance source from config:
//
//	api_url: https://api.binance.com
//	rate_limit: 10   # requests per second
//	pairs:
//	  USDP/USDT: USDPUSDT
func NewBinanceSource(config map[string]interface{}) (sources.Source, error) {
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	apiURL := binanceBaseURL
	if u, ok := config["api_url"].(string); ok && u != "" {
		apiURL = u
	}

	rps := sources.GetIntFromMap(config, "rate_limit", binanceRateLimit)
	if rps <= 0 {
		return nil, fmt.Errorf("%w: rate_limit must be positive", sources.ErrInvalidConfig)
	}

	name := sources.GetNameFromConfig(config, "binance")
	base := sources.NewBaseSource(name, sources.SourceTypeCEX, pairs, sources.GetLoggerFromConfig(config))

	return &BinanceSource{
		BaseSource: base,
		apiURL:     apiURL,
		client:     &http.Client{Timeout: binanceTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		validate:   validator.New(),
	}, nil
}

// Initialize prepares the source for operation.
func (s *BinanceSource) Initialize(_ context.Context) error {
	s.initOnce.Do(func() {
		s.Logger().Info("Initializing Binance source", "pairs", len(s.Symbols()), "api_url", s.apiURL)
		s.SetHealthy(true)
	})
	return nil
}

// Start is a no-op; tickers are requested on demand.
func (s *BinanceSource) Start(_ context.Context) error {
	return nil
}

// Stop halts the source.
func (s *BinanceSource) Stop() error {
	s.Logger().Info("Stopping Binance source")
	s.Close()
	return nil
}

// FetchPrice requests the ticker price for symbol.
func (s *BinanceSource) FetchPrice(ctx context.Context, symbol string) (fixedpoint.Price, error) {
	if s.Stopped() {
		return fixedpoint.Zero, sources.ErrSourceStopped
	}

	key, ok := s.GetSourceSymbol(symbol)
	if !ok {
		return fixedpoint.Zero, fmt.Errorf("%w: %s", sources.ErrUnknownSymbol, symbol)
	}
	binanceSymbol := s.GetAllPairs()[key]

	price, err := s.fetchTicker(ctx, binanceSymbol)
	if err != nil {
		s.RecordFailure(symbol, err)
		return fixedpoint.Zero, err
	}

	s.RecordQuote(symbol, price, time.Now())
	return price, nil
}

func (s *BinanceSource) fetchTicker(ctx context.Context, binanceSymbol string) (fixedpoint.Price, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return fixedpoint.Zero, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := s.apiURL + "/api/v3/ticker/price?symbol=" + url.QueryEscape(binanceSymbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fixedpoint.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.AgentString())

	resp, err := s.client.Do(req)
	if err != nil {
		return fixedpoint.Zero, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fixedpoint.Zero, fmt.Errorf("%w: %d", sources.ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fixedpoint.Zero, fmt.Errorf("failed to read response: %w", err)
	}

	var ticker BinancePriceTicker
	if err := json.Unmarshal(body, &ticker); err != nil {
		return fixedpoint.Zero, fmt.Errorf("%w: %v", sources.ErrInvalidResponse, err)
	}
	if err := s.validate.Struct(&ticker); err != nil {
		return fixedpoint.Zero, fmt.Errorf("%w: %v", sources.ErrInvalidResponse, err)
	}
	if ticker.Symbol != binanceSymbol {
		return fixedpoint.Zero, fmt.Errorf("%w: got ticker for %s", sources.ErrInvalidResponse, ticker.Symbol)
	}

	d, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return fixedpoint.Zero, fmt.Errorf("%w: price %q", sources.ErrInvalidResponse, ticker.Price)
	}
	price, err := fixedpoint.FromDecimal(d)
	if err != nil {
		return fixedpoint.Zero, err
	}
	if price.IsZero() {
		return fixedpoint.Zero, fmt.Errorf("%w: zero price", sources.ErrPriceOutOfRange)
	}
	return price, nil
}
