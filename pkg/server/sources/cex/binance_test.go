package cex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/sources"
)

func newBinanceServer(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "USDPUSDT", r.URL.Query().Get("symbol"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newBinance(t *testing.T, apiURL string) sources.Source {
	t.Helper()
	src, err := NewBinanceSource(map[string]interface{}{
		"api_url": apiURL,
		"pairs": map[string]interface{}{
			"USDP/USDT": "USDPUSDT",
		},
	})
	require.NoError(t, err)
	require.NoError(t, src.Initialize(context.Background()))
	return src
}

func TestBinanceSource_NewSource(t *testing.T) {
	src := newBinance(t, "http://localhost")

	assert.Equal(t, "binance", src.Name())
	assert.Equal(t, sources.SourceTypeCEX, src.Type())
	assert.Equal(t, []string{"USDP/USDT"}, src.Symbols())
	assert.True(t, src.IsHealthy())
}

func TestBinanceSource_FetchPrice(t *testing.T) {
	var hits int32
	srv := newBinanceServer(t, http.StatusOK, `{"symbol":"USDPUSDT","price":"1.00050000"}`, &hits)
	src := newBinance(t, srv.URL)

	price, err := src.FetchPrice(context.Background(), "USDP/USD")
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(100_050_000), price)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.False(t, src.LastUpdate().IsZero())
}

func TestBinanceSource_TruncatesExtraDecimals(t *testing.T) {
	srv := newBinanceServer(t, http.StatusOK, `{"symbol":"USDPUSDT","price":"0.999999999"}`, nil)
	src := newBinance(t, srv.URL)

	price, err := src.FetchPrice(context.Background(), "USDP/USDT")
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(99_999_999), price)
}

func TestBinanceSource_BadResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{}`, sources.ErrUnexpectedStatus},
		{"malformed json", http.StatusOK, `{"symbol":`, sources.ErrInvalidResponse},
		{"missing price", http.StatusOK, `{"symbol":"USDPUSDT"}`, sources.ErrInvalidResponse},
		{"non numeric price", http.StatusOK, `{"symbol":"USDPUSDT","price":"abc"}`, sources.ErrInvalidResponse},
		{"wrong symbol", http.StatusOK, `{"symbol":"BTCUSDT","price":"1.0"}`, sources.ErrInvalidResponse},
		{"zero price", http.StatusOK, `{"symbol":"USDPUSDT","price":"0.000000001"}`, sources.ErrPriceOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newBinanceServer(t, tt.status, tt.body, nil)
			src := newBinance(t, srv.URL)

			_, err := src.FetchPrice(context.Background(), "USDP/USDT")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, src.IsHealthy())
		})
	}
}

func TestBinanceSource_UnknownSymbol(t *testing.T) {
	var hits int32
	srv := newBinanceServer(t, http.StatusOK, `{}`, &hits)
	src := newBinance(t, srv.URL)

	_, err := src.FetchPrice(context.Background(), "BTC/USD")
	assert.ErrorIs(t, err, sources.ErrUnknownSymbol)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestBinanceSource_Stopped(t *testing.T) {
	src := newBinance(t, "http://localhost")
	require.NoError(t, src.Stop())

	_, err := src.FetchPrice(context.Background(), "USDP/USDT")
	assert.ErrorIs(t, err, sources.ErrSourceStopped)
}

func TestBinanceSource_CanceledContext(t *testing.T) {
	srv := newBinanceServer(t, http.StatusOK, `{"symbol":"USDPUSDT","price":"1"}`, nil)
	src := newBinance(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.FetchPrice(ctx, "USDP/USDT")
	assert.Error(t, err)
}

func TestBinanceSource_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
	}{
		{
			name:   "missing pairs",
			config: map[string]interface{}{},
		},
		{
			name:   "invalid pairs type",
			config: map[string]interface{}{"pairs": "USDPUSDT"},
		},
		{
			name: "bad rate limit",
			config: map[string]interface{}{
				"pairs":      map[string]interface{}{"USDP/USDT": "USDPUSDT"},
				"rate_limit": -1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBinanceSource(tt.config)
			assert.ErrorIs(t, err, sources.ErrInvalidConfig)
		})
	}
}
