package static

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/sources"
)

func TestFixedSource(t *testing.T) {
	src, err := sources.Create("static", "manual", map[string]interface{}{
		"driver": "fixed",
		"prices": map[string]interface{}{
			"USDP/USDT": "1.0001",
			"ETH/USD":   2500,
		},
	})
	require.NoError(t, err)
	require.NoError(t, src.Initialize(context.Background()))
	assert.Equal(t, "manual", src.Name())
	assert.True(t, src.IsHealthy())

	p, err := src.FetchPrice(context.Background(), "USDP/USD")
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(100_010_000), p)

	p, err = src.FetchPrice(context.Background(), "ETH/USD")
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.MustParsePrice("2500"), p)
	assert.False(t, src.LastUpdate().IsZero())

	_, err = src.FetchPrice(context.Background(), "BTC/USD")
	assert.ErrorIs(t, err, sources.ErrUnknownSymbol)

	require.NoError(t, src.Stop())
	_, err = src.FetchPrice(context.Background(), "ETH/USD")
	assert.ErrorIs(t, err, sources.ErrSourceStopped)
}

func TestNewFixedSource_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
	}{
		{"missing prices", map[string]interface{}{}},
		{"bad symbol", map[string]interface{}{"prices": map[string]interface{}{"USDP": "1"}}},
		{"bad price", map[string]interface{}{"prices": map[string]interface{}{"USDP/USD": "one"}}},
		{"negative price", map[string]interface{}{"prices": map[string]interface{}{"USDP/USD": "-1"}}},
		{"bool price", map[string]interface{}{"prices": map[string]interface{}{"USDP/USD": true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFixedSource(tt.config)
			assert.Error(t, err)
		})
	}
}
