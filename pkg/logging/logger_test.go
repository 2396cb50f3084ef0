package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Info("cycle accepted", "symbol", "USDP", "sources", 3, "err", errors.New("boom"), 42, "ignored")

	out := buf.String()
	assert.Contains(t, out, `"message":"cycle accepted"`)
	assert.Contains(t, out, `"symbol":"USDP"`)
	assert.Contains(t, out, `"sources":3`)
	assert.Contains(t, out, `"err":"boom"`)
	assert.NotContains(t, out, "ignored")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf).With("component", "engine")

	l.Warn("breaker tripped")
	assert.Contains(t, buf.String(), `"component":"engine"`)
}

func TestNewNoopLogger(t *testing.T) {
	l := NewNoopLogger()
	require.NotNil(t, l)
	l.Info("nothing")
	l.With("a", 1).Error("still nothing")
}

func TestInit_FileOutput(t *testing.T) {
	path := t.TempDir() + "/oracle.log"
	l, err := Init("debug", "json", path)
	require.NoError(t, err)
	l.Debug("hello")
}

func TestGlobal_DefaultsToNoop(t *testing.T) {
	SetGlobal(nil)
	assert.NotNil(t, Global())
	Info("dropped")
}
