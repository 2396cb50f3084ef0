package store

import (
	"context"
	"sync"

	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
	"github.com/epayprotocol/oracle-usdp/pkg/server/twap"
)

// Memory is an in-process StateStore. State is lost on restart.
type Memory struct {
	mu     sync.RWMutex
	states map[string]engine.State
}

var _ StateStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{states: make(map[string]engine.State)}
}

// Load returns a copy of the saved state.
func (m *Memory) Load(_ context.Context, symbol string) (engine.State, bool, error) {
	if symbol == "" {
		return engine.State{}, false, ErrSymbolRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[symbol]
	if !ok {
		return engine.State{}, false, nil
	}
	return copyState(s), true, nil
}

// Save stores a copy of state.
func (m *Memory) Save(_ context.Context, symbol string, state engine.State) error {
	if symbol == "" {
		return ErrSymbolRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[symbol] = copyState(state)
	return nil
}

func copyState(s engine.State) engine.State {
	out := s
	if s.Sources != nil {
		out.Sources = make([]engine.SourceConfig, len(s.Sources))
		copy(out.Sources, s.Sources)
	}
	if s.History.Slots != nil {
		out.History.Slots = make([]twap.Entry, len(s.History.Slots))
		copy(out.History.Slots, s.History.Slots)
	}
	return out
}
