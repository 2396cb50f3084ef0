package engine

import (
	"fmt"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/breaker"
	"github.com/epayprotocol/oracle-usdp/pkg/server/twap"
)

// SourceConfig describes one price source bound to a feed. The engine reads
// Active and Weight and records LastPrice and LastUpdateTime after every
// completed cycle.
type SourceConfig struct {
	ID             string           `json:"id"`
	ExternalRef    string           `json:"external_ref"`
	Active         bool             `json:"active"`
	Weight         uint64           `json:"weight"`
	LastPrice      fixedpoint.Price `json:"last_price"`
	LastUpdateTime uint64           `json:"last_update_time"`
}

// Aggregate is an accepted price. A zero Price means nothing was accepted yet.
type Aggregate struct {
	Price            fixedpoint.Price `json:"price"`
	Timestamp        uint64           `json:"timestamp"`
	ValidSourceCount int              `json:"valid_source_count"`
}

// State is the full persisted state of one engine. The history snapshot keeps
// the ring layout verbatim so a reload resumes at the same write position.
type State struct {
	Symbol         string           `json:"symbol"`
	Parameters     Parameters       `json:"parameters"`
	Breaker        breaker.State    `json:"breaker"`
	Latest         Aggregate        `json:"latest"`
	Paused         bool             `json:"paused"`
	EmergencyPrice fixedpoint.Price `json:"emergency_price"`
	Sources        []SourceConfig   `json:"sources"`
	History        twap.Snapshot    `json:"history"`
}

// committed is the immutable state readers observe. Mutations operate on a
// clone and publish it only on success.
type committed struct {
	params         Parameters
	breaker        breaker.State
	latest         Aggregate
	paused         bool
	emergencyPrice fixedpoint.Price
	sources        []SourceConfig
	history        *twap.History
}

func (c *committed) clone() *committed {
	n := *c
	n.sources = make([]SourceConfig, len(c.sources))
	copy(n.sources, c.sources)
	n.history = c.history.Clone()
	return &n
}

func (c *committed) sourceIndex(id string) int {
	for i := range c.sources {
		if c.sources[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *committed) export(symbol string) State {
	sources := make([]SourceConfig, len(c.sources))
	copy(sources, c.sources)
	return State{
		Symbol:         symbol,
		Parameters:     c.params,
		Breaker:        c.breaker,
		Latest:         c.latest,
		Paused:         c.paused,
		EmergencyPrice: c.emergencyPrice,
		Sources:        sources,
		History:        c.history.Snapshot(),
	}
}

func importState(s State) (*committed, error) {
	if err := s.Parameters.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	h, err := twap.Restore(s.History)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	seen := make(map[string]struct{}, len(s.Sources))
	for _, src := range s.Sources {
		if err := validateSource(src); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		if _, dup := seen[src.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate source %s", ErrInvalidState, src.ID)
		}
		seen[src.ID] = struct{}{}
	}
	sources := make([]SourceConfig, len(s.Sources))
	copy(sources, s.Sources)
	return &committed{
		params:         s.Parameters,
		breaker:        s.Breaker,
		latest:         s.Latest,
		paused:         s.Paused,
		emergencyPrice: s.EmergencyPrice,
		sources:        sources,
		history:        h,
	}, nil
}
