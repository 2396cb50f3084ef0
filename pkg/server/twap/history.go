// Package twap keeps a fixed-capacity ring of accepted aggregates and computes
// time-weighted average prices over it.
package twap

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
)

const (
	// DefaultCapacity is the default number of retained entries.
	DefaultCapacity = 120
	// MaxWindow caps a TWAP lookback; larger windows fall back to the default
	// period.
	MaxWindow uint64 = 7 * 24 * 60 * 60
)

// Entry is one accepted aggregate.
type Entry struct {
	Price     fixedpoint.Price `json:"price"`
	Timestamp uint64           `json:"timestamp"`
	Sequence  uint64           `json:"sequence"`
}

// Snapshot is the verbatim ring layout, including the write cursor, used to
// persist and reload a History.
type Snapshot struct {
	Slots        []Entry `json:"slots"`
	WriteIndex   int     `json:"write_index"`
	Count        int     `json:"count"`
	NextSequence uint64  `json:"next_sequence"`
}

// History is a circular buffer of entries. Push overwrites the oldest slot once
// the ring is full; entries are never removed individually.
//
// History is not safe for concurrent use.
type History struct {
	slots      []Entry
	writeIndex int
	count      int
	nextSeq    uint64
}

// New creates an empty ring. A non-positive capacity selects DefaultCapacity.
func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		slots:   make([]Entry, capacity),
		nextSeq: 1,
	}
}

// Cap returns the ring capacity.
func (h *History) Cap() int {
	return len(h.slots)
}

// Len returns the number of valid entries.
func (h *History) Len() int {
	return h.count
}

// WriteIndex returns the slot of the most recent push.
func (h *History) WriteIndex() int {
	return h.writeIndex
}

// Push records price at timestamp in slot (writeIndex+1) mod capacity.
func (h *History) Push(price fixedpoint.Price, timestamp uint64) Entry {
	h.writeIndex = (h.writeIndex + 1) % len(h.slots)
	e := Entry{Price: price, Timestamp: timestamp, Sequence: h.nextSeq}
	h.slots[h.writeIndex] = e
	h.nextSeq++
	if h.count < len(h.slots) {
		h.count++
	}
	return e
}

// Latest returns the most recent entry.
func (h *History) Latest() (Entry, bool) {
	if h.count == 0 {
		return Entry{}, false
	}
	return h.slots[h.writeIndex], true
}

// Entries returns up to limit of the most recent entries ordered oldest
// first. A non-positive limit returns all entries.
func (h *History) Entries(limit int) []Entry {
	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	idx := h.writeIndex
	for i := n - 1; i >= 0; i-- {
		out[i] = h.slots[idx]
		idx = h.prev(idx)
	}
	return out
}

// Query returns the time-weighted average price over the window ending at now.
//
// The ring is walked backward from the most recent entry. Each entry is
// weighted by the gap to its predecessor, clipped at now-window; the walk
// stops at the first entry whose predecessor lies at or before the window
// start. While the ring is filling, the oldest entry is the boundary entry and
// covers the interval from the window start. Once the ring has wrapped, the
// predecessor of the oldest entry is overwritten and it contributes no
// interval. Entries stamped after now are skipped. The second return value is
// false when the window has no coverage.
func (h *History) Query(window, now, defaultPeriod uint64) (fixedpoint.Price, bool) {
	if window == 0 || window > MaxWindow {
		window = defaultPeriod
	}
	var target uint64
	if now > window {
		target = now - window
	}

	weightedSum := decimal.Zero
	var totalTime uint64

	idx := h.writeIndex
	for i := 0; i < h.count; i++ {
		e := h.slots[idx]
		if e.Timestamp <= target {
			break
		}

		hasPrev := i+1 < h.count
		prevIdx := h.prev(idx)
		prevTs := h.slots[prevIdx].Timestamp
		wrapped := h.count == len(h.slots)

		if e.Timestamp <= now && (hasPrev || !wrapped) {
			lower := target
			if hasPrev && prevTs > target {
				lower = prevTs
			}
			if e.Timestamp > lower {
				delta := e.Timestamp - lower
				weightedSum = weightedSum.Add(fixedpoint.Wide(uint64(e.Price)).Mul(fixedpoint.Wide(delta)))
				totalTime += delta
			}
		}

		if !hasPrev || prevTs <= target {
			break
		}
		idx = prevIdx
	}

	if totalTime == 0 {
		return fixedpoint.Zero, false
	}

	avg, err := fixedpoint.QuoTrunc(weightedSum, fixedpoint.Wide(totalTime))
	if err != nil {
		return fixedpoint.Zero, false
	}
	return fixedpoint.Price(avg), true
}

// Clone returns a deep copy.
func (h *History) Clone() *History {
	c := *h
	c.slots = make([]Entry, len(h.slots))
	copy(c.slots, h.slots)
	return &c
}

// Snapshot returns the ring layout for persistence.
func (h *History) Snapshot() Snapshot {
	slots := make([]Entry, len(h.slots))
	copy(slots, h.slots)
	return Snapshot{
		Slots:        slots,
		WriteIndex:   h.writeIndex,
		Count:        h.count,
		NextSequence: h.nextSeq,
	}
}

// Restore rebuilds a History from a snapshot, keeping slot positions and the
// write cursor exactly as saved.
func Restore(s Snapshot) (*History, error) {
	if len(s.Slots) == 0 {
		return nil, fmt.Errorf("%w: empty ring", ErrInvalidSnapshot)
	}
	if s.WriteIndex < 0 || s.WriteIndex >= len(s.Slots) {
		return nil, fmt.Errorf("%w: write index %d out of range", ErrInvalidSnapshot, s.WriteIndex)
	}
	if s.Count < 0 || s.Count > len(s.Slots) {
		return nil, fmt.Errorf("%w: count %d out of range", ErrInvalidSnapshot, s.Count)
	}
	slots := make([]Entry, len(s.Slots))
	copy(slots, s.Slots)
	next := s.NextSequence
	if next == 0 {
		next = 1
	}
	return &History{
		slots:      slots,
		writeIndex: s.WriteIndex,
		count:      s.Count,
		nextSeq:    next,
	}, nil
}

func (h *History) prev(idx int) int {
	if idx == 0 {
		return len(h.slots) - 1
	}
	return idx - 1
}
