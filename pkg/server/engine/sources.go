package engine

import (
	"fmt"
)

func validateSource(src SourceConfig) error {
	if src.ID == "" {
		return fmt.Errorf("%w: source id is empty", ErrInvalidParameters)
	}
	if src.ExternalRef == "" {
		return fmt.Errorf("%w: source %s has no external reference", ErrInvalidParameters, src.ID)
	}
	if src.Weight == 0 {
		return fmt.Errorf("%w: source %s has zero weight", ErrInvalidParameters, src.ID)
	}
	return nil
}

// AddSource registers a new source. LastPrice and LastUpdateTime are cleared.
func (e *Engine) AddSource(src SourceConfig) error {
	if err := validateSource(src); err != nil {
		return err
	}
	src.LastPrice = 0
	src.LastUpdateTime = 0

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current.Load()
	if cur.sourceIndex(src.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrSourceExists, src.ID)
	}
	next := cur.clone()
	next.sources = append(next.sources, src)
	e.current.Store(next)

	e.logger.Info("Source added", "source", src.ID, "ref", src.ExternalRef, "weight", src.Weight, "active", src.Active)
	e.publish(Event{Kind: EventSourceAdded, SourceID: src.ID, Timestamp: e.unixNow()})
	return nil
}

// UpdateSource changes the active flag and weight of a source.
func (e *Engine) UpdateSource(id string, active bool, weight uint64) error {
	if weight == 0 {
		return fmt.Errorf("%w: source %s has zero weight", ErrInvalidParameters, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current.Load()
	i := cur.sourceIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	next := cur.clone()
	next.sources[i].Active = active
	next.sources[i].Weight = weight
	e.current.Store(next)

	e.logger.Info("Source updated", "source", id, "weight", weight, "active", active)
	e.publish(Event{Kind: EventSourceUpdated, SourceID: id, Timestamp: e.unixNow()})
	return nil
}

// RemoveSource unregisters a source.
func (e *Engine) RemoveSource(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current.Load()
	i := cur.sourceIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	next := cur.clone()
	next.sources = append(next.sources[:i], next.sources[i+1:]...)
	e.current.Store(next)

	e.logger.Info("Source removed", "source", id)
	e.publish(Event{Kind: EventSourceRemoved, SourceID: id, Timestamp: e.unixNow()})
	return nil
}
