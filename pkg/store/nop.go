package store

import "context"

// Nop is an AuditLog that discards everything. Used when auditing is off.
type Nop struct{}

var _ AuditLog = Nop{}

func (Nop) RecordCycle(context.Context, CycleRecord) error { return nil }

func (Nop) RecordSource(context.Context, SourceRecord) error { return nil }
