// Package config provides configuration loading and validation for the oracle
// service.
package config

import "errors"

var (
	// ErrNoFeedsConfigured indicates that no feed is configured.
	ErrNoFeedsConfigured = errors.New("at least one feed must be configured")
	// ErrInvalidAggregateMode indicates that the aggregation mode is invalid.
	ErrInvalidAggregateMode = errors.New("invalid aggregate_mode")
	// ErrTLSConfigIncomplete indicates that TLS config is incomplete.
	ErrTLSConfigIncomplete = errors.New("TLS cert and key must be specified when TLS is enabled")
	// ErrTLSCertNotFound indicates that the TLS cert file was not found.
	ErrTLSCertNotFound = errors.New("TLS cert file not found")
	// ErrTLSKeyNotFound indicates that the TLS key file was not found.
	ErrTLSKeyNotFound = errors.New("TLS key file not found")
	// ErrSourceTypeRequired indicates that source type is required.
	ErrSourceTypeRequired = errors.New("source type is required")
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = errors.New("source name is required")
	// ErrUnknownSourceType indicates that the source type is unknown.
	ErrUnknownSourceType = errors.New("unknown source type")
	// ErrDuplicateSource indicates two sources with the same reference.
	ErrDuplicateSource = errors.New("duplicate source")
	// ErrSymbolRequired indicates a feed without symbol.
	ErrSymbolRequired = errors.New("feed symbol is required")
	// ErrDuplicateFeed indicates two feeds with the same symbol.
	ErrDuplicateFeed = errors.New("duplicate feed")
	// ErrInvalidSchedule indicates an unparseable cron schedule.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrInvalidParameters indicates out of range feed parameters.
	ErrInvalidParameters = errors.New("invalid feed parameters")
	// ErrFeedSourceRequired indicates a feed source binding without id or ref.
	ErrFeedSourceRequired = errors.New("feed source id and ref are required")
	// ErrUnknownSourceRef indicates a binding to a source that is not configured.
	ErrUnknownSourceRef = errors.New("unknown source reference")
	// ErrInvalidStoreType indicates an unsupported store type.
	ErrInvalidStoreType = errors.New("invalid store type")
	// ErrRedisAddrRequired indicates a redis store without address.
	ErrRedisAddrRequired = errors.New("redis addr is required")
	// ErrAuditDSNRequired indicates an enabled audit log without DSN.
	ErrAuditDSNRequired = errors.New("audit dsn is required when audit is enabled")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
