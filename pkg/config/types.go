package config

import "time"

// Config is the root configuration structure
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Sources []SourceConfig `yaml:"sources"`
	Feeds   []FeedConfig   `yaml:"feeds"`
	Store   StoreConfig    `yaml:"store"`
	Audit   AuditConfig    `yaml:"audit"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Logging LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	HTTP      HTTPConfig  `yaml:"http"`
	WebSocket WSConfig    `yaml:"websocket"`
	Admin     AdminConfig `yaml:"admin"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr         string    `yaml:"addr"`
	ReadTimeout  Duration  `yaml:"read_timeout"`
	WriteTimeout Duration  `yaml:"write_timeout"`
	TLS          TLSConfig `yaml:"tls"`
}

// WSConfig configures the event stream
type WSConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AdminConfig enables the administrative endpoints. They carry no
// authentication and must only be exposed on a trusted network.
type AdminConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// SourceConfig configures a price source. Feeds reference it as "type.name".
type SourceConfig struct {
	Type    string                 `yaml:"type"`
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// Ref returns the "type.name" reference of the source.
func (sc *SourceConfig) Ref() string {
	return sc.Type + "." + sc.Name
}

// FeedConfig configures one aggregated price feed.
type FeedConfig struct {
	Symbol          string             `yaml:"symbol"`
	Schedule        string             `yaml:"schedule"`
	FetchTimeout    Duration           `yaml:"fetch_timeout"`
	HistoryCapacity int                `yaml:"history_capacity"`
	AggregateMode   string             `yaml:"aggregate_mode"`
	Parameters      FeedParameters     `yaml:"parameters"`
	Sources         []FeedSourceConfig `yaml:"sources"`
}

// FeedParameters are the engine thresholds of a feed.
type FeedParameters struct {
	PriceDeviationThresholdBps uint64   `yaml:"price_deviation_threshold_bps"`
	CircuitBreakerThresholdBps uint64   `yaml:"circuit_breaker_threshold_bps"`
	MaxPriceAge                Duration `yaml:"max_price_age"`
	TwapPeriod                 Duration `yaml:"twap_period"`
	MinSourcesRequired         int      `yaml:"min_sources_required"`
}

// FeedSourceConfig binds a configured source to a feed.
type FeedSourceConfig struct {
	ID     string `yaml:"id"`
	Ref    string `yaml:"ref"`
	Weight uint64 `yaml:"weight"`
	Active *bool  `yaml:"active"`
}

// IsActive reports whether the binding participates in aggregation. Bindings
// are active unless disabled explicitly.
func (f *FeedSourceConfig) IsActive() bool {
	return f.Active == nil || *f.Active
}

// StoreConfig selects where engine state snapshots are kept
type StoreConfig struct {
	Type  string      `yaml:"type"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis state store
type RedisConfig struct {
	Addr      string   `yaml:"addr"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"key_prefix"`
	Timeout   Duration `yaml:"timeout"`
}

// AuditConfig configures the postgres audit log
type AuditConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

// Seconds returns the duration in whole seconds.
func (d Duration) Seconds() uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(time.Duration(d) / time.Second)
}
