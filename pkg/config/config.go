package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSchedule        = "@every 30s"
	DefaultFetchTimeout    = 10 * time.Second
	DefaultHistoryCapacity = 120
	DefaultAggregateMode   = "average"
	DefaultSourceWeight    = 100
)

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration, expanding ${VAR} references from the
// environment, and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}
	if cfg.Server.HTTP.ReadTimeout == 0 {
		cfg.Server.HTTP.ReadTimeout = Duration(15 * time.Second)
	}
	if cfg.Server.HTTP.WriteTimeout == 0 {
		cfg.Server.HTTP.WriteTimeout = Duration(15 * time.Second)
	}

	for i := range cfg.Feeds {
		applyFeedDefaults(&cfg.Feeds[i])
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if cfg.Store.Redis.KeyPrefix == "" {
		cfg.Store.Redis.KeyPrefix = "oracle"
	}
	if cfg.Store.Redis.Timeout == 0 {
		cfg.Store.Redis.Timeout = Duration(5 * time.Second)
	}

	if cfg.Audit.MaxOpenConns == 0 {
		cfg.Audit.MaxOpenConns = 5
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func applyFeedDefaults(feed *FeedConfig) {
	if feed.Schedule == "" {
		feed.Schedule = DefaultSchedule
	}
	if feed.FetchTimeout == 0 {
		feed.FetchTimeout = Duration(DefaultFetchTimeout)
	}
	if feed.HistoryCapacity == 0 {
		feed.HistoryCapacity = DefaultHistoryCapacity
	}
	if feed.AggregateMode == "" {
		feed.AggregateMode = DefaultAggregateMode
	}

	p := &feed.Parameters
	if p.PriceDeviationThresholdBps == 0 {
		p.PriceDeviationThresholdBps = 500
	}
	if p.CircuitBreakerThresholdBps == 0 {
		p.CircuitBreakerThresholdBps = 1000
	}
	if p.MaxPriceAge == 0 {
		p.MaxPriceAge = Duration(time.Hour)
	}
	if p.TwapPeriod == 0 {
		p.TwapPeriod = Duration(30 * time.Minute)
	}
	if p.MinSourcesRequired == 0 {
		p.MinSourcesRequired = 2
	}

	for i := range feed.Sources {
		if feed.Sources[i].Weight == 0 {
			feed.Sources[i].Weight = DefaultSourceWeight
		}
		if feed.Sources[i].ID == "" {
			feed.Sources[i].ID = feed.Sources[i].Ref
		}
	}
}

// Feed returns the feed configured for symbol.
func (c *Config) Feed(symbol string) (*FeedConfig, bool) {
	for i := range c.Feeds {
		if c.Feeds[i].Symbol == symbol {
			return &c.Feeds[i], true
		}
	}
	return nil, false
}

// Source returns the source with the given "type.name" reference.
func (c *Config) Source(ref string) (*SourceConfig, bool) {
	for i := range c.Sources {
		if c.Sources[i].Ref() == ref {
			return &c.Sources[i], true
		}
	}
	return nil, false
}

// GetString retrieves a string value from the source configuration.
func (sc *SourceConfig) GetString(key, defaultValue string) string {
	if val, ok := sc.Config[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultValue
}
