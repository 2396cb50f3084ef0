package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	maxThresholdBps = 10_000
	maxTwapPeriod   = 7 * 24 * time.Hour
)

var validSourceTypes = []string{"evm", "cex", "static"}

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	refs := make(map[string]bool, len(cfg.Sources))
	for i := range cfg.Sources {
		source := &cfg.Sources[i]
		if err := validateSourceConfig(source); err != nil {
			return fmt.Errorf("source %d (%s): %w", i, source.Ref(), err)
		}
		if _, dup := refs[source.Ref()]; dup {
			return fmt.Errorf("source %d: %w: %s", i, ErrDuplicateSource, source.Ref())
		}
		refs[source.Ref()] = source.Enabled
	}

	if len(cfg.Feeds) == 0 {
		return ErrNoFeedsConfigured
	}
	symbols := make(map[string]struct{}, len(cfg.Feeds))
	for i := range cfg.Feeds {
		feed := &cfg.Feeds[i]
		if err := validateFeedConfig(feed, refs); err != nil {
			return fmt.Errorf("feed %d (%s): %w", i, feed.Symbol, err)
		}
		if _, dup := symbols[feed.Symbol]; dup {
			return fmt.Errorf("feed %d: %w: %s", i, ErrDuplicateFeed, feed.Symbol)
		}
		symbols[feed.Symbol] = struct{}{}
	}

	if err := validateStoreConfig(&cfg.Store); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if cfg.Audit.Enabled && cfg.Audit.DSN == "" {
		return fmt.Errorf("audit config: %w", ErrAuditDSNRequired)
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return ErrTLSConfigIncomplete
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSCertNotFound, cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSKeyNotFound, cfg.HTTP.TLS.Key)
		}
	}
	return nil
}

func validateSourceConfig(cfg *SourceConfig) error {
	if cfg.Type == "" {
		return ErrSourceTypeRequired
	}
	typeValid := false
	for _, t := range validSourceTypes {
		if strings.ToLower(cfg.Type) == t {
			typeValid = true
			break
		}
	}
	if !typeValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrUnknownSourceType, cfg.Type, strings.Join(validSourceTypes, ", "))
	}
	if cfg.Name == "" {
		return ErrSourceNameRequired
	}
	return nil
}

func validateFeedConfig(feed *FeedConfig, refs map[string]bool) error {
	if feed.Symbol == "" {
		return ErrSymbolRequired
	}
	if _, err := cron.ParseStandard(feed.Schedule); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, feed.Schedule, err)
	}
	mode := strings.ToLower(feed.AggregateMode)
	if mode != "average" && mode != "median" {
		return fmt.Errorf("%w: %s (must be 'average' or 'median')", ErrInvalidAggregateMode, feed.AggregateMode)
	}
	if feed.HistoryCapacity < 0 {
		return fmt.Errorf("%w: history_capacity must be positive", ErrInvalidParameters)
	}

	p := feed.Parameters
	if p.PriceDeviationThresholdBps > maxThresholdBps || p.CircuitBreakerThresholdBps > maxThresholdBps {
		return fmt.Errorf("%w: thresholds must not exceed %d bps", ErrInvalidParameters, maxThresholdBps)
	}
	if p.MaxPriceAge.ToDuration() < time.Second || p.TwapPeriod.ToDuration() < time.Second {
		return fmt.Errorf("%w: max_price_age and twap_period must be at least 1s", ErrInvalidParameters)
	}
	if p.TwapPeriod.ToDuration() > maxTwapPeriod {
		return fmt.Errorf("%w: twap_period must not exceed %s", ErrInvalidParameters, maxTwapPeriod)
	}
	if p.MinSourcesRequired < 1 {
		return fmt.Errorf("%w: min_sources_required must be at least 1", ErrInvalidParameters)
	}

	ids := make(map[string]struct{}, len(feed.Sources))
	for i, fs := range feed.Sources {
		if fs.ID == "" || fs.Ref == "" {
			return fmt.Errorf("source %d: %w", i, ErrFeedSourceRequired)
		}
		if _, ok := refs[fs.Ref]; !ok {
			return fmt.Errorf("source %d: %w: %s", i, ErrUnknownSourceRef, fs.Ref)
		}
		if _, dup := ids[fs.ID]; dup {
			return fmt.Errorf("source %d: %w: %s", i, ErrDuplicateSource, fs.ID)
		}
		ids[fs.ID] = struct{}{}
	}
	return nil
}

func validateStoreConfig(cfg *StoreConfig) error {
	switch strings.ToLower(cfg.Type) {
	case "memory":
		return nil
	case "redis":
		if cfg.Redis.Addr == "" {
			return ErrRedisAddrRequired
		}
		return nil
	default:
		return fmt.Errorf("%w: %s (must be 'memory' or 'redis')", ErrInvalidStoreType, cfg.Type)
	}
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
