package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/epayprotocol/oracle-usdp/pkg/config"
	"github.com/epayprotocol/oracle-usdp/pkg/logging"
	"github.com/epayprotocol/oracle-usdp/pkg/metrics"
	"github.com/epayprotocol/oracle-usdp/pkg/server/api"
	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
	"github.com/epayprotocol/oracle-usdp/pkg/server/sources"
	"github.com/epayprotocol/oracle-usdp/pkg/server/updater"
	"github.com/epayprotocol/oracle-usdp/pkg/store"
	"github.com/epayprotocol/oracle-usdp/pkg/store/postgres"
	"github.com/epayprotocol/oracle-usdp/pkg/store/redis"
	"github.com/epayprotocol/oracle-usdp/pkg/version"

	// Import sources to register them
	_ "github.com/epayprotocol/oracle-usdp/pkg/server/sources/cex"
	_ "github.com/epayprotocol/oracle-usdp/pkg/server/sources/evm"
	_ "github.com/epayprotocol/oracle-usdp/pkg/server/sources/static"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	envFile    = flag.String("env", ".env", "Optional .env file loaded before the configuration")
	showVer    = flag.Bool("version", false, "Show version and exit")
	once       = flag.Bool("once", false, "Run a single update cycle for every feed and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("oracle-usdp version %s\n", version.Version)
		os.Exit(0)
	}

	// Missing .env is fine; variables may come from the environment.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting oracle-usdp", "version", version.Version, "feeds", len(cfg.Feeds))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Oracle stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	states, closeStates, err := openStateStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStates()

	audit, closeAudit, err := openAuditLog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAudit()

	running, err := startSources(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, src := range running {
			if err := src.Stop(); err != nil {
				logger.Warn("Failed to stop source", "source", src.Name(), "error", err)
			}
		}
	}()

	var hub *api.WebSocketHub
	if cfg.Server.WebSocket.Enabled {
		hub = api.NewWebSocketHub(logger)
	}

	upd := updater.New(
		updater.WithStateStore(states),
		updater.WithAuditLog(audit),
		updater.WithLogger(logger),
	)
	for i := range cfg.Feeds {
		feed, err := buildFeed(&cfg.Feeds[i], running, hub, logger)
		if err != nil {
			return err
		}
		if err := upd.AddFeed(feed); err != nil {
			return err
		}
	}

	if err := upd.Restore(ctx); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	if *once {
		return upd.RunAll(ctx)
	}

	if err := upd.Start(ctx); err != nil {
		return err
	}
	defer upd.Stop()

	var certFile, keyFile string
	if cfg.Server.HTTP.TLS.Enabled {
		certFile, keyFile = cfg.Server.HTTP.TLS.Cert, cfg.Server.HTTP.TLS.Key
	}
	server := api.NewServer(api.Config{
		Addr:         cfg.Server.HTTP.Addr,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout.ToDuration(),
		WriteTimeout: cfg.Server.HTTP.WriteTimeout.ToDuration(),
		CertFile:     certFile,
		KeyFile:      keyFile,
		EnableAdmin:  cfg.Server.Admin.Enabled,
	}, upd, hub, logger)
	if reader, ok := audit.(store.AuditReader); ok {
		server.SetAuditReader(reader)
	}

	if cfg.Server.Admin.Enabled {
		logger.Warn("Admin endpoints enabled - expose the API only on a trusted network")
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	logger.Info("Shutting down gracefully...")
	return server.Stop(shutdownCtx)
}

func openStateStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (store.StateStore, func(), error) {
	if cfg.Store.Type != "redis" {
		logger.Info("Using in-memory state store")
		return store.NewMemory(), func() {}, nil
	}

	rc := cfg.Store.Redis
	s, err := redis.New(ctx, redis.Options{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		KeyPrefix: rc.KeyPrefix,
		Timeout:   rc.Timeout.ToDuration(),
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open redis store: %w", err)
	}
	logger.Info("Using redis state store", "addr", rc.Addr, "prefix", rc.KeyPrefix)
	return s, func() { _ = s.Close() }, nil
}

func openAuditLog(ctx context.Context, cfg *config.Config, logger *logging.Logger) (store.AuditLog, func(), error) {
	if !cfg.Audit.Enabled {
		return store.Nop{}, func() {}, nil
	}

	a, err := postgres.Open(ctx, cfg.Audit.DSN, cfg.Audit.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}
	if err := a.EnsureSchema(ctx); err != nil {
		_ = a.Close()
		return nil, nil, err
	}
	logger.Info("Audit log enabled")
	return a, func() { _ = a.Close() }, nil
}

// startSources creates, initializes and starts every enabled source, keyed by
// its "type.name" reference.
func startSources(ctx context.Context, cfg *config.Config, logger *logging.Logger) (map[string]sources.Source, error) {
	running := make(map[string]sources.Source)
	for i := range cfg.Sources {
		sourceCfg := &cfg.Sources[i]
		if !sourceCfg.Enabled {
			continue
		}

		logger.Info("Initializing source", "type", sourceCfg.Type, "name", sourceCfg.Name)

		// Add logger to config so sources don't create their own
		if sourceCfg.Config == nil {
			sourceCfg.Config = make(map[string]interface{})
		}
		sourceCfg.Config["logger"] = logger

		source, err := sources.Create(sourceCfg.Type, sourceCfg.Name, sourceCfg.Config)
		if err != nil {
			logger.Warn("Failed to create source", "type", sourceCfg.Type, "name", sourceCfg.Name, "error", err)
			continue
		}

		if err := source.Initialize(ctx); err != nil {
			logger.Warn("Failed to initialize source", "source", sourceCfg.Ref(), "error", err)
			continue
		}

		if err := source.Start(ctx); err != nil {
			logger.Warn("Failed to start source", "source", sourceCfg.Ref(), "error", err)
			continue
		}

		running[sourceCfg.Ref()] = source
		logger.Info("Source started", "source", sourceCfg.Ref(), "symbols", source.Symbols())
	}

	if len(running) == 0 {
		return nil, fmt.Errorf("no sources available")
	}
	return running, nil
}

func buildFeed(fc *config.FeedConfig, running map[string]sources.Source, hub *api.WebSocketHub, logger *logging.Logger) (*updater.Feed, error) {
	registry := make([]engine.SourceConfig, 0, len(fc.Sources))
	bindings := make(map[string]sources.Source, len(fc.Sources))
	for _, fs := range fc.Sources {
		registry = append(registry, engine.SourceConfig{
			ID:          fs.ID,
			ExternalRef: fs.Ref,
			Active:      fs.IsActive(),
			Weight:      fs.Weight,
		})
		if src, ok := running[fs.Ref]; ok {
			bindings[fs.Ref] = src
		} else {
			logger.Warn("Feed source is not running", "symbol", fc.Symbol, "source", fs.ID, "ref", fs.Ref)
		}
	}

	opts := []engine.Option{
		engine.WithHistoryCapacity(fc.HistoryCapacity),
		engine.WithAggregateMode(fc.AggregateMode),
		engine.WithLogger(logger),
		engine.WithSources(registry...),
	}
	if hub != nil {
		opts = append(opts, engine.WithEventSink(hub))
	}

	e, err := engine.New(fc.Symbol, feedParameters(fc.Parameters), opts...)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", fc.Symbol, err)
	}
	return updater.NewFeed(e, bindings, fc.Schedule, fc.FetchTimeout.ToDuration(), logger)
}

func feedParameters(p config.FeedParameters) engine.Parameters {
	return engine.Parameters{
		PriceDeviationThresholdBps: p.PriceDeviationThresholdBps,
		CircuitBreakerThresholdBps: p.CircuitBreakerThresholdBps,
		MaxPriceAge:                p.MaxPriceAge.Seconds(),
		TwapPeriod:                 p.TwapPeriod.Seconds(),
		MinSourcesRequired:         p.MinSourcesRequired,
	}
}
