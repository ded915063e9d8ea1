// Package main runs the CI dashboard GraphQL API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/ciboard/config"
	"github.com/c360/ciboard/gateway/graphql"
	"github.com/c360/ciboard/health"
	"github.com/c360/ciboard/metric"
	"github.com/c360/ciboard/pkg/cache"
	"github.com/c360/ciboard/search"
	"github.com/c360/ciboard/upstream/distgit"
	"github.com/c360/ciboard/upstream/greenwave"
	"github.com/c360/ciboard/upstream/koji"
	"github.com/c360/ciboard/upstream/mbs"
	"github.com/c360/ciboard/upstream/waiverdb"
)

// Build information
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "ciboard-api"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	loader := config.NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		logger.Info("Configuration is valid")
		if cliCfg.LogLevel == "debug" {
			_, _ = fmt.Fprint(os.Stdout, cfg.String())
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()

	store, err := cache.Open(ctx, cfg.Cache, logger, registry)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}
	logger.Info("Lookup cache ready", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL())

	backends, monitor, err := setupBackends(cfg, store, logger, metrics)
	if err != nil {
		return err
	}

	server, err := setupServer(cfg, backends, monitor, registry, logger)
	if err != nil {
		return err
	}

	ready := make(chan struct{})
	go func() {
		select {
		case <-ready:
			logger.Info("CI dashboard API started", "address", server.Addr(), "path", cfg.Server.Path)
		case <-ctx.Done():
		}
	}()

	if err := server.Start(ctx, ready); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	// no-op unless Start returned without stopping the server
	if err := server.Stop(cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("CI dashboard API shutdown complete")
	return nil
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting CI dashboard API",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// setupBackends creates the upstream clients and registers a health probe
// for every configured one. Only search is critical.
func setupBackends(cfg *config.Config, store cache.Store, logger *slog.Logger, metrics *metric.Metrics) (graphql.Backends, *health.Monitor, error) {
	monitor := health.NewMonitor(5*time.Second, logger, metrics)

	searchClient := search.NewClient(cfg.Search, logger, metrics)
	monitor.Register("elasticsearch", true, searchClient.Ping)

	greenwaveClient, err := greenwave.NewClient(cfg.Greenwave, logger, metrics)
	if err != nil {
		return graphql.Backends{}, nil, fmt.Errorf("create greenwave client: %w", err)
	}
	if cfg.Greenwave.URL != "" {
		monitor.Register("greenwave", false, greenwaveClient.Ping)
	}

	waiverClient, err := waiverdb.NewClient(cfg.WaiverDB, logger, metrics)
	if err != nil {
		return graphql.Backends{}, nil, fmt.Errorf("create waiverdb client: %w", err)
	}
	if cfg.WaiverDB.URL != "" {
		monitor.Register("waiverdb", false, waiverClient.Ping)
	}

	kojiClient := koji.NewClient(cfg.Koji, store, logger, metrics)
	for _, name := range kojiClient.Instances() {
		monitor.Register("koji."+name, false, func(ctx context.Context) error {
			return kojiClient.Ping(ctx, name)
		})
	}

	mbsClient := mbs.NewClient(cfg.MBS, store, logger, metrics)
	distgitClient := distgit.NewClient(cfg.DistGit, logger, metrics)

	logger.Info("Backends configured",
		"search", cfg.Search.Addresses,
		"greenwave", cfg.Greenwave.URL != "",
		"waiverdb", cfg.WaiverDB.URL != "",
		"koji", kojiClient.Instances(),
		"mbs", mbsClient.Instances(),
		"distgit", distgitClient.Instances(),
		"probes", monitor.Names())

	return graphql.Backends{
		Search:    searchClient,
		Greenwave: greenwaveClient,
		WaiverDB:  waiverClient,
		Koji:      kojiClient,
		MBS:       mbsClient,
		DistGit:   distgitClient,
	}, monitor, nil
}

// setupServer builds the executor and HTTP server
func setupServer(cfg *config.Config, backends graphql.Backends, monitor *health.Monitor,
	registry *metric.MetricsRegistry, logger *slog.Logger,
) (*graphql.Server, error) {
	schema, err := graphql.Schema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	metrics := registry.CoreMetrics()
	resolver := graphql.NewResolver(backends, cfg.Search, logger, metrics)
	executor := graphql.NewExecutor(schema, resolver.Resolvers(), cfg.Server.MaxQueryDepth, logger)
	handler := graphql.NewHandler(executor, cfg.Server, logger, metrics)

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = registry.Handler()
	}

	server, err := graphql.NewServer(cfg.Server, handler, monitor, metricsHandler, logger)
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}
	if err := server.Setup(); err != nil {
		return nil, fmt.Errorf("setup server: %w", err)
	}
	return server, nil
}
