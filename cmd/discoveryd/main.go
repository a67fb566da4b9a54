// Discoveryd routes natural-language queries to registered resources.
//
// This binary starts the discovery daemon with full service initialization:
// resource registry, embedding provider, vector store, change-notification
// listener, vectorization pipeline, and the HTTP matching API.
//
// Configuration is loaded from a YAML file plus DISCOVERYD_* environment
// overrides. See internal/config for details.
//
// Usage:
//
//	# Start with the default config path
//	discoveryd
//
//	# Explicit config file
//	discoveryd -config /etc/discoveryd/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"github.com/fyrsmithlabs/discoveryd/internal/embeddings"
	"github.com/fyrsmithlabs/discoveryd/internal/logging"
	"github.com/fyrsmithlabs/discoveryd/internal/matcher"
	"github.com/fyrsmithlabs/discoveryd/internal/pipeline"
	"github.com/fyrsmithlabs/discoveryd/internal/registry"
	"github.com/fyrsmithlabs/discoveryd/internal/telemetry"
	"github.com/fyrsmithlabs/discoveryd/internal/trigger"
	"github.com/fyrsmithlabs/discoveryd/internal/vectorstore"
	"github.com/fyrsmithlabs/discoveryd/pkg/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("discoveryd\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n",
			version, gitCommit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// run wires the daemon and blocks until the context is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Builds the resource registry and starts the config watcher
//  4. Connects infrastructure (NATS, vector store, embedding provider)
//  5. Starts the vectorization pipeline and indexes the catalog
//  6. Starts the change-notification listener
//  7. Starts the HTTP server
//  8. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting discoveryd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Int("resources", len(cfg.Resources)))

	tel, err := telemetry.Init("discoveryd", version, logger)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = tel.Shutdown(shutdownCtx)
		}()
	}

	catalog, err := registry.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("building resource registry: %w", err)
	}
	go func() {
		if err := catalog.Watch(ctx, configPath); err != nil && ctx.Err() == nil {
			logger.Warn("config watcher stopped", zap.Error(err))
		}
	}()

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info("dependencies initialized",
		zap.Bool("nats_connected", deps.natsConn != nil),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("embedding_model", cfg.Embedding.Model))

	pipe := pipeline.New(cfg, catalog, deps.provider, deps.store, logger)
	go func() { _ = pipe.Run(ctx) }()

	// Index the whole catalog before accepting queries so the store is
	// never empty at startup.
	if err := pipe.ReindexAll(ctx); err != nil {
		logger.Warn("initial indexing incomplete, stale or missing vectors possible",
			zap.Error(err))
	}

	listener := trigger.NewListener(deps.natsConn, cfg.Trigger,
		sourceResolver(catalog), pipe.Submit, trigger.RealClock(), logger)
	go func() { _ = listener.Run(ctx, sourceTables(cfg)) }()

	usage := matcher.NewUsageTracker(24 * time.Hour)
	match := matcher.New(cfg, catalog, deps.provider, deps.store,
		matcher.Signals{}, usage, logger)

	srv, err := server.NewServer(match, catalog, logger, &server.Config{
		Host: "0.0.0.0",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	return ctx.Err()
}

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	natsConn *nats.Conn
	store    vectorstore.Store
	provider embeddings.Provider
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
	if d.provider != nil {
		_ = d.provider.Close()
	}
}

// initDependencies connects NATS, the vector store backend, and the
// embedding provider.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	nc, err := trigger.Connect(cfg.NATS, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to NATS", zap.String("url", cfg.NATS.URL))

	provider, err := embeddings.NewProvider(cfg.Embedding, logger)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	store, err := vectorstore.NewFromConfig(cfg.Store, cfg.Embedding.Dimension, logger)
	if err != nil {
		nc.Close()
		_ = provider.Close()
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	return &dependencies{natsConn: nc, store: store, provider: provider}, nil
}

// sourceResolver maps a source table to the IDs of the resources it backs.
func sourceResolver(catalog *registry.Registry) trigger.Resolver {
	return func(table string) []string {
		descriptors := catalog.BySourceTable(table)
		ids := make([]string, 0, len(descriptors))
		for _, desc := range descriptors {
			ids = append(ids, desc.ID)
		}
		return ids
	}
}

// sourceTables returns the distinct source tables declared in configuration.
func sourceTables(cfg *config.Config) []string {
	seen := make(map[string]struct{}, len(cfg.Resources))
	tables := make([]string, 0, len(cfg.Resources))
	for _, r := range cfg.Resources {
		if _, ok := seen[r.Table]; ok {
			continue
		}
		seen[r.Table] = struct{}{}
		tables = append(tables, r.Table)
	}
	return tables
}
