// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agenthub-foundation/agenthub/lib/blobstore"
	"github.com/agenthub-foundation/agenthub/lib/clock"
	"github.com/agenthub-foundation/agenthub/lib/config"
	"github.com/agenthub-foundation/agenthub/lib/downloads"
	"github.com/agenthub-foundation/agenthub/lib/metastore"
	"github.com/agenthub-foundation/agenthub/lib/principal"
	"github.com/agenthub-foundation/agenthub/lib/publish"
	"github.com/agenthub-foundation/agenthub/lib/ranking"
	"github.com/agenthub-foundation/agenthub/lib/search"
	"github.com/agenthub-foundation/agenthub/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		showVersion bool
		configPath  string
	)
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.StringVar(&configPath, "config", "", "path to agenthub.yaml (defaults to $AGENTHUB_CONFIG, then built-in defaults)")
	flag.Parse()

	if showVersion {
		fmt.Printf("agenthub-registry-service %s\n", version.Info())
		return nil
	}

	logger := newLogger()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("preparing data directories: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meta, err := metastore.Open(metastore.Config{
		Path:   cfg.Paths.Database,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	defer meta.Close()

	blobs, err := blobstore.NewFS(cfg.Paths.Blobs)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}

	clk := clock.Real()

	searchIndex, err := search.NewIndex(search.Config{
		Store:  meta,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("creating search index: %w", err)
	}

	engine, err := ranking.NewEngine(ranking.Config{
		Store:             meta,
		Clock:             clk,
		Logger:            logger,
		WindowWidth:       cfg.Ranking.WindowWidth.Std(),
		WindowCount:       cfg.Ranking.WindowCount,
		RecomputeInterval: cfg.Ranking.RecomputeInterval.Std(),
		PopularTTL:        cfg.Ranking.PopularTTL.Std(),
		RecentTTL:         cfg.Ranking.RecentTTL.Std(),
		TrendingTTL:       cfg.Ranking.TrendingTTL.Std(),
	})
	if err != nil {
		return fmt.Errorf("creating ranking engine: %w", err)
	}

	recorder, err := downloads.NewRecorder(downloads.Config{
		Store:         meta,
		Clock:         clk,
		Logger:        logger,
		BucketWidth:   cfg.Downloads.BucketWidth.Std(),
		QueueSize:     cfg.Downloads.QueueSize,
		RetryAttempts: cfg.Downloads.RetryAttempts,
		RetryDelay:    cfg.Downloads.RetryDelay.Std(),
		OnCounted:     engine.Notify,
	})
	if err != nil {
		return fmt.Errorf("creating download recorder: %w", err)
	}
	defer recorder.Close()

	coordinator, err := publish.NewCoordinator(publish.Config{
		Meta:              meta,
		Blobs:             blobs,
		Clock:             clk,
		Logger:            logger,
		PendingStaleness:  cfg.Publish.PendingStaleness.Std(),
		StorageTimeout:    cfg.Publish.StorageTimeout.Std(),
		RetryAttempts:     cfg.Publish.RetryAttempts,
		RetryInitialDelay: cfg.Publish.RetryInitialDelay.Std(),
		OrphanGrace:       cfg.Publish.OrphanGrace.Std(),
		SweepInterval:     cfg.Publish.SweepInterval.Std(),
		OnPublished: func(pkg string) {
			engine.Notify(pkg)
			searchIndex.Invalidate()
		},
	})
	if err != nil {
		return fmt.Errorf("creating publish coordinator: %w", err)
	}

	publishers, err := buildPublishers(cfg.Publishers)
	if err != nil {
		return fmt.Errorf("building publisher set: %w", err)
	}

	// Prime the ranking views before serving so the first list
	// request does not pay for a full aggregate replay.
	if err := engine.Recompute(ctx); err != nil {
		return fmt.Errorf("initial ranking recompute: %w", err)
	}

	registryService := &RegistryService{
		meta:        meta,
		blobs:       blobs,
		coordinator: coordinator,
		search:      searchIndex,
		ranking:     engine,
		downloads:   recorder,
		publishers:  publishers,
		clock:       clk,
		startedAt:   clk.Now(),
		logger:      logger,
	}

	// Background loops: pending/orphan sweeps and ranking recompute.
	go coordinator.Run(ctx)
	go engine.Run(ctx)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- registryService.serve(ctx, cfg.Paths.Socket)
	}()

	logger.Info("registry service running",
		"environment", string(cfg.Environment),
		"socket", cfg.Paths.Socket,
		"database", cfg.Paths.Database,
		"blobs", cfg.Paths.Blobs,
		"publishers", len(publishers),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-socketDone; err != nil {
		logger.Error("socket listener error", "error", err)
	}

	return nil
}

// loadConfig resolves the configuration source: explicit --config
// flag, then AGENTHUB_CONFIG, then built-in development defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("AGENTHUB_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// buildPublishers converts the config's publishers map into
// principals carrying their publish grants.
func buildPublishers(grants map[string][]string) (map[string]*principal.Principal, error) {
	publishers := make(map[string]*principal.Principal, len(grants))
	for id, patterns := range grants {
		p, err := principal.New(id, patterns...)
		if err != nil {
			return nil, fmt.Errorf("publisher %q: %w", id, err)
		}
		publishers[id] = p
	}
	return publishers, nil
}

func newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// RegistryService is the core service state shared by all connection
// handlers.
type RegistryService struct {
	meta        metastore.Store
	blobs       blobstore.Store
	coordinator *publish.Coordinator
	search      *search.Index
	ranking     *ranking.Engine
	downloads   *downloads.Recorder
	publishers  map[string]*principal.Principal
	clock       clock.Clock
	startedAt   time.Time
	logger      *slog.Logger
}
