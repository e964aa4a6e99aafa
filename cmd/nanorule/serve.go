package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/coffersTech/nanorule/internal/engine"
	"github.com/coffersTech/nanorule/internal/jobs"
	"github.com/coffersTech/nanorule/internal/ruleset"
	"github.com/coffersTech/nanorule/internal/server"
	"github.com/coffersTech/nanorule/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := storage.OpenResultStore(filepath.Join(cfg.Data.Dir, "results.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}
	set := ruleset.NewSet(rules)
	analyzer, compiler := newAnalyzer(cfg, logger)
	stats := engine.NewStatsCollector(cfg.Data.Dir)

	registry := jobs.NewRegistry()
	pool := jobs.NewPool(registry, jobs.PoolOptions{
		Workers: cfg.Analysis.Workers,
		Logger:  logger,
	})

	srv := server.NewAPIServer(server.Config{
		Analyzer: analyzer,
		Compiler: compiler,
		Rules:    set,
		Pool:     pool,
		Store:    store,
		Stats:    stats,
		Read: storage.ReadOptions{
			MaxBytes:  cfg.Analysis.MaxContentBytes,
			ChunkSize: cfg.Analysis.ChunkSize,
		},
		Logger: logger,
	})

	logger.Info("nanorule starting",
		"addr", cfg.Server.Addr,
		"data", cfg.Data.Dir,
		"rules", len(rules),
		"workers", cfg.Analysis.Workers)

	ctx := cmd.Context()
	g, gctx := errgroup.WithContext(ctx)

	registry.StartCleanupLoop(gctx, time.Minute, time.Hour)
	if cfg.Results.Retention > 0 {
		g.Go(func() error {
			store.RunCleaner(gctx, cfg.Results.CleanupInterval, cfg.Results.Retention, logger)
			return nil
		})
	}
	if cfg.Rules.File != "" && cfg.Rules.Watch {
		watcher := ruleset.NewWatcher(cfg.Rules.File, set, compiler, logger)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		return srv.Start(cfg.Server.Addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Warn("analyses cancelled at shutdown", "error", err)
		}
		if err := stats.Save(); err != nil {
			logger.Error("failed to save stats", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("nanorule exited gracefully")
	return nil
}
