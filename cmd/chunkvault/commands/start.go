package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chunkvault/chunkvault/internal/logger"
	"github.com/chunkvault/chunkvault/pkg/api"
	"github.com/chunkvault/chunkvault/pkg/config"
	"github.com/chunkvault/chunkvault/pkg/gc"
	"github.com/chunkvault/chunkvault/pkg/metrics"
	"github.com/chunkvault/chunkvault/pkg/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ChunkVault server",
	Long: `Start the ChunkVault server.

The server runs the collection scheduler and exposes the admin API.
With the coordinator enabled, multiple nodes can run concurrently; the
Redis lease ensures only one collects at a time.

Examples:
  # Start with default config location
  chunkvault start

  # Start with custom config
  chunkvault start --config /etc/chunkvault/config.yaml

  # Override config via environment
  CHUNKVAULT_LOGGING_LEVEL=DEBUG chunkvault start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.close()
	cfg := b.cfg

	logger.Info("ChunkVault starting",
		"version", Version,
		logger.KeyNode, b.node,
		logger.KeyBackend, cfg.Store.Backend,
		"database", string(cfg.Database.Type),
		"coordinator", cfg.Coordinator.Enabled,
	)

	// Metrics registry must exist before the collector constructs its
	// metric instances
	var collectorOpts []gc.CollectorOption
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		collectorOpts = append(collectorOpts, gc.WithMetrics(metrics.NewGCMetrics()))
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}
	collectorOpts = append(collectorOpts, gc.WithNode(b.node))
	if notifier := config.CreateNotifier(b.rdb); notifier != nil {
		collectorOpts = append(collectorOpts, gc.WithNotifier(notifier))
	}

	collector := gc.New(b.store, b.ledger, collectorOpts...)

	sched := scheduler.New(collector, b.ledger, b.store, b.coord, scheduler.Config{
		Interval:              cfg.GC.Interval,
		Strategy:              cfg.GC.Strategy,
		BatchSize:             cfg.GC.BatchSize,
		PressureInterval:      cfg.GC.PressureInterval,
		MinFreeSpacePercent:   cfg.GC.MinFreeSpacePercent,
		PressureGraceOverride: cfg.GC.PressureGraceOverride,
		PressureBatchSize:     cfg.GC.PressureBatchSize,
		OldGenerationEvery:    cfg.GC.OldGenerationEvery,
	})
	sched.Start(ctx)
	defer sched.Stop()

	errChan := make(chan error, 2)

	// Metrics server on its own port so scrapes never contend with
	// admin traffic
	if cfg.Metrics.Enabled {
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metrics.Handler(),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server failed: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if cfg.API.IsEnabled() {
		router := api.NewRouter(b.store, b.ledger, sched, b.coord)
		server := api.NewServer(cfg.API, router)
		go func() {
			if err := server.Start(ctx); err != nil {
				errChan <- err
			}
		}()
	}

	// Purge soft-deleted rows whose recovery window elapsed, once per day
	go runPurgeLoop(ctx, b)

	logger.Info("ChunkVault started")

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		return nil
	case err := <-errChan:
		return err
	}
}

// runPurgeLoop periodically removes expired soft-deleted ledger rows.
func runPurgeLoop(ctx context.Context, b *backends) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := b.ledger.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("recovery window purge failed", logger.Err(err))
				continue
			}
			if purged > 0 {
				logger.Info("purged expired ledger rows", "purged", purged)
			}
		}
	}
}
