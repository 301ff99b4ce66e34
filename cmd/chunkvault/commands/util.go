package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/chunkvault/chunkvault/internal/logger"
	"github.com/chunkvault/chunkvault/pkg/config"
	"github.com/chunkvault/chunkvault/pkg/coordinator"
	"github.com/chunkvault/chunkvault/pkg/gc"
	"github.com/chunkvault/chunkvault/pkg/ledger"
	"github.com/chunkvault/chunkvault/pkg/store"
)

// backends bundles everything a command needs to touch the system.
type backends struct {
	cfg    *config.Config
	store  store.Store
	ledger *ledger.Ledger
	rdb    redis.UniversalClient
	coord  coordinator.Coordinator
	node   string
}

// openBackends loads config, configures logging, and opens the store,
// the ledger and the coordinator. Callers must defer close.
func openBackends(ctx context.Context) (*backends, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	chunkStore, err := config.CreateStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload store: %w", err)
	}

	ldg, err := config.CreateLedger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	node, err := os.Hostname()
	if err != nil {
		node = "unknown"
	}

	rdb := config.CreateRedisClient(cfg)
	coord := config.CreateCoordinator(rdb, cfg, node)

	return &backends{
		cfg:    cfg,
		store:  chunkStore,
		ledger: ldg,
		rdb:    rdb,
		coord:  coord,
		node:   node,
	}, nil
}

func (b *backends) close() {
	if err := b.ledger.Close(); err != nil {
		logger.Warn("ledger close", logger.Err(err))
	}
	if b.rdb != nil {
		if err := b.rdb.Close(); err != nil {
			logger.Warn("redis close", logger.Err(err))
		}
	}
}

// newCollector builds a collector over the opened backends.
func (b *backends) newCollector() *gc.Collector {
	opts := []gc.CollectorOption{gc.WithNode(b.node)}
	if notifier := config.CreateNotifier(b.rdb); notifier != nil {
		opts = append(opts, gc.WithNotifier(notifier))
	}
	return gc.New(b.store, b.ledger, opts...)
}
