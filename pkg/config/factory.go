package config

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chunkvault/chunkvault/internal/logger"
	"github.com/chunkvault/chunkvault/pkg/coordinator"
	"github.com/chunkvault/chunkvault/pkg/gc"
	"github.com/chunkvault/chunkvault/pkg/ledger"
	"github.com/chunkvault/chunkvault/pkg/notify"
	"github.com/chunkvault/chunkvault/pkg/store"
	badgerstore "github.com/chunkvault/chunkvault/pkg/store/badger"
	fsstore "github.com/chunkvault/chunkvault/pkg/store/fs"
	memorystore "github.com/chunkvault/chunkvault/pkg/store/memory"
	s3store "github.com/chunkvault/chunkvault/pkg/store/s3"
)

// CreateStore builds the configured payload store backend.
func CreateStore(ctx context.Context, cfg *Config) (store.Store, error) {
	logger.Debug("Creating payload store", logger.KeyBackend, cfg.Store.Backend)

	switch cfg.Store.Backend {
	case "fs":
		return fsstore.New(fsstore.Config{
			BasePath:  cfg.Store.FS.Path,
			CreateDir: true,
		})

	case "s3":
		return s3store.NewFromConfig(ctx, s3store.Config{
			Bucket:         cfg.Store.S3.Bucket,
			Region:         cfg.Store.S3.Region,
			Endpoint:       cfg.Store.S3.Endpoint,
			KeyPrefix:      cfg.Store.S3.KeyPrefix,
			ForcePathStyle: cfg.Store.S3.ForcePathStyle,
		})

	case "badger":
		return badgerstore.New(badgerstore.Config{
			Path:       cfg.Store.Badger.Path,
			SyncWrites: cfg.Store.Badger.SyncWrites,
		})

	case "memory":
		return memorystore.New(), nil

	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

// CreateLedger opens the reference ledger.
func CreateLedger(cfg *Config) (*ledger.Ledger, error) {
	return ledger.New(&cfg.Database)
}

// CreateRedisClient builds the shared Redis client, or nil when the
// coordinator is disabled.
func CreateRedisClient(cfg *Config) redis.UniversalClient {
	if !cfg.Coordinator.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Coordinator.Addr,
		Password: cfg.Coordinator.Password,
		DB:       cfg.Coordinator.DB,
	})
}

// CreateCoordinator builds the collection lease. Single-node mode gets a
// local no-op lease.
func CreateCoordinator(rdb redis.UniversalClient, cfg *Config, node string) coordinator.Coordinator {
	if rdb == nil {
		return coordinator.NewNoop(node)
	}
	return coordinator.NewRedis(rdb, coordinator.RedisConfig{
		Key:      cfg.Coordinator.LockKey,
		Identity: node,
		Lease:    cfg.Coordinator.Lease,
	})
}

// CreateNotifier builds the cache eviction publisher, or nil in
// single-node mode (the collector treats a nil notifier as a no-op).
func CreateNotifier(rdb redis.UniversalClient) gc.Notifier {
	if rdb == nil {
		return nil
	}
	return notify.NewRedisPublisher(rdb, notify.DefaultChannel)
}
