package config

import (
	"strings"
	"time"

	"github.com/chunkvault/chunkvault/pkg/coordinator"
	"github.com/chunkvault/chunkvault/pkg/gc"
	"github.com/chunkvault/chunkvault/pkg/ledger"
	"github.com/chunkvault/chunkvault/pkg/scheduler"
)

// ApplyDefaults sets default values for any unspecified fields.
// Zero values are replaced, explicit values preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	applyGCDefaults(&cfg.GC)

	// The lifecycle windows live in the GC section of the file but are
	// enforced by the ledger, so mirror them before applying its defaults
	cfg.Database.GracePeriod = cfg.GC.GracePeriod
	cfg.Database.RecoveryWindow = cfg.GC.RecoveryWindow
	cfg.Database.ApplyDefaults()

	applyStoreDefaults(&cfg.Store)
	applyCoordinatorDefaults(&cfg.Coordinator)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyGCDefaults(cfg *GCConfig) {
	if cfg.Strategy == "" {
		cfg.Strategy = gc.StrategyRefCount
	}
	if cfg.Interval == 0 {
		cfg.Interval = scheduler.DefaultInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = gc.DefaultBatchSize
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = ledger.DefaultGracePeriod
	}
	if cfg.RecoveryWindow == 0 {
		cfg.RecoveryWindow = ledger.DefaultRecoveryWindow
	}
	if cfg.PressureInterval == 0 {
		cfg.PressureInterval = scheduler.DefaultPressureInterval
	}
	if cfg.OldGenerationEvery == 0 {
		cfg.OldGenerationEvery = scheduler.DefaultOldGenerationEvery
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "fs"
	}
	if cfg.Backend == "fs" && cfg.FS.Path == "" {
		cfg.FS.Path = "/var/lib/chunkvault/chunks"
	}
}

func applyCoordinatorDefaults(cfg *CoordinatorConfig) {
	if cfg.LockKey == "" {
		cfg.LockKey = coordinator.DefaultLockKey
	}
	if cfg.Lease == 0 {
		cfg.Lease = coordinator.DefaultLease
	}
	if cfg.Enabled && cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config with all defaults applied. Used by
// `chunkvault init` to render the sample file, and by tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: ledger.Config{
			Type: ledger.DatabaseTypeSQLite, // single-node default
		},
		Store: StoreConfig{
			Backend: "fs",
			FS: FSStoreConfig{
				Path: "/var/lib/chunkvault/chunks",
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
