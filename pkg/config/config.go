package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/chunkvault/chunkvault/internal/bytesize"
	"github.com/chunkvault/chunkvault/pkg/api"
	"github.com/chunkvault/chunkvault/pkg/ledger"
)

// Config is the ChunkVault server configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (CHUNKVAULT_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the reference ledger (SQLite or PostgreSQL)
	Database ledger.Config `mapstructure:"database" yaml:"database"`

	// Store configures the chunk payload backend
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Coordinator configures the Redis collection lease. Disabled means
	// single-node mode: the lease always succeeds locally and cache
	// eviction events are not published.
	Coordinator CoordinatorConfig `mapstructure:"coordinator" yaml:"coordinator"`

	// GC configures collection strategy and scheduling
	GC GCConfig `mapstructure:"gc" yaml:"gc"`

	// Metrics contains the Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the admin API server configuration
	API api.Config `mapstructure:"api" yaml:"api"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// StoreConfig selects and configures the chunk payload backend.
type StoreConfig struct {
	// Backend selects the payload store implementation.
	// Valid values: fs, s3, badger, memory. Default: fs
	Backend string `mapstructure:"backend" validate:"required,oneof=fs s3 badger memory" yaml:"backend"`

	// FS configures the filesystem backend
	FS FSStoreConfig `mapstructure:"fs" yaml:"fs"`

	// S3 configures the S3 backend
	S3 S3StoreConfig `mapstructure:"s3" yaml:"s3"`

	// Badger configures the embedded Badger backend
	Badger BadgerStoreConfig `mapstructure:"badger" yaml:"badger"`
}

// FSStoreConfig configures the filesystem payload store.
type FSStoreConfig struct {
	// Path is the root directory for chunk payloads
	Path string `mapstructure:"path" yaml:"path"`
}

// S3StoreConfig configures the S3 payload store.
type S3StoreConfig struct {
	// Bucket is the S3 bucket name (required for the s3 backend)
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint overrides the S3 endpoint (MinIO, LocalStack)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// KeyPrefix namespaces all chunk keys within the bucket
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	// ForcePathStyle uses path-style addressing (needed for MinIO)
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// BadgerStoreConfig configures the embedded Badger payload store.
type BadgerStoreConfig struct {
	// Path is the Badger data directory
	Path string `mapstructure:"path" yaml:"path"`

	// SyncWrites makes every write durable before returning
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`
}

// CoordinatorConfig configures the Redis-backed collection lease.
type CoordinatorConfig struct {
	// Enabled turns on distributed coordination. When false, the node
	// runs in single-node mode with a local no-op lease.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Addr is the Redis address (host:port)
	Addr string `mapstructure:"addr" yaml:"addr"`

	// Password is the Redis password, if any
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// DB is the Redis database number
	DB int `mapstructure:"db" yaml:"db,omitempty"`

	// LockKey is the lease key. Default: chunkvault:gc:leader
	LockKey string `mapstructure:"lock_key" yaml:"lock_key,omitempty"`

	// Lease is the lock TTL. Default: 30s
	Lease time.Duration `mapstructure:"lease" yaml:"lease,omitempty"`
}

// GCConfig configures collection behavior and scheduling.
type GCConfig struct {
	// Strategy selects the default candidate finder.
	// Valid values: refcount, marksweep, generational. Default: refcount
	Strategy string `mapstructure:"strategy" validate:"required,oneof=refcount marksweep generational" yaml:"strategy"`

	// Interval between scheduled runs. Zero disables scheduled runs.
	// Default: 1h
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// BatchSize bounds one candidate batch. Default: 500
	BatchSize int `mapstructure:"batch_size" validate:"omitempty,min=1" yaml:"batch_size"`

	// GracePeriod protects zero-referenced chunks from deletion.
	// Default: 168h (7 days). Mirrored into the ledger configuration.
	GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period"`

	// RecoveryWindow keeps soft-deleted ledger rows recoverable.
	// Default: 720h (30 days). Mirrored into the ledger configuration.
	RecoveryWindow time.Duration `mapstructure:"recovery_window" yaml:"recovery_window"`

	// MinFreeSpacePercent triggers a pressure run when the store's free
	// space drops below it. Zero disables the pressure trigger.
	MinFreeSpacePercent float64 `mapstructure:"min_free_space_percent" validate:"omitempty,gte=0,lte=100" yaml:"min_free_space_percent"`

	// PressureInterval between free-space probes. Default: 5m
	PressureInterval time.Duration `mapstructure:"pressure_interval" yaml:"pressure_interval"`

	// PressureGraceOverride shortens the grace period for pressure runs
	// only. Zero keeps the full grace period even under pressure.
	PressureGraceOverride time.Duration `mapstructure:"pressure_grace_override" yaml:"pressure_grace_override,omitempty"`

	// PressureBatchSize replaces BatchSize for pressure runs
	PressureBatchSize int `mapstructure:"pressure_batch_size" validate:"omitempty,min=1" yaml:"pressure_batch_size,omitempty"`

	// OldGenerationEvery makes every Nth generational run include the old
	// generation. Default: 10
	OldGenerationEvery int `mapstructure:"old_generation_every" validate:"omitempty,min=1" yaml:"old_generation_every"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP server run
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint. Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file
// is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  chunkvault init\n\n"+
				"Or specify a custom config file:\n"+
				"  chunkvault <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  chunkvault init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to path as YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may contain database and Redis passwords
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures environment variables and config file search.
func setupViper(v *viper.Viper, configPath string) {
	// CHUNKVAULT_LOGGING_LEVEL=DEBUG overrides logging.level
	v.SetEnvPrefix("CHUNKVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the config file if it exists.
// Returns whether a file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks combines the custom decode hooks: human-readable byte
// sizes and duration strings.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings like "1Gi" or "500MB" and plain
// numbers to bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s", "5m", "168h" to
// time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path. Uses
// XDG_CONFIG_HOME if set, otherwise ~/.config.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "chunkvault")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "chunkvault")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks for a config file at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory (for the init command).
func GetConfigDir() string {
	return getConfigDir()
}
