package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the configuration for errors. Struct tags cover the
// simple constraints; cross-field rules are checked by hand.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("invalid configuration: %s", formatValidationErrors(errs))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := validateStore(&cfg.Store); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if cfg.Coordinator.Enabled && cfg.Coordinator.Addr == "" {
		return fmt.Errorf("coordinator: addr is required when enabled")
	}

	if cfg.GC.PressureGraceOverride > cfg.GC.GracePeriod {
		return fmt.Errorf("gc: pressure_grace_override must not exceed grace_period")
	}

	return nil
}

func validateStore(cfg *StoreConfig) error {
	switch cfg.Backend {
	case "fs":
		if cfg.FS.Path == "" {
			return fmt.Errorf("fs.path is required for the fs backend")
		}
	case "s3":
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required for the s3 backend")
		}
	case "badger":
		if cfg.Badger.Path == "" {
			return fmt.Errorf("badger.path is required for the badger backend")
		}
	case "memory":
		// No configuration; payloads vanish on restart
	default:
		return fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
	return nil
}

func formatValidationErrors(errs validator.ValidationErrors) string {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s failed %q validation", e.Namespace(), e.Tag())
	}
	return msg
}
