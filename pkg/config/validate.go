package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "vault.root").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateVault(&cfg.Vault)...)
	errs = append(errs, validateLock(&cfg.Lock)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateOracle(&cfg.Oracle)...)
	errs = append(errs, validateDropin(&cfg.Dropin)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateMaintain(&cfg.Maintain)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateVault validates vault location configuration.
func validateVault(cfg *VaultConfig) []FieldError {
	var errs []FieldError

	if cfg.Root == "" {
		errs = append(errs, FieldError{
			Field:   "vault.root",
			Message: "vault root is required",
		})
	} else if !filepath.IsAbs(cfg.Root) {
		errs = append(errs, FieldError{
			Field:   "vault.root",
			Message: fmt.Sprintf("vault root %q must be an absolute path", cfg.Root),
		})
	}

	return errs
}

// validateLock validates concurrency guard configuration.
func validateLock(cfg *LockConfig) []FieldError {
	var errs []FieldError

	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "lock.timeout",
			Message: "lock timeout must not be negative",
		})
	}

	return errs
}

// validatePolicy validates policy engine configuration.
func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	for i, svc := range cfg.AllowServices {
		if strings.TrimSpace(svc) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("policy.allow_services[%d]", i),
				Message: "service name must not be empty",
			})
			continue
		}
		if strings.ContainsAny(svc, " \t/\\") {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("policy.allow_services[%d]", i),
				Message: fmt.Sprintf("service name %q must not contain whitespace or path separators", svc),
			})
		}
	}

	if cfg.MinSecretLength < 1 {
		errs = append(errs, FieldError{
			Field:   "policy.min_secret_length",
			Message: fmt.Sprintf("minimum secret length must be at least 1, got %d", cfg.MinSecretLength),
		})
	}

	for i, pattern := range cfg.SecretPatterns {
		if strings.TrimSpace(pattern) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("policy.secret_patterns[%d]", i),
				Message: "pattern must not be empty",
			})
		}
	}

	return errs
}

// validateOracle validates encryption oracle configuration.
func validateOracle(cfg *OracleConfig) []FieldError {
	var errs []FieldError

	validBackends := map[string]bool{"systemd-creds": true, "memory": true}
	if cfg.Backend == "" {
		errs = append(errs, FieldError{
			Field:   "oracle.backend",
			Message: "oracle backend is required",
		})
	} else if !validBackends[cfg.Backend] {
		errs = append(errs, FieldError{
			Field:   "oracle.backend",
			Message: fmt.Sprintf("invalid oracle backend %q: must be 'systemd-creds' or 'memory'", cfg.Backend),
		})
	}

	if cfg.Backend == "systemd-creds" && cfg.Binary == "" {
		errs = append(errs, FieldError{
			Field:   "oracle.binary",
			Message: "systemd-creds binary path is required for the systemd-creds backend",
		})
	}

	return errs
}

// validateDropin validates drop-in generation configuration.
func validateDropin(cfg *DropinConfig) []FieldError {
	var errs []FieldError

	if cfg.UnitDir == "" {
		errs = append(errs, FieldError{
			Field:   "dropin.unit_dir",
			Message: "unit directory is required",
		})
	} else if !filepath.IsAbs(cfg.UnitDir) {
		errs = append(errs, FieldError{
			Field:   "dropin.unit_dir",
			Message: fmt.Sprintf("unit directory %q must be an absolute path", cfg.UnitDir),
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text', or 'console'", cfg.Logging.Format),
		})
	}

	if cfg.Logging.Output == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.output",
			Message: "logging output is required",
		})
	}

	if cfg.Metrics.TextfilePath != "" && !filepath.IsAbs(cfg.Metrics.TextfilePath) {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.textfile_path",
			Message: fmt.Sprintf("textfile path %q must be an absolute path", cfg.Metrics.TextfilePath),
		})
	}

	return errs
}

// validateMaintain validates maintenance sweep configuration.
func validateMaintain(cfg *MaintainConfig) []FieldError {
	var errs []FieldError

	if cfg.Schedule == "" {
		errs = append(errs, FieldError{
			Field:   "maintain.schedule",
			Message: "maintenance schedule is required",
		})
	} else if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "maintain.schedule",
			Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err),
		})
	}

	return errs
}
