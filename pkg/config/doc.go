// Package config provides configuration management for ganymede.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with strict parsing, comprehensive validation, and
// sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in three ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("/etc/ganymede/config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("/etc/ganymede/config.yaml")
//
//  3. CLI resolution — explicit path, default path, or built-in defaults,
//     always with environment overrides:
//     cfg, err := config.Load(flagConfigPath)
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention GANYMEDE_SECTION_FIELD.
// For example:
//
//   - GANYMEDE_VAULT_ROOT overrides vault.root
//   - GANYMEDE_LOCK_TIMEOUT overrides lock.timeout
//   - GANYMEDE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// List-valued fields (policy.allow_services, policy.secret_patterns) take a
// comma-separated value. Environment variables always take precedence over
// file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides
// earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// All configuration is validated automatically during loading. Unknown YAML
// keys are rejected at parse time. Validation collects every field error
// into a single ValidationError rather than stopping at the first problem:
//
//   - Required field checks (e.g., vault root, oracle backend)
//   - Enum validation (e.g., logging level, oracle backend name)
//   - Path validation (vault root and unit directory must be absolute)
//   - Cron expression validation for the maintenance schedule
package config
