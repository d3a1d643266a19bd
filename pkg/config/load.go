package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the CLI looks for a configuration file when
// --config is not given. A missing file at this path is not an error; the
// built-in defaults apply.
const DefaultConfigPath = "/etc/ganymede/config.yaml"

// Default returns a configuration with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// LoadConfig loads configuration from a YAML file at the specified path.
// Unknown keys are rejected. It applies default values, validates the
// configuration, and returns any errors. The configuration is not modified
// by environment variables; use LoadConfigWithEnvOverrides for that
// functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	// Strict decode: a misspelled key is a configuration error, not a
	// silently ignored one.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention GANYMEDE_SECTION_FIELD (e.g., GANYMEDE_VAULT_ROOT).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	// First load from file (this already applies defaults)
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	// Re-validate after overrides
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// Load resolves the effective configuration for the CLI. An explicit path
// must exist and load cleanly. An empty path tries DefaultConfigPath and
// falls back to built-in defaults when no file is installed there.
// Environment variable overrides apply in every case.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		cfg := Default()
		applyEnvOverrides(cfg)
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
		}
		return cfg, nil
	}

	return LoadConfigWithEnvOverrides(path)
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format GANYMEDE_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Vault overrides
	if val := os.Getenv("GANYMEDE_VAULT_ROOT"); val != "" {
		cfg.Vault.Root = val
	}

	// Lock overrides
	if val := os.Getenv("GANYMEDE_LOCK_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Lock.Timeout = d
		}
	}

	// Policy overrides
	if val := os.Getenv("GANYMEDE_POLICY_ALLOW_SERVICES"); val != "" {
		cfg.Policy.AllowServices = splitList(val)
	}
	if val := os.Getenv("GANYMEDE_POLICY_MIN_SECRET_LENGTH"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Policy.MinSecretLength = i
		}
	}
	if val := os.Getenv("GANYMEDE_POLICY_FORBID_HOST_ONLY_WHEN_TPM2"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policy.ForbidHostOnlyWhenTPM2 = b
		}
	}
	if val := os.Getenv("GANYMEDE_POLICY_SECRET_PATTERNS"); val != "" {
		cfg.Policy.SecretPatterns = splitList(val)
	}

	// Oracle overrides
	if val := os.Getenv("GANYMEDE_ORACLE_BACKEND"); val != "" {
		cfg.Oracle.Backend = val
	}
	if val := os.Getenv("GANYMEDE_ORACLE_BINARY"); val != "" {
		cfg.Oracle.Binary = val
	}

	// Drop-in overrides
	if val := os.Getenv("GANYMEDE_DROPIN_HARDENING"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Dropin.Hardening = b
		}
	}
	if val := os.Getenv("GANYMEDE_DROPIN_UNIT_DIR"); val != "" {
		cfg.Dropin.UnitDir = val
	}

	// Telemetry overrides
	if val := os.Getenv("GANYMEDE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_LOGGING_OUTPUT"); val != "" {
		cfg.Telemetry.Logging.Output = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = &b
		}
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_METRICS_TEXTFILE_PATH"); val != "" {
		cfg.Telemetry.Metrics.TextfilePath = val
	}

	// Maintain overrides
	if val := os.Getenv("GANYMEDE_MAINTAIN_SCHEDULE"); val != "" {
		cfg.Maintain.Schedule = val
	}
}

// splitList splits a comma-separated environment value into a clean slice.
func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
