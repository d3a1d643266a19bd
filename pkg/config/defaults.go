package config

import "time"

// Default values for configuration fields.
const (
	// Vault defaults
	DefaultVaultRoot = "/opt/services/vault"

	// Lock defaults
	DefaultLockTimeout = 10 * time.Second

	// Policy defaults
	DefaultMinSecretLength = 16

	// Oracle defaults
	DefaultOracleBackend = "systemd-creds"
	DefaultOracleBinary  = "systemd-creds"

	// Drop-in defaults
	DefaultDropinUnitDir = "/etc/systemd/system"

	// Telemetry defaults
	DefaultLoggingLevel   = "info"
	DefaultLoggingFormat  = "text"
	DefaultLoggingOutput  = "stderr"
	DefaultMetricsEnabled = true

	// Maintain defaults
	DefaultMaintainSchedule = "0 3 * * *"
)

// ApplyDefaults applies default values to a Config struct. It sets defaults
// for any fields that have zero values. This function is idempotent and safe
// to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Vault defaults
	if cfg.Vault.Root == "" {
		cfg.Vault.Root = DefaultVaultRoot
	}

	// Lock defaults
	if cfg.Lock.Timeout <= 0 {
		cfg.Lock.Timeout = DefaultLockTimeout
	}

	// Policy defaults
	if cfg.Policy.MinSecretLength == 0 {
		cfg.Policy.MinSecretLength = DefaultMinSecretLength
	}

	// Oracle defaults
	if cfg.Oracle.Backend == "" {
		cfg.Oracle.Backend = DefaultOracleBackend
	}
	if cfg.Oracle.Binary == "" {
		cfg.Oracle.Binary = DefaultOracleBinary
	}

	// Drop-in defaults
	if cfg.Dropin.UnitDir == "" {
		cfg.Dropin.UnitDir = DefaultDropinUnitDir
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Logging.Output == "" {
		cfg.Telemetry.Logging.Output = DefaultLoggingOutput
	}
	if cfg.Telemetry.Metrics.Enabled == nil {
		enabled := DefaultMetricsEnabled
		cfg.Telemetry.Metrics.Enabled = &enabled
	}

	// Maintain defaults
	if cfg.Maintain.Schedule == "" {
		cfg.Maintain.Schedule = DefaultMaintainSchedule
	}
}
