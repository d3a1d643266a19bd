package config

import "time"

// Config is the root configuration structure for ganymede. It contains all
// configuration sections for the vault layout, locking, policy gating, the
// encryption oracle, drop-in generation, telemetry, and scheduled
// maintenance.
type Config struct {
	// Vault contains the vault location settings.
	Vault VaultConfig `yaml:"vault"`

	// Lock contains concurrency guard settings.
	Lock LockConfig `yaml:"lock"`

	// Policy contains the rules evaluated before every mutating operation.
	Policy PolicyConfig `yaml:"policy"`

	// Oracle selects and configures the external encryption backend.
	Oracle OracleConfig `yaml:"oracle"`

	// Dropin contains settings for systemd drop-in generation and install.
	Dropin DropinConfig `yaml:"dropin"`

	// Telemetry contains observability configuration: logging and the
	// Prometheus textfile metrics snapshot.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Maintain configures the scheduled maintenance sweep.
	Maintain MaintainConfig `yaml:"maintain"`
}

// VaultConfig locates the vault on disk.
type VaultConfig struct {
	// Root is the vault root directory. All managed state (metadata, audit
	// ledger, encrypted blobs, staged drop-ins) lives under it. The CLI
	// --vault-root flag takes precedence over this value.
	// Default: "/opt/services/vault"
	Root string `yaml:"root"`
}

// LockConfig tunes the exclusive vault lock.
type LockConfig struct {
	// Timeout bounds how long a mutating command waits to acquire the
	// vault lock before failing with a lock-contention error. Zero or
	// negative values fall back to the default.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// PolicyConfig contains the rules the policy engine evaluates before every
// mutating operation.
type PolicyConfig struct {
	// AllowServices is the service allow-list. Operations naming a service
	// outside the list are rejected. An empty list leaves binding
	// unrestricted; startup logs a warning in that case.
	// Default: [] (unrestricted)
	AllowServices []string `yaml:"allow_services"`

	// MinSecretLength is the minimum length accepted for auto-generated
	// secrets. Explicitly supplied secrets are not length-checked beyond
	// being non-empty.
	// Default: 16
	MinSecretLength int `yaml:"min_secret_length"`

	// ForbidHostOnlyWhenTPM2 rejects the host-only key policy while a TPM2
	// device is available, forcing new credentials onto host+tpm2.
	// Default: false
	ForbidHostOnlyWhenTPM2 bool `yaml:"forbid_host_only_when_tpm2"`

	// SecretPatterns adds environment key patterns the migration
	// classifier treats as secret-bearing, on top of the built-in set.
	// Matching is case-insensitive substring (e.g. "LICENSE" matches
	// APP_LICENSE_CODE).
	// Default: []
	SecretPatterns []string `yaml:"secret_patterns"`
}

// OracleConfig selects the encryption oracle backend.
type OracleConfig struct {
	// Backend names the encryption oracle implementation. "systemd-creds"
	// shells out to the systemd credential tooling; "memory" is a
	// reversible encoding for tests and development only.
	// Default: "systemd-creds"
	Backend string `yaml:"backend"`

	// Binary overrides the systemd-creds executable path. Only consulted
	// by the systemd-creds backend.
	// Default: "systemd-creds" (resolved via PATH)
	Binary string `yaml:"binary"`
}

// DropinConfig controls systemd drop-in fragment generation.
type DropinConfig struct {
	// Hardening appends the sandboxing directive block (NoNewPrivileges,
	// ProtectSystem, and friends) to generated drop-ins.
	// Default: false
	Hardening bool `yaml:"hardening"`

	// UnitDir is the systemd unit directory `dropin apply` installs
	// fragments into. Tests point it at a temp directory.
	// Default: "/etc/systemd/system"
	UnitDir string `yaml:"unit_dir"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus textfile snapshot configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", or
	// "error". The CLI --verbose flag lowers it to debug.
	// Default: "info"
	Level string `yaml:"level"`

	// Format selects the log encoding: "json", "text", or "console"
	// (text without timestamps, for interactive use).
	// Default: "text"
	Format string `yaml:"format"`

	// Output is the log destination: "stderr", "stdout", or a file path
	// (opened append-only, created 0600).
	// Default: "stderr"
	Output string `yaml:"output"`
}

// MetricsConfig contains Prometheus textfile snapshot configuration.
type MetricsConfig struct {
	// Enabled controls whether operation metrics are collected and written
	// to the textfile snapshot for the node-exporter textfile collector.
	// A pointer distinguishes "unset" from an explicit false.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// TextfilePath overrides where the metrics snapshot is written. Empty
	// uses <vault-root>/metrics.prom.
	// Default: "" (derived from the vault root)
	TextfilePath string `yaml:"textfile_path"`
}

// MaintainConfig configures the scheduled maintenance sweep.
type MaintainConfig struct {
	// Schedule is the cron expression (standard five-field syntax) for the
	// maintenance sweep: audit chain verification, index refresh, health
	// evaluation, and metrics flush. The `maintain --schedule` flag takes
	// precedence.
	// Default: "0 3 * * *" (daily at 03:00)
	Schedule string `yaml:"schedule"`
}

// MetricsOn reports the resolved metrics.enabled value. It treats an unset
// field as the default, so callers do not need ApplyDefaults to have run.
func (c *Config) MetricsOn() bool {
	if c.Telemetry.Metrics.Enabled == nil {
		return DefaultMetricsEnabled
	}
	return *c.Telemetry.Metrics.Enabled
}
