package config

import (
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Vault.Root != DefaultVaultRoot {
		t.Errorf("expected vault root %q, got %q", DefaultVaultRoot, cfg.Vault.Root)
	}
	if cfg.Lock.Timeout != DefaultLockTimeout {
		t.Errorf("expected lock timeout %v, got %v", DefaultLockTimeout, cfg.Lock.Timeout)
	}
	if cfg.Policy.MinSecretLength != DefaultMinSecretLength {
		t.Errorf("expected min secret length %d, got %d", DefaultMinSecretLength, cfg.Policy.MinSecretLength)
	}
	if cfg.Policy.ForbidHostOnlyWhenTPM2 {
		t.Error("expected forbid_host_only_when_tpm2 to default to false")
	}
	if cfg.Oracle.Backend != DefaultOracleBackend {
		t.Errorf("expected oracle backend %q, got %q", DefaultOracleBackend, cfg.Oracle.Backend)
	}
	if cfg.Oracle.Binary != DefaultOracleBinary {
		t.Errorf("expected oracle binary %q, got %q", DefaultOracleBinary, cfg.Oracle.Binary)
	}
	if cfg.Dropin.UnitDir != DefaultDropinUnitDir {
		t.Errorf("expected unit dir %q, got %q", DefaultDropinUnitDir, cfg.Dropin.UnitDir)
	}
	if cfg.Telemetry.Logging.Level != DefaultLoggingLevel {
		t.Errorf("expected logging level %q, got %q", DefaultLoggingLevel, cfg.Telemetry.Logging.Level)
	}
	if cfg.Telemetry.Logging.Format != DefaultLoggingFormat {
		t.Errorf("expected logging format %q, got %q", DefaultLoggingFormat, cfg.Telemetry.Logging.Format)
	}
	if cfg.Telemetry.Logging.Output != DefaultLoggingOutput {
		t.Errorf("expected logging output %q, got %q", DefaultLoggingOutput, cfg.Telemetry.Logging.Output)
	}
	if cfg.Telemetry.Metrics.Enabled == nil || *cfg.Telemetry.Metrics.Enabled != DefaultMetricsEnabled {
		t.Error("expected metrics enabled default to be materialized")
	}
	if cfg.Maintain.Schedule != DefaultMaintainSchedule {
		t.Errorf("expected maintain schedule %q, got %q", DefaultMaintainSchedule, cfg.Maintain.Schedule)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	disabled := false
	cfg := &Config{}
	cfg.Vault.Root = "/srv/custom"
	cfg.Policy.MinSecretLength = 32
	cfg.Telemetry.Metrics.Enabled = &disabled

	ApplyDefaults(cfg)

	if cfg.Vault.Root != "/srv/custom" {
		t.Errorf("explicit vault root clobbered: %q", cfg.Vault.Root)
	}
	if cfg.Policy.MinSecretLength != 32 {
		t.Errorf("explicit min secret length clobbered: %d", cfg.Policy.MinSecretLength)
	}
	if cfg.MetricsOn() {
		t.Error("explicit metrics disable clobbered by defaults")
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	first := *cfg

	ApplyDefaults(cfg)

	if cfg.Vault.Root != first.Vault.Root ||
		cfg.Lock.Timeout != first.Lock.Timeout ||
		cfg.Policy.MinSecretLength != first.Policy.MinSecretLength ||
		cfg.Maintain.Schedule != first.Maintain.Schedule {
		t.Error("ApplyDefaults is not idempotent")
	}
}

func TestMetricsOn_UnsetUsesDefault(t *testing.T) {
	cfg := &Config{}
	if cfg.MetricsOn() != DefaultMetricsEnabled {
		t.Errorf("expected unset metrics.enabled to report %v", DefaultMetricsEnabled)
	}
}
