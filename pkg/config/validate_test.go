package config

import (
	"strings"
	"testing"
)

// hasFieldError reports whether errs contains an error for the given field.
func hasFieldError(t *testing.T, err error, field string) bool {
	t.Helper()
	validationErr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	for _, fe := range validationErr.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Default()

	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Vault.Root = "relative/path"
	cfg.Oracle.Backend = "nonsense"
	cfg.Telemetry.Logging.Level = "loud"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	validationErr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(validationErr.Errors) < 3 {
		t.Errorf("expected at least 3 errors, got %d: %v", len(validationErr.Errors), validationErr)
	}
	if !strings.Contains(validationErr.Error(), "validation failed with") {
		t.Errorf("error message should mention multiple errors: %s", validationErr.Error())
	}
}

func TestValidate_Vault(t *testing.T) {
	tests := []struct {
		name       string
		root       string
		wantError  bool
		errorField string
	}{
		{name: "absolute root", root: "/srv/vault", wantError: false},
		{name: "empty root", root: "", wantError: true, errorField: "vault.root"},
		{name: "relative root", root: "srv/vault", wantError: true, errorField: "vault.root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Vault.Root = tt.root

			err := Validate(cfg)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !hasFieldError(t, err, tt.errorField) {
					t.Errorf("expected error for field %q, got: %v", tt.errorField, err)
				}
			} else if err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidate_Policy(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		wantError  bool
		errorField string
	}{
		{
			name:      "allow list with clean names",
			mutate:    func(c *Config) { c.Policy.AllowServices = []string{"webapp", "worker.service"} },
			wantError: false,
		},
		{
			name:       "blank service entry",
			mutate:     func(c *Config) { c.Policy.AllowServices = []string{"webapp", "  "} },
			wantError:  true,
			errorField: "policy.allow_services[1]",
		},
		{
			name:       "service entry with path separator",
			mutate:     func(c *Config) { c.Policy.AllowServices = []string{"../etc"} },
			wantError:  true,
			errorField: "policy.allow_services[0]",
		},
		{
			name:       "negative min secret length",
			mutate:     func(c *Config) { c.Policy.MinSecretLength = -4 },
			wantError:  true,
			errorField: "policy.min_secret_length",
		},
		{
			name:       "empty secret pattern",
			mutate:     func(c *Config) { c.Policy.SecretPatterns = []string{""} },
			wantError:  true,
			errorField: "policy.secret_patterns[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !hasFieldError(t, err, tt.errorField) {
					t.Errorf("expected error for field %q, got: %v", tt.errorField, err)
				}
			} else if err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidate_Oracle(t *testing.T) {
	tests := []struct {
		name       string
		backend    string
		binary     string
		wantError  bool
		errorField string
	}{
		{name: "systemd-creds backend", backend: "systemd-creds", binary: "systemd-creds", wantError: false},
		{name: "memory backend without binary", backend: "memory", binary: "", wantError: false},
		{name: "unknown backend", backend: "pkcs11", binary: "x", wantError: true, errorField: "oracle.backend"},
		{name: "systemd-creds without binary", backend: "systemd-creds", binary: "", wantError: true, errorField: "oracle.binary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Oracle.Backend = tt.backend
			cfg.Oracle.Binary = tt.binary

			err := Validate(cfg)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !hasFieldError(t, err, tt.errorField) {
					t.Errorf("expected error for field %q, got: %v", tt.errorField, err)
				}
			} else if err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidate_Telemetry(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		errorField string
	}{
		{
			name:       "bad level",
			mutate:     func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			errorField: "telemetry.logging.level",
		},
		{
			name:       "bad format",
			mutate:     func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			errorField: "telemetry.logging.format",
		},
		{
			name:       "empty output",
			mutate:     func(c *Config) { c.Telemetry.Logging.Output = "" },
			errorField: "telemetry.logging.output",
		},
		{
			name:       "relative textfile path",
			mutate:     func(c *Config) { c.Telemetry.Metrics.TextfilePath = "metrics.prom" },
			errorField: "telemetry.metrics.textfile_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !hasFieldError(t, err, tt.errorField) {
				t.Errorf("expected error for field %q, got: %v", tt.errorField, err)
			}
		})
	}
}

func TestValidate_MaintainSchedule(t *testing.T) {
	tests := []struct {
		name      string
		schedule  string
		wantError bool
	}{
		{name: "daily", schedule: "0 3 * * *", wantError: false},
		{name: "every fifteen minutes", schedule: "*/15 * * * *", wantError: false},
		{name: "descriptor", schedule: "@hourly", wantError: false},
		{name: "empty", schedule: "", wantError: true},
		{name: "gibberish", schedule: "whenever", wantError: true},
		{name: "too many fields", schedule: "0 0 3 * * *", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Maintain.Schedule = tt.schedule

			err := Validate(cfg)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !hasFieldError(t, err, "maintain.schedule") {
					t.Errorf("expected error for maintain.schedule, got: %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
