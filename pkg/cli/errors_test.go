package cli

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/vault"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "nil error",
			err:  nil,
			want: ExitOK,
		},
		{
			name: "validation error",
			err:  vault.NewValidationError("bad name"),
			want: ExitValidation,
		},
		{
			name: "config validation error",
			err: config.ValidationError{Errors: []config.FieldError{
				{Field: "vault.root", Message: "is required"},
			}},
			want: ExitValidation,
		},
		{
			name: "policy violation",
			err:  vault.NewPolicyViolation(vault.RuleServiceNotAllowed, "service not in allow list"),
			want: ExitPolicyViolation,
		},
		{
			name: "lock contention",
			err:  vault.NewLockContention("/tmp/vault.lock", 10*time.Second),
			want: ExitLockContention,
		},
		{
			name: "oracle failure",
			err:  vault.NewOracleError("encrypt", errors.New("exec failed")),
			want: ExitOracle,
		},
		{
			name: "key unavailable",
			err:  vault.NewKeyUnavailable(vault.KeyPolicyHostTPM2, errors.New("no tpm")),
			want: ExitOracle,
		},
		{
			name: "store corrupt",
			err:  vault.NewStoreCorrupt("duplicate credential", nil),
			want: ExitStoreCorrupt,
		},
		{
			name: "audit write failure",
			err:  vault.NewAuditWriteError(errors.New("disk full")),
			want: ExitAuditWrite,
		},
		{
			name: "not found",
			err:  vault.NewNotFound("db_password"),
			want: ExitError,
		},
		{
			name: "plain error",
			err:  errors.New("something else"),
			want: ExitError,
		},
		{
			name: "wrapped vault error keeps its code",
			err:  fmt.Errorf("get failed: %w", vault.NewLockContention("/tmp/vault.lock", time.Second)),
			want: ExitLockContention,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
