package cli

import (
	"errors"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/vault"
)

// Process exit codes. Scripts dispatch on these, so the mapping from error
// codes is stable: a retry loop can watch for ExitLockContention without
// parsing stderr.
const (
	// ExitOK is returned on success.
	ExitOK = 0
	// ExitError is returned for failures outside the vault error taxonomy.
	ExitError = 1
	// ExitValidation is returned for malformed input or configuration.
	ExitValidation = 2
	// ExitPolicyViolation is returned when the policy engine rejects an
	// operation.
	ExitPolicyViolation = 3
	// ExitLockContention is returned when the vault lock could not be
	// acquired within the timeout.
	ExitLockContention = 4
	// ExitOracle is returned for encryption oracle failures, including
	// unavailable key material.
	ExitOracle = 5
	// ExitStoreCorrupt is returned when the metadata document fails
	// consistency checks.
	ExitStoreCorrupt = 6
	// ExitAuditWrite is returned when an audit ledger append failed.
	ExitAuditWrite = 7
)

// ExitCode maps an error to its process exit code. A nil error maps to
// ExitOK; errors outside the taxonomy map to ExitError.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var cfgErr config.ValidationError
	if errors.As(err, &cfgErr) {
		return ExitValidation
	}

	switch vault.CodeOf(err) {
	case vault.CodeValidation:
		return ExitValidation
	case vault.CodePolicy:
		return ExitPolicyViolation
	case vault.CodeLockContention:
		return ExitLockContention
	case vault.CodeOracle, vault.CodeKeyUnavailable:
		return ExitOracle
	case vault.CodeStoreCorrupt:
		return ExitStoreCorrupt
	case vault.CodeAuditWrite:
		return ExitAuditWrite
	default:
		return ExitError
	}
}
