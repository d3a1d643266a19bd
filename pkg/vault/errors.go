package vault

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies a vault error. Codes are stable and drive both the CLI
// exit status and the reason recorded in audit entries.
type Code string

const (
	// CodeValidation marks malformed input (names, env vars, secret input).
	// Rejected before any side effect.
	CodeValidation Code = "validation"

	// CodePolicy marks an operation rejected by the policy engine.
	// Rejected before any side effect.
	CodePolicy Code = "policy_violation"

	// CodeLockContention marks a failure to acquire the vault lock within
	// the configured timeout. No side effects.
	CodeLockContention Code = "lock_contention"

	// CodeOracle marks an encryption oracle failure. The operation aborts
	// before any metadata mutation.
	CodeOracle Code = "oracle"

	// CodeKeyUnavailable is an oracle failure caused by absent key material,
	// typically a missing or locked TPM2 device.
	CodeKeyUnavailable Code = "key_unavailable"

	// CodeStoreCorrupt marks a metadata document that does not parse or is
	// internally inconsistent. Fatal for the operation.
	CodeStoreCorrupt Code = "store_corrupt"

	// CodeAuditWrite marks a failure to durably append an audit entry.
	// Fatal even when every other step succeeded.
	CodeAuditWrite Code = "audit_write"

	// CodeNotFound marks a reference to a credential, service, or vault that
	// does not exist.
	CodeNotFound Code = "not_found"
)

// PolicyRule identifies which policy rule rejected an operation.
type PolicyRule string

const (
	// RuleServiceNotAllowed fires when the allow-list is non-empty and the
	// target service is not a member.
	RuleServiceNotAllowed PolicyRule = "service_not_allowed"

	// RuleSecretTooShort fires when an auto-generated secret length is below
	// the configured minimum.
	RuleSecretTooShort PolicyRule = "secret_too_short"

	// RuleWeakKeyPolicy fires when host-only protection is requested while a
	// stronger key policy is available and forbidden by configuration.
	RuleWeakKeyPolicy PolicyRule = "weak_key_policy"
)

// Error is the structured error for all vault failures. It carries a stable
// code, the workflow step that failed (when applicable), and free-form
// details an operator needs to clean up or retry.
type Error struct {
	// Code classifies the failure.
	Code Code

	// Message is the human-readable description.
	Message string

	// Step names the workflow step that failed, when the error surfaced
	// mid-operation ("encrypt", "commit", "audit", ...).
	Step string

	// Details carries structured context such as the credential name or a
	// leftover blob path.
	Details map[string]string

	// Cause is the wrapped underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Step != "" {
		msg = fmt.Sprintf("%s (step %s)", msg, e.Step)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithStep records the workflow step the error surfaced in and returns e.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// WithDetail attaches one key/value context pair and returns e.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string, 4)
	}
	e.Details[key] = value
	return e
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// NewValidationErrorf creates a validation error with a formatted message.
func NewValidationErrorf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewPolicyViolation creates a policy violation for the given rule.
func NewPolicyViolation(rule PolicyRule, message string) *Error {
	e := &Error{Code: CodePolicy, Message: message}
	return e.WithDetail("rule", string(rule))
}

// NewLockContention creates a lock contention error for the given lock path
// and timeout.
func NewLockContention(path string, timeout time.Duration) *Error {
	e := &Error{
		Code:    CodeLockContention,
		Message: fmt.Sprintf("could not acquire exclusive vault lock within %s", timeout),
	}
	return e.WithDetail("lock_path", path)
}

// NewOracleError wraps an encryption oracle failure for the given oracle
// operation ("encrypt", "decrypt", "probe").
func NewOracleError(op string, cause error) *Error {
	e := &Error{Code: CodeOracle, Message: fmt.Sprintf("encryption oracle %s failed", op), Cause: cause}
	return e.WithDetail("oracle_op", op)
}

// NewKeyUnavailable wraps an oracle failure caused by absent key material.
func NewKeyUnavailable(policy KeyPolicy, cause error) *Error {
	e := &Error{
		Code:    CodeKeyUnavailable,
		Message: fmt.Sprintf("key material for policy %q is not available", policy),
		Cause:   cause,
	}
	return e.WithDetail("key_policy", string(policy))
}

// NewStoreCorrupt creates a store corruption error.
func NewStoreCorrupt(message string, cause error) *Error {
	return &Error{Code: CodeStoreCorrupt, Message: message, Cause: cause}
}

// NewAuditWriteError wraps a failure to durably append to the audit ledger.
func NewAuditWriteError(cause error) *Error {
	return &Error{Code: CodeAuditWrite, Message: "audit ledger append failed", Cause: cause}
}

// NewNotFound creates a not-found error for the named object.
func NewNotFound(name string) *Error {
	e := &Error{Code: CodeNotFound, Message: fmt.Sprintf("credential %q not found", name)}
	return e.WithDetail("name", name)
}

// NewServiceNotFound creates a not-found error for a service with no
// bindings in the store.
func NewServiceNotFound(service string) *Error {
	e := &Error{Code: CodeNotFound, Message: fmt.Sprintf("service %q has no bindings", service)}
	return e.WithDetail("service", service)
}

// NewNotInitialized reports a vault root with no metadata document.
func NewNotInitialized(root string) *Error {
	e := &Error{Code: CodeNotFound, Message: "vault is not initialized (run \"ganymede init\")"}
	return e.WithDetail("root", root)
}

// CodeOf extracts the vault error code from err, unwrapping as needed.
// Errors outside this taxonomy report an empty code.
func CodeOf(err error) Code {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// HasCode reports whether err carries the given vault error code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// RuleOf extracts the policy rule from a policy violation, or "".
func RuleOf(err error) PolicyRule {
	var ve *Error
	if !errors.As(err, &ve) || ve.Code != CodePolicy {
		return ""
	}
	return PolicyRule(ve.Details["rule"])
}
