// Package policy gates mutating operations against the configured
// constraints before any side effect occurs.
//
// Evaluation is pure: Authorize inspects only its arguments and the engine's
// immutable configuration, touches nothing on disk, and is re-run on every
// operation. Nothing is cached between calls, since key availability and
// configuration may change between invocations of the process.
package policy

import (
	"fmt"
	"log/slog"

	"mercator-hq/ganymede/pkg/vault"
)

// Config holds the declarative policy constraints. It is loaded at process
// start and read-only for the lifetime of an operation.
type Config struct {
	// AllowServices is the service allow-list. Empty means any service may
	// be bound, which is accepted but logged as an operational risk.
	AllowServices []string

	// MinSecretLength is the minimum length for auto-generated secrets.
	MinSecretLength int

	// ForbidHostOnlyWhenTPM2 rejects host-only key policy while a TPM2
	// device is available to provide stronger protection.
	ForbidHostOnlyWhenTPM2 bool
}

// Request describes a proposed operation for authorization. KeyPolicy is the
// already-resolved concrete policy; TPM2Available is the availability
// snapshot taken by the caller, passed in so evaluation stays pure.
type Request struct {
	// Operation is the operation kind, for log context.
	Operation string

	// Service is the target service, empty when the operation binds none.
	Service string

	// Credential is the target credential name, for log context.
	Credential string

	// KeyPolicy is the concrete key policy the operation will use. Empty
	// when the operation touches no key material.
	KeyPolicy vault.KeyPolicy

	// GenerateLength is the requested auto-generated secret length. Zero
	// means the secret is supplied, not generated.
	GenerateLength int

	// TPM2Available reports whether the oracle has a TPM2 device.
	TPM2Available bool
}

// Engine evaluates requests against the configured constraints.
type Engine struct {
	config Config
	allow  map[string]bool
	logger *slog.Logger
}

// NewEngine creates a policy engine for the given configuration.
func NewEngine(cfg Config) *Engine {
	logger := slog.Default().With("component", "policy")
	allow := make(map[string]bool, len(cfg.AllowServices))
	for _, s := range cfg.AllowServices {
		allow[vault.NormalizeServiceName(s)] = true
	}
	if len(allow) == 0 {
		logger.Warn("service allow-list is empty; any service may be bound")
	}
	return &Engine{config: cfg, allow: allow, logger: logger}
}

// Authorize evaluates the rules in a fixed order and returns the first
// violation, or nil when the operation is permitted. It has no side effects
// beyond logging.
func (e *Engine) Authorize(req Request) error {
	if req.Service != "" && len(e.allow) > 0 {
		service := vault.NormalizeServiceName(req.Service)
		if !e.allow[service] {
			e.logger.Info("operation rejected by allow-list",
				"operation", req.Operation,
				"service", service,
			)
			return vault.NewPolicyViolation(vault.RuleServiceNotAllowed,
				fmt.Sprintf("service %q is not on the allow-list", service)).
				WithDetail("service", service)
		}
	}

	if req.GenerateLength > 0 && req.GenerateLength < e.config.MinSecretLength {
		return vault.NewPolicyViolation(vault.RuleSecretTooShort,
			fmt.Sprintf("generated secret length %d is below the minimum %d",
				req.GenerateLength, e.config.MinSecretLength)).
			WithDetail("requested", fmt.Sprintf("%d", req.GenerateLength)).
			WithDetail("minimum", fmt.Sprintf("%d", e.config.MinSecretLength))
	}

	if e.config.ForbidHostOnlyWhenTPM2 && req.TPM2Available && req.KeyPolicy == vault.KeyPolicyHost {
		return vault.NewPolicyViolation(vault.RuleWeakKeyPolicy,
			"host-only key policy is forbidden while a TPM2 device is available").
			WithDetail("key_policy", string(req.KeyPolicy))
	}

	return nil
}
