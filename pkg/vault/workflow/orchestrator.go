package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/audit"
	"mercator-hq/ganymede/pkg/vault/dropin"
	"mercator-hq/ganymede/pkg/vault/oracle"
	"mercator-hq/ganymede/pkg/vault/policy"
)

// Deps wires the collaborators an orchestrator sequences. All fields except
// LockTimeout and Actor are required.
type Deps struct {
	Layout  *vault.Layout
	Store   *vault.Store
	Blobs   *vault.BlobStore
	Ledger  *audit.Ledger
	Policy  *policy.Engine
	Oracle  oracle.Oracle
	Dropins *dropin.Generator

	// LockTimeout bounds guard acquisition.
	// Default: vault.DefaultLockTimeout.
	LockTimeout time.Duration

	// Actor overrides the audited identity. Empty resolves the invoking
	// user from the environment at append time.
	Actor string

	// Metrics records operation outcomes and timings. Nil disables
	// collection.
	Metrics *metrics.Collector

	// Harden appends the sandboxing directive block to restaged drop-in
	// fragments.
	Harden bool
}

// Orchestrator runs vault operations as guarded, audited, reversible step
// sequences. It holds no state between operations; every run loads a fresh
// snapshot under the guard.
type Orchestrator struct {
	deps   Deps
	logger *slog.Logger
}

// New wires an orchestrator over the given collaborators.
func New(deps Deps) *Orchestrator {
	if deps.LockTimeout <= 0 {
		deps.LockTimeout = vault.DefaultLockTimeout
	}
	return &Orchestrator{
		deps:   deps,
		logger: slog.Default().With("component", "vault.workflow"),
	}
}

// Result reports an operation that reached a terminal state successfully.
type Result struct {
	// OpID correlates the operation's audit entries.
	OpID string

	// Operation and Target mirror the audit entries.
	Operation string
	Target    string

	// State is the terminal state reached: Committed for mutations,
	// RolledBack for dry runs, which deliberately stop short of commit.
	State State

	// Sequence is the terminal audit entry's sequence number.
	Sequence uint64

	// Details carries operation-specific outputs such as blob references
	// and staged drop-in paths.
	Details map[string]string
}

// compensation reverses one applied side effect during rollback.
type compensation struct {
	step    string
	residue string
	fn      func() error
}

// run is the mutable state of one operation execution.
type run struct {
	opID    string
	op      string
	target  string
	machine *Machine
	details map[string]string
	outputs map[string]string
	comps   []compensation
	residue []string
	logger  *slog.Logger
}

// detail records context carried into the operation's audit entries.
func (r *run) detail(key, value string) {
	if r.details == nil {
		r.details = make(map[string]string, 4)
	}
	r.details[key] = value
}

// output records an operation-specific result returned to the caller.
func (r *run) output(key, value string) {
	if r.outputs == nil {
		r.outputs = make(map[string]string, 4)
	}
	r.outputs[key] = value
}

// onRollback registers a compensation for an applied side effect. residue
// names the artifact left behind if the compensation itself fails.
func (r *run) onRollback(step, residue string, fn func() error) {
	r.comps = append(r.comps, compensation{step: step, residue: residue, fn: fn})
}

// undoAll reverses applied side effects in LIFO order, best effort. Failed
// compensations are recorded as residue, never retried.
func (r *run) undoAll() {
	for i := len(r.comps) - 1; i >= 0; i-- {
		c := r.comps[i]
		if err := c.fn(); err != nil {
			r.residue = append(r.residue, c.residue)
			r.logger.Warn("rollback step failed, residue left behind",
				"step", c.step, "residue", c.residue, "error", err)
		}
	}
	r.comps = nil
}

// mutation describes one mutating operation for the common frame.
type mutation struct {
	op      string
	target  string
	details map[string]string

	// prepare runs under the guard before authorization: existence checks
	// and key-policy resolution. It returns the request for the policy
	// engine, or ok=false when the operation needs no policy evaluation.
	prepare func(ctx context.Context, r *run, doc *vault.Document) (policy.Request, bool, error)

	// apply performs the side-effecting steps against the snapshot,
	// registering compensations as effects land.
	apply func(ctx context.Context, r *run, doc *vault.Document) error

	// restage lists services whose drop-in fragments must be regenerated
	// after commit. Evaluated on the mutated snapshot.
	restage func(doc *vault.Document) []string

	// dryRun reverses every applied effect instead of committing. The
	// terminal audit entry still records success: the dry run itself worked.
	dryRun bool
}

// mutate drives one operation through the lifecycle and records its outcome.
// On failure the returned error names the failing step, the op ID, and any
// residue.
func (o *Orchestrator) mutate(ctx context.Context, m mutation) (*Result, error) {
	start := time.Now()
	res, err := o.execute(ctx, m)
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	o.deps.Metrics.ObserveOperation(m.op, outcome, time.Since(start))
	return res, err
}

func (o *Orchestrator) execute(ctx context.Context, m mutation) (*Result, error) {
	r := &run{
		opID:    uuid.NewString(),
		op:      m.op,
		target:  m.target,
		machine: NewMachine(),
		details: m.details,
	}
	r.logger = o.logger.With("op", m.op, "target", m.target, "op_id", r.opID)
	if m.dryRun {
		r.detail("dry_run", "true")
	}

	// The guard serializes every writer, including the audit ledger's
	// read-tip-then-append. Contention therefore produces no entry at all:
	// appending without the guard could fork the chain.
	guard := vault.NewGuard(o.deps.Layout.LockPath(), o.deps.LockTimeout)
	lockStart := time.Now()
	err := guard.Acquire(ctx)
	o.deps.Metrics.ObserveLockWait(time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	doc, err := o.deps.Store.Load()
	if err != nil {
		return nil, o.reject(r, err)
	}
	orig := doc.Clone()

	prepStart := time.Now()
	req, evaluate, err := m.prepare(ctx, r, doc)
	o.deps.Metrics.ObserveStep(m.op, "prepare", time.Since(prepStart))
	if err != nil {
		return nil, o.reject(r, err)
	}
	if evaluate {
		if err := o.deps.Policy.Authorize(req); err != nil {
			return nil, o.reject(r, err)
		}
	}
	if err := r.machine.To(StateAuthorized); err != nil {
		return nil, err
	}

	if _, err := o.append(audit.Draft{
		Operation: r.op,
		Target:    r.target,
		Outcome:   audit.OutcomeAttempted,
		OpID:      r.opID,
		Details:   r.details,
	}); err != nil {
		// Nothing has been applied; refuse to start without the record.
		return nil, err
	}
	if err := r.machine.To(StateInProgress); err != nil {
		return nil, err
	}

	applyStart := time.Now()
	err = m.apply(ctx, r, doc)
	o.deps.Metrics.ObserveStep(m.op, "apply", time.Since(applyStart))
	if err != nil {
		return nil, o.rollback(r, err)
	}

	if m.dryRun {
		r.undoAll()
		return o.conclude(r, StateRolledBack)
	}

	commitStart := time.Now()
	err = o.deps.Store.Commit(doc)
	o.deps.Metrics.ObserveStep(m.op, "commit", time.Since(commitStart))
	if err != nil {
		return nil, o.rollback(r, stepError("commit", err))
	}
	r.onRollback("commit", "committed metadata document "+o.deps.Store.Path(), func() error {
		return o.deps.Store.Commit(orig)
	})

	if m.restage != nil {
		services := m.restage(doc)
		if err := o.restageServices(services, doc); err != nil {
			return nil, o.rollback(r, stepError("stage-dropin", err))
		}
		r.onRollback("stage-dropin", "stale drop-in fragments for "+strings.Join(services, ","), func() error {
			return o.restageServices(services, orig)
		})
	}

	return o.conclude(r, StateCommitted)
}

// conclude appends the terminal succeeded entry and reaches the final
// state. An operation whose terminal entry cannot be durably recorded is
// rolled back and reported as failed, never as committed.
func (o *Orchestrator) conclude(r *run, final State) (*Result, error) {
	entry, err := o.append(audit.Draft{
		Operation: r.op,
		Target:    r.target,
		Outcome:   audit.OutcomeSucceeded,
		OpID:      r.opID,
		Details:   r.details,
	})
	if err != nil {
		return nil, o.rollback(r, err)
	}
	if err := r.machine.To(final); err != nil {
		return nil, err
	}
	r.logger.Info("operation committed", "sequence", entry.Sequence, "state", final)
	return &Result{
		OpID:      r.opID,
		Operation: r.op,
		Target:    r.target,
		State:     final,
		Sequence:  entry.Sequence,
		Details:   r.outputs,
	}, nil
}

// reject closes an operation that failed before any side effect with a
// single terminal entry. There is nothing to reverse.
func (o *Orchestrator) reject(r *run, cause error) error {
	_ = r.machine.To(StateRolledBack)
	enriched := o.enrich(r, cause)
	if _, err := o.append(audit.Draft{
		Operation: r.op,
		Target:    r.target,
		Outcome:   audit.OutcomeFailed,
		Reason:    cause.Error(),
		OpID:      r.opID,
		Details:   r.details,
	}); err != nil {
		return errors.Join(enriched, err)
	}
	return enriched
}

// rollback reverses applied side effects and appends the terminal failed
// entry. The returned error carries the original cause; a failed terminal
// append is joined, never swallowed.
func (o *Orchestrator) rollback(r *run, cause error) error {
	r.undoAll()
	_ = r.machine.To(StateRolledBack)
	enriched := o.enrich(r, cause)
	if len(r.residue) > 0 {
		r.detail("residue", strings.Join(r.residue, ", "))
	}
	if _, err := o.append(audit.Draft{
		Operation: r.op,
		Target:    r.target,
		Outcome:   audit.OutcomeFailed,
		Reason:    cause.Error(),
		OpID:      r.opID,
		Details:   r.details,
	}); err != nil {
		return errors.Join(enriched, err)
	}
	r.logger.Info("operation rolled back", "reason", cause.Error())
	return enriched
}

// enrich attaches the op ID and residue to the failure so the caller can
// correlate the audit trail and clean up.
func (o *Orchestrator) enrich(r *run, cause error) error {
	var ve *vault.Error
	if !errors.As(cause, &ve) {
		return fmt.Errorf("operation %s %s (op %s) failed: %w", r.op, r.target, r.opID, cause)
	}
	ve.WithDetail("op_id", r.opID)
	if len(r.residue) > 0 {
		ve.WithDetail("residue", strings.Join(r.residue, ", "))
	}
	return cause
}

// append writes one ledger entry with the orchestrator's actor identity.
func (o *Orchestrator) append(d audit.Draft) (*audit.Entry, error) {
	d.Actor = o.deps.Actor
	return o.deps.Ledger.Append(d)
}

// restageServices regenerates the staged drop-in fragment and the binding
// manifest for each service. Both are derived from the committed document; a
// service with no remaining bindings has them removed.
func (o *Orchestrator) restageServices(services []string, doc *vault.Document) error {
	for _, service := range services {
		name := vault.NormalizeServiceName(service)
		manifest := o.deps.Layout.ServiceManifestPath(name)
		if len(doc.Bindings[name]) == 0 {
			if err := removeStaged(o.deps.Dropins.StagedPath(name)); err != nil {
				return err
			}
			if err := removeStaged(manifest); err != nil {
				return err
			}
			continue
		}
		content, err := o.deps.Dropins.Generate(doc, name, dropin.Options{Hardening: o.deps.Harden})
		if err != nil {
			return err
		}
		if _, err := o.deps.Dropins.Stage(name, content); err != nil {
			return err
		}
		if err := policy.WriteManifest(manifest, doc.Bindings[name]); err != nil {
			return err
		}
	}
	return nil
}

// resolveKeyPolicy probes the oracle once and resolves auto to a concrete
// policy. The availability snapshot is returned for policy evaluation.
func (o *Orchestrator) resolveKeyPolicy(ctx context.Context, requested vault.KeyPolicy) (vault.KeyPolicy, bool, error) {
	if requested == "" {
		requested = vault.KeyPolicyAuto
	}
	if !requested.Valid() {
		return "", false, vault.NewValidationErrorf("invalid key policy %q", requested)
	}
	hasTPM2, err := o.deps.Oracle.HasTPM2(ctx)
	if err != nil {
		return "", false, stepError("probe-tpm2", err)
	}
	return requested.Resolve(hasTPM2), hasTPM2, nil
}

// removeStaged deletes a staged fragment, tolerating absence.
func removeStaged(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// stepError names the failing step on the error.
func stepError(step string, err error) error {
	var ve *vault.Error
	if errors.As(err, &ve) {
		if ve.Step == "" {
			ve.Step = step
		}
		return err
	}
	return fmt.Errorf("step %s: %w", step, err)
}
