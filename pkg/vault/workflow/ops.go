package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/audit"
	"mercator-hq/ganymede/pkg/vault/policy"
)

// CreateSpec describes a create operation.
type CreateSpec struct {
	// Name is the credential name.
	Name string

	// Description and Tags are free-form metadata.
	Description string
	Tags        []string

	// Service optionally binds the credential at creation time; EnvVar is
	// the exposure variable for that binding.
	Service string
	EnvVar  string

	// KeyPolicy selects the key material. Empty means auto.
	KeyPolicy vault.KeyPolicy

	// Secret is the supplied plaintext. The orchestrator takes ownership
	// and zeroes it once handed to the oracle.
	Secret []byte

	// Generate requests an auto-generated secret of GenerateLength (zero
	// means the default length). Mutually exclusive with Secret.
	Generate       bool
	GenerateLength int
}

func (s *CreateSpec) validate() error {
	if err := vault.ValidateCredentialName(s.Name); err != nil {
		return err
	}
	if s.Service != "" {
		if err := vault.ValidateServiceName(s.Service); err != nil {
			return err
		}
	}
	if s.EnvVar != "" {
		if s.Service == "" {
			return vault.NewValidationError("an env var requires a service to bind")
		}
		if err := vault.ValidateEnvVar(s.EnvVar); err != nil {
			return err
		}
	}
	if s.Generate && len(s.Secret) > 0 {
		return vault.NewValidationError("a generated and a supplied secret are mutually exclusive")
	}
	if s.Generate {
		if s.GenerateLength == 0 {
			s.GenerateLength = vault.DefaultGeneratedLength
		}
		if s.GenerateLength < 0 {
			return vault.NewValidationErrorf("generated secret length must be positive, got %d", s.GenerateLength)
		}
		return nil
	}
	return vault.ValidateSecret(s.Secret)
}

// Create encrypts a new secret, records its metadata, and optionally binds
// it to a service in the same operation.
func (o *Orchestrator) Create(ctx context.Context, spec CreateSpec) (*Result, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	service := vault.NormalizeServiceName(spec.Service)

	var resolved vault.KeyPolicy
	m := mutation{
		op:     "create",
		target: spec.Name,
		prepare: func(ctx context.Context, r *run, doc *vault.Document) (policy.Request, bool, error) {
			if doc.FindByName(spec.Name) != nil {
				return policy.Request{}, false, vault.NewValidationErrorf("credential %q already exists", spec.Name)
			}
			kp, hasTPM2, err := o.resolveKeyPolicy(ctx, spec.KeyPolicy)
			if err != nil {
				return policy.Request{}, false, err
			}
			resolved = kp
			r.detail("key_policy", string(resolved))
			if service != "" {
				r.detail("service", service)
			}
			return policy.Request{
				Operation:      "create",
				Service:        service,
				Credential:     spec.Name,
				KeyPolicy:      resolved,
				GenerateLength: generateLength(spec.Generate, spec.GenerateLength),
				TPM2Available:  hasTPM2,
			}, true, nil
		},
		apply: func(ctx context.Context, r *run, doc *vault.Document) error {
			secret := spec.Secret
			if spec.Generate {
				generated, err := vault.GenerateSecret(spec.GenerateLength)
				if err != nil {
					return stepError("generate-secret", err)
				}
				secret = generated
			}
			blob, err := o.deps.Oracle.Encrypt(ctx, spec.Name, secret, resolved)
			vault.Zero(secret)
			if err != nil {
				return stepError("encrypt", err)
			}
			ref, err := o.deps.Blobs.Write(spec.Name, blob)
			if err != nil {
				return stepError("write-blob", err)
			}
			r.onRollback("write-blob", "orphaned blob "+ref, func() error {
				return o.deps.Blobs.Remove(ref)
			})

			doc.UpsertCredential(vault.Credential{
				Name:        spec.Name,
				Description: spec.Description,
				Tags:        dedup(spec.Tags),
				KeyPolicy:   resolved,
				Status:      vault.StatusActive,
				BlobRef:     ref,
				CreatedAt:   time.Now().UTC(),
			})
			if service != "" {
				if err := doc.BindService(service, spec.Name, spec.EnvVar); err != nil {
					return stepError("bind-service", err)
				}
			}
			r.output("blob_ref", ref)
			return nil
		},
	}
	if service != "" {
		m.restage = func(*vault.Document) []string { return []string{service} }
	}
	return o.mutate(ctx, m)
}

// RotateSpec describes a rotation.
type RotateSpec struct {
	// Name is the credential to rotate.
	Name string

	// KeyPolicy selects the key material for the new blob. Empty means
	// auto; the credential's recorded policy is updated to the resolution.
	KeyPolicy vault.KeyPolicy

	// Secret is the supplied replacement plaintext; the orchestrator zeroes
	// it once handed to the oracle.
	Secret []byte

	// Generate requests an auto-generated replacement of GenerateLength.
	Generate       bool
	GenerateLength int
}

func (s *RotateSpec) validate() error {
	if err := vault.ValidateCredentialName(s.Name); err != nil {
		return err
	}
	if s.Generate && len(s.Secret) > 0 {
		return vault.NewValidationError("a generated and a supplied secret are mutually exclusive")
	}
	if s.Generate {
		if s.GenerateLength == 0 {
			s.GenerateLength = vault.DefaultGeneratedLength
		}
		if s.GenerateLength < 0 {
			return vault.NewValidationErrorf("generated secret length must be positive, got %d", s.GenerateLength)
		}
		return nil
	}
	return vault.ValidateSecret(s.Secret)
}

// Rotate installs a new secret while retaining the previous blob as the
// fallback. The credential enters awaiting-revocation; the retained blob is
// deleted only by an explicit later Revoke, after the operator has
// restarted consumers and confirmed health. A rotation that fails at any
// step leaves the prior blob and metadata untouched.
func (o *Orchestrator) Rotate(ctx context.Context, spec RotateSpec) (*Result, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	var resolved vault.KeyPolicy
	m := mutation{
		op:     "rotate",
		target: spec.Name,
		prepare: func(ctx context.Context, r *run, doc *vault.Document) (policy.Request, bool, error) {
			cred := doc.FindByName(spec.Name)
			if cred == nil {
				return policy.Request{}, false, vault.NewNotFound(spec.Name)
			}
			if cred.Status == vault.StatusAwaitingRevocation {
				return policy.Request{}, false, vault.NewValidationErrorf(
					"credential %q still retains its previous blob; revoke it before rotating again", spec.Name)
			}
			kp, hasTPM2, err := o.resolveKeyPolicy(ctx, spec.KeyPolicy)
			if err != nil {
				return policy.Request{}, false, err
			}
			resolved = kp
			r.detail("key_policy", string(resolved))
			return policy.Request{
				Operation:      "rotate",
				Credential:     spec.Name,
				KeyPolicy:      resolved,
				GenerateLength: generateLength(spec.Generate, spec.GenerateLength),
				TPM2Available:  hasTPM2,
			}, true, nil
		},
		apply: func(ctx context.Context, r *run, doc *vault.Document) error {
			secret := spec.Secret
			if spec.Generate {
				generated, err := vault.GenerateSecret(spec.GenerateLength)
				if err != nil {
					return stepError("generate-secret", err)
				}
				secret = generated
			}
			blob, err := o.deps.Oracle.Encrypt(ctx, spec.Name, secret, resolved)
			vault.Zero(secret)
			if err != nil {
				return stepError("encrypt", err)
			}

			prevRef, err := o.deps.Blobs.KeepPrevious(spec.Name)
			if err != nil {
				return stepError("retain-previous", err)
			}
			r.onRollback("retain-previous", "orphaned retained blob "+prevRef, func() error {
				return o.deps.Blobs.Remove(prevRef)
			})

			ref, err := o.deps.Blobs.Write(spec.Name, blob)
			if err != nil {
				return stepError("write-blob", err)
			}
			r.onRollback("write-blob", "rotated blob "+ref+" not restored", func() error {
				return o.deps.Blobs.RestorePrevious(spec.Name)
			})

			cred := *doc.FindByName(spec.Name)
			now := time.Now().UTC()
			cred.KeyPolicy = resolved
			cred.Status = vault.StatusAwaitingRevocation
			cred.PrevBlobRef = prevRef
			cred.RotatedAt = &now
			doc.UpsertCredential(cred)

			r.output("blob_ref", ref)
			r.output("prev_blob_ref", prevRef)
			return nil
		},
	}
	return o.mutate(ctx, m)
}

// Revoke is the explicit second phase of a rotation: it discards the
// retained previous blob and returns the credential to active.
func (o *Orchestrator) Revoke(ctx context.Context, name string) (*Result, error) {
	if err := vault.ValidateCredentialName(name); err != nil {
		return nil, err
	}

	m := mutation{
		op:     "revoke",
		target: name,
		prepare: func(ctx context.Context, r *run, doc *vault.Document) (policy.Request, bool, error) {
			cred := doc.FindByName(name)
			if cred == nil {
				return policy.Request{}, false, vault.NewNotFound(name)
			}
			if cred.Status != vault.StatusAwaitingRevocation {
				return policy.Request{}, false, vault.NewValidationErrorf(
					"credential %q retains no previous blob; nothing to revoke", name)
			}
			return policy.Request{}, false, nil
		},
		apply: func(ctx context.Context, r *run, doc *vault.Document) error {
			cred := *doc.FindByName(name)
			prevRef := cred.PrevBlobRef

			// Hold the bytes so a failed commit can reinstate the artifact.
			retained, err := o.deps.Blobs.Read(prevRef)
			if err != nil {
				return stepError("read-retained", err)
			}
			if err := o.deps.Blobs.Remove(prevRef); err != nil {
				return stepError("discard-retained", err)
			}
			r.onRollback("discard-retained", "missing retained blob "+prevRef, func() error {
				return o.deps.Blobs.Put(prevRef, retained)
			})

			cred.Status = vault.StatusActive
			cred.PrevBlobRef = ""
			doc.UpsertCredential(cred)
			return nil
		},
	}
	return o.mutate(ctx, m)
}

// DeleteSpec describes a deletion.
type DeleteSpec struct {
	// Name is the credential to delete.
	Name string

	// Force unbinds consuming services first. Without it, deletion of a
	// consumed credential is rejected.
	Force bool
}

// Delete removes a credential's metadata, blob, retained blob, and, with
// Force, its service bindings.
func (o *Orchestrator) Delete(ctx context.Context, spec DeleteSpec) (*Result, error) {
	if err := vault.ValidateCredentialName(spec.Name); err != nil {
		return nil, err
	}

	var unbound []string
	m := mutation{
		op:     "delete",
		target: spec.Name,
		prepare: func(ctx context.Context, r *run, doc *vault.Document) (policy.Request, bool, error) {
			cred := doc.FindByName(spec.Name)
			if cred == nil {
				return policy.Request{}, false, vault.NewNotFound(spec.Name)
			}
			if len(cred.Services) > 0 && !spec.Force {
				return policy.Request{}, false, vault.NewValidationErrorf(
					"credential %q is consumed by %d service(s); unbind first or force the deletion",
					spec.Name, len(cred.Services))
			}
			return policy.Request{}, false, nil
		},
		apply: func(ctx context.Context, r *run, doc *vault.Document) error {
			cred := *doc.FindByName(spec.Name)

			unbound = append([]string(nil), cred.Services...)
			for _, service := range unbound {
				doc.UnbindService(service, spec.Name)
			}

			for _, ref := range []string{cred.BlobRef, cred.PrevBlobRef} {
				if ref == "" || !o.deps.Blobs.Exists(ref) {
					continue
				}
				blob, err := o.deps.Blobs.Read(ref)
				if err != nil {
					return stepError("remove-blob", err)
				}
				removed := ref
				if err := o.deps.Blobs.Remove(removed); err != nil {
					return stepError("remove-blob", err)
				}
				r.onRollback("remove-blob", "missing blob "+removed, func() error {
					return o.deps.Blobs.Put(removed, blob)
				})
			}

			doc.RemoveCredential(spec.Name)
			return nil
		},
		restage: func(*vault.Document) []string { return unbound },
	}
	return o.mutate(ctx, m)
}

// BindSpec describes a service binding.
type BindSpec struct {
	// Credential is the credential to expose.
	Credential string

	// Service is the consuming service, with or without the .service
	// suffix.
	Service string

	// EnvVar optionally names the environment variable pointed at the
	// materialized credential. Unique within the service.
	EnvVar string
}

// Bind exposes a credential to a service and restages its drop-in.
func (o *Orchestrator) Bind(ctx context.Context, spec BindSpec) (*Result, error) {
	if err := vault.ValidateCredentialName(spec.Credential); err != nil {
		return nil, err
	}
	if err := vault.ValidateServiceName(spec.Service); err != nil {
		return nil, err
	}
	if spec.EnvVar != "" {
		if err := vault.ValidateEnvVar(spec.EnvVar); err != nil {
			return nil, err
		}
	}
	service := vault.NormalizeServiceName(spec.Service)

	m := mutation{
		op:      "bind",
		target:  spec.Credential,
		details: map[string]string{"service": service},
		prepare: func(ctx context.Context, r *run, doc *vault.Document) (policy.Request, bool, error) {
			if doc.FindByName(spec.Credential) == nil {
				return policy.Request{}, false, vault.NewNotFound(spec.Credential)
			}
			return policy.Request{
				Operation:  "bind",
				Service:    service,
				Credential: spec.Credential,
			}, true, nil
		},
		apply: func(ctx context.Context, r *run, doc *vault.Document) error {
			if err := doc.BindService(service, spec.Credential, spec.EnvVar); err != nil {
				return stepError("bind-service", err)
			}
			return nil
		},
		restage: func(*vault.Document) []string { return []string{service} },
	}
	return o.mutate(ctx, m)
}

// UnbindSpec describes a binding removal.
type UnbindSpec struct {
	Credential string
	Service    string
}

// Unbind removes a credential's exposure from a service. The allow-list is
// not consulted: removing access must stay possible after a service leaves
// the list.
func (o *Orchestrator) Unbind(ctx context.Context, spec UnbindSpec) (*Result, error) {
	if err := vault.ValidateCredentialName(spec.Credential); err != nil {
		return nil, err
	}
	if err := vault.ValidateServiceName(spec.Service); err != nil {
		return nil, err
	}
	service := vault.NormalizeServiceName(spec.Service)

	m := mutation{
		op:      "unbind",
		target:  spec.Credential,
		details: map[string]string{"service": service},
		prepare: func(ctx context.Context, r *run, doc *vault.Document) (policy.Request, bool, error) {
			cred := doc.FindByName(spec.Credential)
			if cred == nil {
				return policy.Request{}, false, vault.NewNotFound(spec.Credential)
			}
			if !cred.ConsumedBy(service) {
				return policy.Request{}, false, vault.NewValidationErrorf(
					"credential %q is not bound to service %q", spec.Credential, service)
			}
			return policy.Request{}, false, nil
		},
		apply: func(ctx context.Context, r *run, doc *vault.Document) error {
			doc.UnbindService(service, spec.Credential)
			return nil
		},
		restage: func(*vault.Document) []string { return []string{service} },
	}
	return o.mutate(ctx, m)
}

// Get decrypts a credential's current blob. The read mutates nothing, but
// revealing a secret is always audited, and the append must be serialized,
// so the guard is held for the duration. accessReason, when given, is
// recorded with the entry.
//
// The plaintext is never returned without a durable audit record.
func (o *Orchestrator) Get(ctx context.Context, name, accessReason string) ([]byte, error) {
	start := time.Now()
	plaintext, err := o.getAudited(ctx, name, accessReason)
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	o.deps.Metrics.ObserveOperation("get", outcome, time.Since(start))
	return plaintext, err
}

func (o *Orchestrator) getAudited(ctx context.Context, name, accessReason string) ([]byte, error) {
	if err := vault.ValidateCredentialName(name); err != nil {
		return nil, err
	}

	guard := vault.NewGuard(o.deps.Layout.LockPath(), o.deps.LockTimeout)
	lockStart := time.Now()
	err := guard.Acquire(ctx)
	o.deps.Metrics.ObserveLockWait(time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	opID := uuid.NewString()
	details := map[string]string{}
	if accessReason != "" {
		details["access_reason"] = accessReason
	}

	plaintext, err := o.get(ctx, name)
	if err != nil {
		_, auditErr := o.append(audit.Draft{
			Operation: "get",
			Target:    name,
			Outcome:   audit.OutcomeFailed,
			Reason:    err.Error(),
			OpID:      opID,
			Details:   details,
		})
		if auditErr != nil {
			return nil, errors.Join(err, auditErr)
		}
		return nil, err
	}

	if _, auditErr := o.append(audit.Draft{
		Operation: "get",
		Target:    name,
		Outcome:   audit.OutcomeSucceeded,
		OpID:      opID,
		Details:   details,
	}); auditErr != nil {
		vault.Zero(plaintext)
		return nil, auditErr
	}
	return plaintext, nil
}

func (o *Orchestrator) get(ctx context.Context, name string) ([]byte, error) {
	doc, err := o.deps.Store.Load()
	if err != nil {
		return nil, err
	}
	cred := doc.FindByName(name)
	if cred == nil {
		return nil, vault.NewNotFound(name)
	}
	blob, err := o.deps.Blobs.Read(cred.BlobRef)
	if err != nil {
		return nil, err
	}
	return o.deps.Oracle.Decrypt(ctx, name, blob)
}

// generateLength is the length the policy engine evaluates: zero when the
// secret is supplied rather than generated.
func generateLength(generate bool, length int) int {
	if !generate {
		return 0
	}
	return length
}

// dedup drops repeated values, preserving first-seen order.
func dedup(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
