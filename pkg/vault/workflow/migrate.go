package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/migrate"
	"mercator-hq/ganymede/pkg/vault/policy"
)

// MigrateSpec describes an environment-file import.
type MigrateSpec struct {
	// Path is the dotenv-style source file.
	Path string

	// Service receives a binding for every imported credential.
	Service string

	// KeyPolicy selects the key material for the imported blobs. Empty
	// means auto.
	KeyPolicy vault.KeyPolicy

	// DryRun executes every step except the final commit and reports what
	// would change.
	DryRun bool

	// Patterns replaces the classifier's default name patterns.
	Patterns []string

	// Include and Exclude override the classification of individual keys.
	Include []string
	Exclude []string
}

// MigrateImport imports the secret-like entries of an environment file: each
// accepted candidate runs the same encrypt, store, and bind sequence as a
// create, inside one guarded, audited operation. Entries whose credential
// already exists in the vault are skipped and reported, never overwritten;
// replacing an existing secret is a rotation, with its own fallback
// discipline.
func (o *Orchestrator) MigrateImport(ctx context.Context, spec MigrateSpec) (*Result, error) {
	if err := vault.ValidateServiceName(spec.Service); err != nil {
		return nil, err
	}
	service := vault.NormalizeServiceName(spec.Service)

	classifier := migrate.NewClassifier(spec.Patterns).
		Include(spec.Include...).
		Exclude(spec.Exclude...)
	candidates, err := migrate.Scan(spec.Path, classifier)
	if err != nil {
		return nil, vault.NewValidationError(err.Error())
	}
	secrets := migrate.Secrets(candidates)
	if len(secrets) == 0 {
		return nil, vault.NewValidationErrorf("no secret-like entries detected in %s", spec.Path)
	}

	var resolved vault.KeyPolicy
	m := mutation{
		op:     "migrate-import",
		target: service,
		dryRun: spec.DryRun,
		details: map[string]string{
			"service": service,
			"source":  spec.Path,
		},
		prepare: func(ctx context.Context, r *run, doc *vault.Document) (policy.Request, bool, error) {
			// Two keys may collapse to the same credential name once
			// lowercased; refuse the ambiguity up front.
			names := map[string]string{}
			for _, c := range secrets {
				name := migrate.CredentialName(c.Entry.Key)
				if err := vault.ValidateCredentialName(name); err != nil {
					return policy.Request{}, false, vault.NewValidationErrorf(
						"%s:%d: key %s does not yield a valid credential name: %v",
						spec.Path, c.Entry.Line, c.Entry.Key, err)
				}
				if err := vault.ValidateEnvVar(migrate.ExposureVar(c.Entry.Key)); err != nil {
					return policy.Request{}, false, vault.NewValidationErrorf(
						"%s:%d: key %s does not yield a valid exposure variable: %v",
						spec.Path, c.Entry.Line, c.Entry.Key, err)
				}
				if err := vault.ValidateSecret([]byte(c.Entry.Value)); err != nil {
					return policy.Request{}, false, vault.NewValidationErrorf(
						"%s:%d: key %s classifies as a secret but its value is unusable: %v; exclude it or fix the file",
						spec.Path, c.Entry.Line, c.Entry.Key, err)
				}
				if prev, dup := names[name]; dup {
					return policy.Request{}, false, vault.NewValidationErrorf(
						"keys %s and %s both map to credential %q", prev, c.Entry.Key, name)
				}
				names[name] = c.Entry.Key
			}
			kp, hasTPM2, err := o.resolveKeyPolicy(ctx, spec.KeyPolicy)
			if err != nil {
				return policy.Request{}, false, err
			}
			resolved = kp
			r.detail("key_policy", string(resolved))
			return policy.Request{
				Operation:     "migrate-import",
				Service:       service,
				KeyPolicy:     resolved,
				TPM2Available: hasTPM2,
			}, true, nil
		},
		apply: func(ctx context.Context, r *run, doc *vault.Document) error {
			now := time.Now().UTC()
			var imported, skipped []string
			for _, c := range secrets {
				name := migrate.CredentialName(c.Entry.Key)
				if doc.FindByName(name) != nil {
					skipped = append(skipped, name)
					continue
				}

				plaintext := []byte(c.Entry.Value)
				blob, err := o.deps.Oracle.Encrypt(ctx, name, plaintext, resolved)
				vault.Zero(plaintext)
				if err != nil {
					return stepError("encrypt", wrapEntryError(c.Entry.Key, err))
				}
				ref, err := o.deps.Blobs.Write(name, blob)
				if err != nil {
					return stepError("write-blob", wrapEntryError(c.Entry.Key, err))
				}
				r.onRollback("write-blob", "orphaned blob "+ref, func() error {
					return o.deps.Blobs.Remove(ref)
				})

				doc.UpsertCredential(vault.Credential{
					Name:        name,
					Description: "Imported from " + spec.Path,
					Tags:        []string{"migrated"},
					KeyPolicy:   resolved,
					Status:      vault.StatusActive,
					BlobRef:     ref,
					CreatedAt:   now,
				})
				if err := doc.BindService(service, name, migrate.ExposureVar(c.Entry.Key)); err != nil {
					return stepError("bind-service", wrapEntryError(c.Entry.Key, err))
				}
				imported = append(imported, name)
			}
			if len(imported) == 0 {
				return vault.NewValidationErrorf(
					"every candidate already exists in the vault (%s); rotate them instead",
					strings.Join(skipped, ", "))
			}

			r.detail("imported", strconv.Itoa(len(imported)))
			r.output("imported", strings.Join(imported, ","))
			if len(skipped) > 0 {
				r.detail("skipped_existing", strconv.Itoa(len(skipped)))
				r.output("skipped_existing", strings.Join(skipped, ","))
			}
			return nil
		},
		restage: func(*vault.Document) []string { return []string{service} },
	}
	return o.mutate(ctx, m)
}

// wrapEntryError names the environment key a migration step failed on.
func wrapEntryError(key string, err error) error {
	var ve *vault.Error
	if errors.As(err, &ve) {
		return ve.WithDetail("env_key", key)
	}
	return fmt.Errorf("entry %s: %w", key, err)
}
