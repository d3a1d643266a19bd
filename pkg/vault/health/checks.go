package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/audit"
	"mercator-hq/ganymede/pkg/vault/oracle"
	"mercator-hq/ganymede/pkg/vault/policy"
)

// Deps are the vault collaborators the standard checks inspect.
type Deps struct {
	Layout *vault.Layout
	Store  *vault.Store
	Blobs  *vault.BlobStore
	Ledger *audit.Ledger
	Oracle oracle.Oracle
}

// Options tune the standard check set.
type Options struct {
	// Decrypt attempts to decrypt every current blob through the oracle.
	// Thorough but slow, and it exercises real key material, so it is off
	// by default.
	Decrypt bool
}

// Standard builds a checker with the full vault check set. Checks run in a
// fixed order: the structural checks first, then the stores, then the
// advisories.
func Standard(deps Deps, opts Options) *Checker {
	c := NewChecker(0)
	c.Register("layout", checkLayout(deps))
	c.Register("metadata", checkMetadata(deps))
	c.Register("oracle", checkOracle(deps))
	c.Register("tpm2", checkTPM2(deps))
	c.Register("audit-chain", checkAuditChain(deps))
	c.Register("blobs", checkBlobs(deps))
	if opts.Decrypt {
		c.Register("decrypt", checkDecrypt(deps))
	}
	c.Register("manifests", checkManifests(deps))
	c.Register("rotation", checkRotation(deps))
	c.Register("consumers", checkConsumers(deps))
	c.Register("key-policy", checkKeyPolicy(deps))
	return c
}

func checkLayout(deps Deps) CheckFunc {
	return func(ctx context.Context) Result {
		if !deps.Layout.Initialized() {
			return Fail(
				fmt.Sprintf("vault not initialized at %s", deps.Layout.Root),
				"run: ganymede init",
			)
		}
		if problems := deps.Layout.CheckPermissions(); len(problems) > 0 {
			return Fail(strings.Join(problems, "; "),
				"tighten modes: the vault root and credstore must be owner-only")
		}
		return Pass("directory tree present, permission discipline holds")
	}
}

func checkMetadata(deps Deps) CheckFunc {
	return func(ctx context.Context) Result {
		doc, err := deps.Store.Load()
		if err != nil {
			if vault.HasCode(err, vault.CodeNotFound) {
				return Fail(err.Error(), "run: ganymede init")
			}
			return Fail(err.Error(),
				"restore vault.json from backup; the document is the source of truth")
		}
		return Pass(fmt.Sprintf("%d credentials, %d bound services",
			len(doc.Credentials), len(doc.Bindings)))
	}
}

func checkOracle(deps Deps) CheckFunc {
	return func(ctx context.Context) Result {
		if _, err := deps.Oracle.HasTPM2(ctx); err != nil {
			hint := ""
			if deps.Oracle.Backend() == "systemd-creds" {
				hint = "check that systemd-creds is installed and the host key exists (systemd-creds setup)"
			}
			return Fail(fmt.Sprintf("oracle %s unreachable: %v", deps.Oracle.Backend(), err), hint)
		}
		return Pass(fmt.Sprintf("backend %s responds", deps.Oracle.Backend()))
	}
}

func checkTPM2(deps Deps) CheckFunc {
	return func(ctx context.Context) Result {
		has, err := deps.Oracle.HasTPM2(ctx)
		if err != nil {
			// The oracle check reports the failure; do not double it.
			return Warn("TPM2 availability unknown: "+err.Error(), "")
		}
		if !has {
			return Warn("no TPM2 device; new credentials fall back to host-only keys", "")
		}
		return Pass("TPM2 device available")
	}
}

func checkAuditChain(deps Deps) CheckFunc {
	return func(ctx context.Context) Result {
		report, err := deps.Ledger.Verify(audit.VerifyOptions{})
		if err != nil {
			return Fail("ledger unreadable: "+err.Error(), "")
		}
		if !report.Valid {
			return Fail(
				fmt.Sprintf("hash chain diverges at entry %d: %s",
					report.Divergence.Sequence, report.Divergence.Reason),
				"the ledger was modified after the fact; treat the trail after this entry as untrusted",
			)
		}
		if report.Checked == 0 {
			return Pass("ledger empty")
		}
		return Pass(fmt.Sprintf("%d entries verified", report.Checked))
	}
}

func checkBlobs(deps Deps) CheckFunc {
	return func(ctx context.Context) Result {
		doc, err := deps.Store.Load()
		if err != nil {
			return Warn("metadata unavailable, blob references not checked", "")
		}

		var missing []string
		for _, cred := range doc.Credentials {
			if !deps.Blobs.Exists(cred.BlobRef) {
				missing = append(missing, cred.BlobRef)
			}
			if cred.PrevBlobRef != "" && !deps.Blobs.Exists(cred.PrevBlobRef) {
				missing = append(missing, cred.PrevBlobRef)
			}
		}
		if len(missing) > 0 {
			return Fail(
				fmt.Sprintf("%d referenced blob(s) missing from the credstore: %s",
					len(missing), strings.Join(missing, ", ")),
				"the affected credentials cannot be decrypted; restore the credstore or delete them",
			)
		}

		orphans, err := deps.Blobs.Orphans(doc)
		if err != nil {
			return Warn("credstore unreadable: "+err.Error(), "")
		}
		if len(orphans) > 0 {
			return Warn(
				fmt.Sprintf("%d orphaned blob(s): %s", len(orphans), strings.Join(orphans, ", ")),
				"residue of interrupted operations; remove after confirming no credential needs them",
			)
		}
		return Pass("every blob reference resolves, no orphans")
	}
}

func checkDecrypt(deps Deps) CheckFunc {
	return func(ctx context.Context) Result {
		doc, err := deps.Store.Load()
		if err != nil {
			return Warn("metadata unavailable, decryption not checked", "")
		}
		var failed []string
		checked := 0
		for _, cred := range doc.Credentials {
			blob, err := deps.Blobs.Read(cred.BlobRef)
			if err != nil {
				failed = append(failed, cred.Name)
				continue
			}
			plaintext, err := deps.Oracle.Decrypt(ctx, cred.Name, blob)
			if err != nil {
				failed = append(failed, cred.Name)
				continue
			}
			vault.Zero(plaintext)
			checked++
		}
		if len(failed) > 0 {
			return Fail(
				fmt.Sprintf("%d credential(s) do not decrypt: %s", len(failed), strings.Join(failed, ", ")),
				"key material changed or blobs are damaged; rotate the affected credentials from their upstream source",
			)
		}
		if checked == 0 {
			return Pass("no credentials to decrypt")
		}
		return Pass(fmt.Sprintf("%d credential(s) decrypt cleanly", checked))
	}
}

func checkManifests(deps Deps) CheckFunc {
	return func(ctx context.Context) Result {
		doc, err := deps.Store.Load()
		if err != nil {
			return Warn("metadata unavailable, manifests not checked", "")
		}

		var problems, advisories []string
		seen := map[string]bool{}

		entries, err := os.ReadDir(deps.Layout.ServicesDir())
		if err != nil && !os.IsNotExist(err) {
			return Warn("services directory unreadable: "+err.Error(), "")
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".conf") {
				continue
			}
			path := filepath.Join(deps.Layout.ServicesDir(), entry.Name())
			manifest, err := policy.LoadManifest(path)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s does not parse: %v", entry.Name(), err))
				continue
			}
			seen[manifest.Service] = true
			for _, b := range manifest.Bindings {
				if doc.FindByName(b.Credential) == nil {
					problems = append(problems,
						fmt.Sprintf("%s references unknown credential %q", entry.Name(), b.Credential))
				}
			}
			if len(doc.Bindings[manifest.Service]) == 0 {
				advisories = append(advisories,
					fmt.Sprintf("%s is stale: the service has no bindings", entry.Name()))
			}
		}
		for _, service := range doc.ServiceNames() {
			if !seen[service] {
				advisories = append(advisories,
					fmt.Sprintf("service %s has bindings but no manifest", service))
			}
		}

		if len(problems) > 0 {
			return Fail(strings.Join(problems, "; "),
				"fix the manifest files or delete the unknown credentials from them")
		}
		if len(advisories) > 0 {
			return Warn(strings.Join(advisories, "; "),
				"rerun the binding operation for the service to regenerate its manifest")
		}
		return Pass("service manifests agree with the document")
	}
}

func checkRotation(deps Deps) CheckFunc {
	return func(ctx context.Context) Result {
		doc, err := deps.Store.Load()
		if err != nil {
			return Warn("metadata unavailable, rotation state not checked", "")
		}
		var pending []string
		for _, cred := range doc.Credentials {
			if cred.Status == vault.StatusAwaitingRevocation {
				pending = append(pending, cred.Name)
			}
		}
		if len(pending) > 0 {
			return Warn(
				fmt.Sprintf("%d credential(s) retain their previous blob: %s",
					len(pending), strings.Join(pending, ", ")),
				"revoke once every consumer restarted on the new secret",
			)
		}
		return Pass("no rotations awaiting revocation")
	}
}

func checkConsumers(deps Deps) CheckFunc {
	return func(ctx context.Context) Result {
		doc, err := deps.Store.Load()
		if err != nil {
			return Warn("metadata unavailable, consumers not checked", "")
		}
		var unbound []string
		for _, cred := range doc.Credentials {
			if len(cred.Services) == 0 {
				unbound = append(unbound, cred.Name)
			}
		}
		if len(unbound) > 0 {
			return Warn(
				fmt.Sprintf("%d credential(s) have no consuming service: %s",
					len(unbound), strings.Join(unbound, ", ")),
				"bind them or delete them; unconsumed secrets tend to rot",
			)
		}
		return Pass("every credential has a consumer")
	}
}

func checkKeyPolicy(deps Deps) CheckFunc {
	return func(ctx context.Context) Result {
		has, err := deps.Oracle.HasTPM2(ctx)
		if err != nil || !has {
			return Pass("no TPM2 device to prefer")
		}
		doc, err := deps.Store.Load()
		if err != nil {
			return Warn("metadata unavailable, key policies not checked", "")
		}
		var hostOnly []string
		for _, cred := range doc.Credentials {
			if cred.KeyPolicy == vault.KeyPolicyHost {
				hostOnly = append(hostOnly, cred.Name)
			}
		}
		if len(hostOnly) > 0 {
			return Warn(
				fmt.Sprintf("%d credential(s) use host-only keys while TPM2 is available: %s",
					len(hostOnly), strings.Join(hostOnly, ", ")),
				"rotate them with --key-policy host+tpm2 to bind them to the hardware",
			)
		}
		return Pass("all credentials use TPM2-backed keys")
	}
}
