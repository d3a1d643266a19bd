package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/audit"
	"mercator-hq/ganymede/pkg/vault/policy"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func TestMigrateImportCommits(t *testing.T) {
	f := newFixture(t, false, policy.Config{})
	path := writeEnvFile(t, strings.Join([]string{
		"# application settings",
		"DB_PASSWORD=hunter2hunter2",
		"export API_TOKEN='tok-4711-abcdef'",
		"LOG_LEVEL=debug",
		"",
	}, "\n"))

	res, err := f.orch.MigrateImport(context.Background(), MigrateSpec{
		Path:    path,
		Service: "webapp.service",
	})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if res.State != StateCommitted {
		t.Errorf("state = %s, want committed", res.State)
	}
	if got := res.Details["imported"]; got != "db_password,api_token" {
		t.Errorf("imported = %q", got)
	}

	doc := f.doc()
	for key, want := range map[string]string{
		"db_password": "hunter2hunter2",
		"api_token":   "tok-4711-abcdef",
	} {
		cred := doc.FindByName(key)
		if cred == nil {
			t.Fatalf("credential %s not imported", key)
		}
		if !cred.HasTag("migrated") {
			t.Errorf("%s lacks the migrated tag", key)
		}
		if !strings.Contains(cred.Description, path) {
			t.Errorf("%s description %q does not name the source", key, cred.Description)
		}
		if !cred.ConsumedBy("webapp") {
			t.Errorf("%s not bound to the service", key)
		}

		blob, err := f.blobs.Read(cred.BlobRef)
		if err != nil {
			t.Fatalf("read blob for %s: %v", key, err)
		}
		plaintext, err := f.oracle.Decrypt(context.Background(), key, blob)
		if err != nil {
			t.Fatalf("decrypt %s: %v", key, err)
		}
		if string(plaintext) != want {
			t.Errorf("%s = %q, want %q (quotes stripped)", key, plaintext, want)
		}
	}

	// The plain setting is not imported.
	if doc.FindByName("log_level") != nil {
		t.Error("non-secret entry was imported")
	}

	// Bindings expose <KEY>_FILE variables.
	vars := map[string]string{}
	for _, b := range doc.Bindings["webapp"] {
		vars[b.Credential] = b.EnvVar
	}
	if vars["db_password"] != "DB_PASSWORD_FILE" || vars["api_token"] != "API_TOKEN_FILE" {
		t.Errorf("exposure vars = %v", vars)
	}

	if _, err := os.Stat(f.layout.DropinPath("webapp")); err != nil {
		t.Errorf("drop-in not staged: %v", err)
	}
}

func TestMigrateImportSkipsExistingCredentials(t *testing.T) {
	f := newFixture(t, false, policy.Config{})
	f.create(CreateSpec{Name: "db_password", Secret: []byte("already-managed")})
	path := writeEnvFile(t, "DB_PASSWORD=from-the-file\nAPI_TOKEN=tok-123456\n")

	res, err := f.orch.MigrateImport(context.Background(), MigrateSpec{Path: path, Service: "webapp"})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if res.Details["imported"] != "api_token" {
		t.Errorf("imported = %q", res.Details["imported"])
	}
	if res.Details["skipped_existing"] != "db_password" {
		t.Errorf("skipped_existing = %q", res.Details["skipped_existing"])
	}

	// The existing credential keeps its secret; importing never overwrites.
	plaintext, err := f.orch.Get(context.Background(), "db_password", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(plaintext) != "already-managed" {
		t.Errorf("existing credential overwritten: %q", plaintext)
	}
}

func TestMigrateImportAllExistingRejected(t *testing.T) {
	f := newFixture(t, false, policy.Config{})
	f.create(CreateSpec{Name: "db_password", Secret: []byte("already-managed")})
	path := writeEnvFile(t, "DB_PASSWORD=from-the-file\n")

	_, err := f.orch.MigrateImport(context.Background(), MigrateSpec{Path: path, Service: "webapp"})
	if !vault.HasCode(err, vault.CodeValidation) {
		t.Fatalf("error = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), "rotate") {
		t.Errorf("error should direct the operator to rotation: %v", err)
	}
}

func TestMigrateImportDryRunLeavesNoTrace(t *testing.T) {
	f := newFixture(t, false, policy.Config{})
	path := writeEnvFile(t, "DB_PASSWORD=hunter2hunter2\nAPI_TOKEN=tok-123456\n")

	res, err := f.orch.MigrateImport(context.Background(), MigrateSpec{
		Path:    path,
		Service: "webapp",
		DryRun:  true,
	})
	if err != nil {
		t.Fatalf("dry-run migrate: %v", err)
	}
	if res.State != StateRolledBack {
		t.Errorf("state = %s, want rolled-back", res.State)
	}
	if res.Details["imported"] != "db_password,api_token" {
		t.Errorf("dry run should report what it would import, got %q", res.Details["imported"])
	}

	if len(f.doc().Credentials) != 0 {
		t.Error("dry run persisted credentials")
	}
	refs, err := f.blobs.List()
	if err != nil {
		t.Fatalf("list blobs: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("dry run left blobs behind: %v", refs)
	}
	if _, err := os.Stat(f.layout.DropinPath("webapp")); !os.IsNotExist(err) {
		t.Error("dry run staged a drop-in")
	}

	// The rehearsal itself is audited as a success.
	entries := f.entries()
	if len(entries) != 2 {
		t.Fatalf("ledger has %d entries, want 2", len(entries))
	}
	if entries[1].Outcome != audit.OutcomeSucceeded {
		t.Errorf("terminal outcome = %s, want succeeded", entries[1].Outcome)
	}
	if entries[0].Details["dry_run"] != "true" {
		t.Errorf("dry run not marked in the audit details: %v", entries[0].Details)
	}
}

func TestMigrateImportNoSecretsRejected(t *testing.T) {
	f := newFixture(t, false, policy.Config{})
	path := writeEnvFile(t, "LOG_LEVEL=debug\nPORT=8080\n")

	_, err := f.orch.MigrateImport(context.Background(), MigrateSpec{Path: path, Service: "webapp"})
	if !vault.HasCode(err, vault.CodeValidation) {
		t.Fatalf("error = %v, want validation", err)
	}
	// Rejected before the lock: nothing reaches the ledger.
	if entries := f.entries(); len(entries) != 0 {
		t.Errorf("scan rejection appended %d audit entries", len(entries))
	}
}

func TestMigrateImportMissingFileRejected(t *testing.T) {
	f := newFixture(t, false, policy.Config{})

	_, err := f.orch.MigrateImport(context.Background(), MigrateSpec{
		Path:    filepath.Join(t.TempDir(), "absent.env"),
		Service: "webapp",
	})
	if !vault.HasCode(err, vault.CodeValidation) {
		t.Fatalf("error = %v, want validation", err)
	}
}

func TestMigrateImportNameCollisionRejected(t *testing.T) {
	f := newFixture(t, false, policy.Config{})
	// Distinct keys in the file, identical once lowercased.
	path := writeEnvFile(t, "DB_PASSWORD=one-secret\ndb_password=two-secret\n")

	_, err := f.orch.MigrateImport(context.Background(), MigrateSpec{Path: path, Service: "webapp"})
	if !vault.HasCode(err, vault.CodeValidation) {
		t.Fatalf("error = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), "db_password") {
		t.Errorf("error should name the colliding credential: %v", err)
	}
	if len(f.doc().Credentials) != 0 {
		t.Error("collision rejection imported credentials")
	}
}

func TestMigrateImportOverrides(t *testing.T) {
	f := newFixture(t, false, policy.Config{})
	path := writeEnvFile(t, "DB_PASSWORD=hunter2hunter2\nFEATURE_FLAGS=abc\n")

	res, err := f.orch.MigrateImport(context.Background(), MigrateSpec{
		Path:    path,
		Service: "webapp",
		Include: []string{"FEATURE_FLAGS"},
		Exclude: []string{"DB_PASSWORD"},
	})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if res.Details["imported"] != "feature_flags" {
		t.Errorf("imported = %q, want the include override only", res.Details["imported"])
	}
	if f.doc().FindByName("db_password") != nil {
		t.Error("excluded key was imported")
	}
}

func TestMigrateImportPolicyGatesService(t *testing.T) {
	f := newFixture(t, false, policy.Config{AllowServices: []string{"auth"}})
	path := writeEnvFile(t, "DB_PASSWORD=hunter2hunter2\n")

	_, err := f.orch.MigrateImport(context.Background(), MigrateSpec{Path: path, Service: "shady"})
	if vault.RuleOf(err) != vault.RuleServiceNotAllowed {
		t.Fatalf("error = %v, want service_not_allowed", err)
	}
	if len(f.doc().Credentials) != 0 {
		t.Error("policy rejection imported credentials")
	}
}
