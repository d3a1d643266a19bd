//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/audit"
	"mercator-hq/ganymede/pkg/vault/dropin"
	"mercator-hq/ganymede/pkg/vault/maintain"
	"mercator-hq/ganymede/pkg/vault/oracle"
	"mercator-hq/ganymede/pkg/vault/policy"
	"mercator-hq/ganymede/pkg/vault/workflow"
)

// testVault wires the full collaborator set over a temp directory,
// mirroring the production wiring in cmd/ganymede. The in-memory oracle
// reports a TPM2 device so a healthy vault sweeps clean.
type testVault struct {
	layout *vault.Layout
	store  *vault.Store
	blobs  *vault.BlobStore
	ledger *audit.Ledger
	oracle oracle.Oracle
	orch   *workflow.Orchestrator
}

func newTestVault(t *testing.T, pol policy.Config) *testVault {
	t.Helper()

	layout := vault.NewLayout(filepath.Join(t.TempDir(), "vault"))
	if err := layout.Init(); err != nil {
		t.Fatalf("layout init: %v", err)
	}

	tv := &testVault{
		layout: layout,
		store:  vault.NewStore(layout.MetadataPath()),
		blobs:  vault.NewBlobStore(layout.CredstoreDir()),
		ledger: audit.NewLedger(layout.AuditLogPath()),
		oracle: oracle.NewMemory(true),
	}
	tv.orch = workflow.New(workflow.Deps{
		Layout:      layout,
		Store:       tv.store,
		Blobs:       tv.blobs,
		Ledger:      tv.ledger,
		Policy:      policy.NewEngine(pol),
		Oracle:      tv.oracle,
		Dropins:     dropin.NewGenerator(layout),
		LockTimeout: 5 * time.Second,
	})

	// Same bootstrap sequence as `ganymede init`: the attempted entry
	// precedes the metadata write.
	if _, err := tv.ledger.Append(audit.Draft{
		Operation: "init",
		Target:    layout.Root,
		Outcome:   audit.OutcomeAttempted,
	}); err != nil {
		t.Fatalf("append init attempt: %v", err)
	}
	if err := tv.store.Commit(vault.NewDocument()); err != nil {
		t.Fatalf("commit empty document: %v", err)
	}
	if _, err := tv.ledger.Append(audit.Draft{
		Operation: "init",
		Target:    layout.Root,
		Outcome:   audit.OutcomeSucceeded,
	}); err != nil {
		t.Fatalf("append init success: %v", err)
	}
	return tv
}

func (tv *testVault) load(t *testing.T) *vault.Document {
	t.Helper()
	doc, err := tv.store.Load()
	if err != nil {
		t.Fatalf("load document: %v", err)
	}
	return doc
}

// TestLifecycle drives one credential through its whole life: create with an
// inline binding, decrypt round trip, drop-in install, rotate, the re-rotate
// refusal, revoke, unbind, delete, and a final chain verification over the
// ledger that recorded all of it.
func TestLifecycle(t *testing.T) {
	tv := newTestVault(t, policy.Config{})
	ctx := context.Background()

	res, err := tv.orch.Create(ctx, workflow.CreateSpec{
		Name:    "db_password",
		Service: "webapp",
		EnvVar:  "DB_PASSWORD",
		Secret:  []byte("correct horse battery staple"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Details["blob_ref"] == "" {
		t.Fatal("create reported no blob_ref")
	}

	doc := tv.load(t)
	cred := doc.FindByName("db_password")
	if cred == nil {
		t.Fatal("credential missing after create")
	}
	if cred.Status != vault.StatusActive {
		t.Errorf("status = %q, want active", cred.Status)
	}
	if !cred.ConsumedBy("webapp") {
		t.Error("webapp binding missing after create")
	}
	if !tv.blobs.Exists(cred.BlobRef) {
		t.Errorf("blob %s missing from credstore", cred.BlobRef)
	}

	secret, err := tv.orch.Get(ctx, "db_password", "lifecycle check")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(secret) != "correct horse battery staple" {
		t.Errorf("decrypted %q, want the created plaintext", secret)
	}

	// Install the drop-in into a scratch unit directory and check the
	// directives a service manager would consume.
	unitDir := t.TempDir()
	content, err := dropin.NewGenerator(tv.layout).Generate(doc, "webapp", dropin.Options{})
	if err != nil {
		t.Fatalf("generate drop-in: %v", err)
	}
	installed, err := dropin.Install(unitDir, "webapp", content)
	if err != nil {
		t.Fatalf("install drop-in: %v", err)
	}
	fragment, err := os.ReadFile(installed)
	if err != nil {
		t.Fatalf("read installed fragment: %v", err)
	}
	if !strings.Contains(string(fragment), "LoadCredentialEncrypted=db_password:") {
		t.Errorf("fragment lacks LoadCredentialEncrypted directive:\n%s", fragment)
	}
	if !strings.Contains(string(fragment), "Environment=DB_PASSWORD=/run/credentials/%N/db_password") {
		t.Errorf("fragment lacks Environment directive:\n%s", fragment)
	}

	if _, err := tv.orch.Rotate(ctx, workflow.RotateSpec{
		Name:   "db_password",
		Secret: []byte("rotated secret material"),
	}); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	doc = tv.load(t)
	cred = doc.FindByName("db_password")
	if cred.Status != vault.StatusAwaitingRevocation {
		t.Errorf("status after rotate = %q, want awaiting-revocation", cred.Status)
	}
	if cred.PrevBlobRef == "" || !tv.blobs.Exists(cred.PrevBlobRef) {
		t.Error("previous blob not retained after rotate")
	}
	prevRef := cred.PrevBlobRef

	secret, err = tv.orch.Get(ctx, "db_password", "post-rotate check")
	if err != nil {
		t.Fatalf("get after rotate: %v", err)
	}
	if string(secret) != "rotated secret material" {
		t.Errorf("decrypted %q after rotate, want the new plaintext", secret)
	}

	// A second rotation is refused while the fallback is retained.
	_, err = tv.orch.Rotate(ctx, workflow.RotateSpec{
		Name:   "db_password",
		Secret: []byte("rotated once more"),
	})
	if vault.CodeOf(err) != vault.CodeValidation {
		t.Fatalf("re-rotate error code = %v, want validation", vault.CodeOf(err))
	}

	if _, err := tv.orch.Revoke(ctx, "db_password"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	doc = tv.load(t)
	cred = doc.FindByName("db_password")
	if cred.Status != vault.StatusActive {
		t.Errorf("status after revoke = %q, want active", cred.Status)
	}
	if cred.PrevBlobRef != "" || tv.blobs.Exists(prevRef) {
		t.Error("previous blob survived revocation")
	}

	if _, err := tv.orch.Unbind(ctx, workflow.UnbindSpec{Credential: "db_password", Service: "webapp"}); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if _, err := tv.orch.Delete(ctx, workflow.DeleteSpec{Name: "db_password"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	doc = tv.load(t)
	if doc.FindByName("db_password") != nil {
		t.Error("credential still present after delete")
	}

	report, err := tv.ledger.Verify(audit.VerifyOptions{})
	if err != nil {
		t.Fatalf("verify ledger: %v", err)
	}
	if !report.Valid {
		t.Fatalf("ledger chain invalid after lifecycle: %+v", report.Divergence)
	}

	succeeded := map[string]int{}
	entries, err := tv.ledger.Entries()
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	for _, e := range entries {
		if e.Outcome == audit.OutcomeSucceeded {
			succeeded[e.Operation]++
		}
	}
	for _, op := range []string{"init", "create", "get", "rotate", "revoke", "unbind", "delete"} {
		if succeeded[op] == 0 {
			t.Errorf("ledger has no succeeded %s entry", op)
		}
	}
}

// TestMigrateImportAndSweep imports an env file, then runs a maintenance
// sweep over the result: chain verification, index sync, health checks, and
// the metrics snapshot.
func TestMigrateImportAndSweep(t *testing.T) {
	tv := newTestVault(t, policy.Config{})
	ctx := context.Background()

	envFile := filepath.Join(t.TempDir(), "webapp.env")
	env := "DB_PASSWORD=hunter2hunter2\nAPP_MODE=production\nAPI_TOKEN=tok-3f9c2a8b41\n"
	if err := os.WriteFile(envFile, []byte(env), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	res, err := tv.orch.MigrateImport(ctx, workflow.MigrateSpec{
		Path:    envFile,
		Service: "webapp",
	})
	if err != nil {
		t.Fatalf("migrate import: %v", err)
	}
	imported := res.Details["imported"]
	if !strings.Contains(imported, "db_password") || !strings.Contains(imported, "api_token") {
		t.Errorf("imported = %q, want db_password and api_token", imported)
	}

	doc := tv.load(t)
	for _, name := range []string{"db_password", "api_token"} {
		cred := doc.FindByName(name)
		if cred == nil {
			t.Fatalf("credential %s missing after import", name)
		}
		if !cred.ConsumedBy("webapp") {
			t.Errorf("credential %s not bound to webapp", name)
		}
	}
	if doc.FindByName("app_mode") != nil {
		t.Error("non-secret APP_MODE was imported")
	}

	metricsPath := filepath.Join(t.TempDir(), "ganymede.prom")
	sweeper := maintain.NewSweeper(maintain.Deps{
		Layout:       tv.layout,
		Store:        tv.store,
		Blobs:        tv.blobs,
		Ledger:       tv.ledger,
		Oracle:       tv.oracle,
		Metrics:      metrics.NewCollector(nil),
		TextfilePath: metricsPath,
	})
	sum, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !sum.ChainValid {
		t.Error("sweep reports an invalid chain on a clean vault")
	}
	if sum.Health == nil || !sum.Health.Healthy() {
		t.Errorf("sweep health not clean: %+v", sum.Health)
	}
	if !sum.Clean() {
		t.Errorf("sweep not clean, problems: %v", sum.Problems)
	}

	snapshot, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics snapshot: %v", err)
	}
	for _, series := range []string{"ganymede_credentials", "ganymede_audit_chain_valid 1"} {
		if !strings.Contains(string(snapshot), series) {
			t.Errorf("metrics snapshot lacks %s:\n%s", series, snapshot)
		}
	}

	// The sweep synced the query index; search it for the import.
	ix, err := audit.OpenIndex(tv.layout.AuditIndexPath())
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer ix.Close()
	hits, err := ix.Search(audit.Query{
		Operation: "migrate-import",
		Outcome:   string(audit.OutcomeSucceeded),
	})
	if err != nil {
		t.Fatalf("search index: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("index found %d succeeded migrate-import entries, want 1", len(hits))
	}
}

// TestPolicyRejectionLeavesNoTrace checks that gated creates roll back
// completely: no metadata, no blobs, and a still-valid ledger that records
// both failures.
func TestPolicyRejectionLeavesNoTrace(t *testing.T) {
	tv := newTestVault(t, policy.Config{
		AllowServices:   []string{"webapp"},
		MinSecretLength: 12,
	})
	ctx := context.Background()

	_, err := tv.orch.Create(ctx, workflow.CreateSpec{
		Name:    "db_password",
		Service: "rogue",
		Secret:  []byte("long enough secret material"),
	})
	if vault.CodeOf(err) != vault.CodePolicy {
		t.Fatalf("disallowed service: code %v, want policy_violation", vault.CodeOf(err))
	}

	_, err = tv.orch.Create(ctx, workflow.CreateSpec{
		Name:           "api_token",
		Generate:       true,
		GenerateLength: 8,
	})
	if vault.CodeOf(err) != vault.CodePolicy {
		t.Fatalf("short generated secret: code %v, want policy_violation", vault.CodeOf(err))
	}

	doc := tv.load(t)
	if n := len(doc.List(vault.Filter{})); n != 0 {
		t.Errorf("%d credentials exist after rejected creates", n)
	}
	blobs, err := os.ReadDir(tv.layout.CredstoreDir())
	if err != nil {
		t.Fatalf("read credstore: %v", err)
	}
	if len(blobs) != 0 {
		t.Errorf("%d blobs left in credstore after rejected creates", len(blobs))
	}

	entries, err := tv.ledger.Entries()
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	var failures int
	for _, e := range entries {
		if e.Operation == "create" && e.Outcome == audit.OutcomeFailed {
			failures++
			if e.Reason == "" {
				t.Error("failed create entry has no reason")
			}
		}
	}
	if failures != 2 {
		t.Errorf("ledger has %d failed create entries, want 2", failures)
	}

	report, err := tv.ledger.Verify(audit.VerifyOptions{})
	if err != nil {
		t.Fatalf("verify ledger: %v", err)
	}
	if !report.Valid {
		t.Error("ledger chain invalid after rejections")
	}
}
