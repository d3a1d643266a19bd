package dropin

import (
	"os"
	"strings"
	"testing"

	"mercator-hq/ganymede/pkg/vault"
)

func TestRenderBasic(t *testing.T) {
	bindings := []vault.BindingEntry{
		{Credential: "db_password", EnvVar: "DB_PASSWORD_FILE"},
	}
	got := Render(bindings, Options{CredDir: "/vault/credstore"})
	want := "[Service]\n" +
		"LoadCredentialEncrypted=db_password:/vault/credstore/db_password.cred\n" +
		"Environment=DB_PASSWORD_FILE=/run/credentials/%N/db_password\n"
	if got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderDeterministic(t *testing.T) {
	bindings := []vault.BindingEntry{
		{Credential: "api-token", EnvVar: "API_TOKEN_FILE"},
		{Credential: "db_password", EnvVar: "DB_PASSWORD_FILE"},
	}
	opts := Options{CredDir: "/creds", Hardening: true}
	first := Render(bindings, opts)
	second := Render(bindings, opts)
	if first != second {
		t.Fatalf("two renders of the same bindings differ:\n%s\nvs\n%s", first, second)
	}
	if diff := Diff(first, second); len(diff) != 0 {
		t.Errorf("Diff of a fragment against its own render = %v, want empty", diff)
	}
}

func TestRenderNoEnv(t *testing.T) {
	bindings := []vault.BindingEntry{
		{Credential: "db_password", EnvVar: "DB_PASSWORD_FILE"},
	}
	got := Render(bindings, Options{CredDir: "/creds", NoEnv: true})
	if strings.Contains(got, "Environment=") {
		t.Errorf("Render(NoEnv) still emits Environment lines:\n%s", got)
	}
	if !strings.Contains(got, "LoadCredentialEncrypted=db_password:/creds/db_password.cred") {
		t.Errorf("Render(NoEnv) dropped the credential directive:\n%s", got)
	}
}

func TestRenderBindingWithoutEnvVar(t *testing.T) {
	bindings := []vault.BindingEntry{{Credential: "tls_cert"}}
	got := Render(bindings, Options{CredDir: "/creds"})
	if strings.Contains(got, "Environment=") {
		t.Errorf("binding without an env var rendered an Environment line:\n%s", got)
	}
}

func TestRenderHardening(t *testing.T) {
	got := Render(nil, Options{CredDir: "/creds", Hardening: true})
	wantOrder := []string{
		"NoNewPrivileges=yes",
		"ProtectSystem=strict",
		"ProtectHome=read-only",
		"PrivateTmp=yes",
		"ProtectKernelTunables=yes",
		"ProtectKernelModules=yes",
		"ProtectControlGroups=yes",
		"LockPersonality=yes",
		"MemoryDenyWriteExecute=yes",
	}
	prev := -1
	for _, directive := range wantOrder {
		idx := strings.Index(got, directive)
		if idx < 0 {
			t.Fatalf("hardening block missing %q:\n%s", directive, got)
		}
		if idx < prev {
			t.Fatalf("hardening directive %q out of order:\n%s", directive, got)
		}
		prev = idx
	}
}

func TestRenderEmptyBindings(t *testing.T) {
	if got := Render(nil, Options{CredDir: "/creds"}); got != "[Service]\n" {
		t.Errorf("Render(nil) = %q, want header only", got)
	}
}

func TestUnitName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"auth", "auth.service"},
		{"auth.service", "auth.service"},
		{"billing-api", "billing-api.service"},
	}
	for _, tt := range tests {
		if got := UnitName(tt.in); got != tt.want {
			t.Errorf("UnitName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func testDocument(t *testing.T) *vault.Document {
	t.Helper()
	doc := vault.NewDocument()
	doc.UpsertCredential(vault.Credential{
		Name:      "db_password",
		KeyPolicy: vault.KeyPolicyHost,
		Status:    vault.StatusActive,
		BlobRef:   "db_password.cred",
	})
	if err := doc.BindService("auth", "db_password", "DB_PASSWORD_FILE"); err != nil {
		t.Fatalf("BindService() error = %v", err)
	}
	return doc
}

func TestGeneratorGenerate(t *testing.T) {
	layout := vault.NewLayout(t.TempDir())
	g := NewGenerator(layout)
	doc := testDocument(t)

	got, err := g.Generate(doc, "auth.service", Options{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(got, "LoadCredentialEncrypted=db_password:"+layout.CredstoreDir()) {
		t.Errorf("Generate() did not default CredDir to the layout credstore:\n%s", got)
	}
	if !strings.Contains(got, "Environment=DB_PASSWORD_FILE=/run/credentials/%N/db_password") {
		t.Errorf("Generate() missing exposure line:\n%s", got)
	}

	if _, err := g.Generate(doc, "billing", Options{}); !vault.HasCode(err, vault.CodeNotFound) {
		t.Errorf("Generate() for unbound service error = %v, want code %s", err, vault.CodeNotFound)
	}
}

func TestGeneratorStage(t *testing.T) {
	layout := vault.NewLayout(t.TempDir())
	if err := layout.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	g := NewGenerator(layout)

	content := Render([]vault.BindingEntry{{Credential: "x", EnvVar: "X_FILE"}}, Options{CredDir: "/c"})
	path, err := g.Stage("auth", content)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if path != layout.DropinPath("auth") {
		t.Errorf("Stage() path = %q, want %q", path, layout.DropinPath("auth"))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read staged fragment: %v", err)
	}
	if string(data) != content {
		t.Errorf("staged fragment = %q, want %q", data, content)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat staged fragment: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o644 {
		t.Errorf("staged fragment mode = %04o, want 0644", mode)
	}
}

func TestInstallAndReadInstalled(t *testing.T) {
	unitDir := t.TempDir()

	if _, ok, err := ReadInstalled(unitDir, "auth"); err != nil || ok {
		t.Fatalf("ReadInstalled() before install = ok=%v, err=%v, want absent", ok, err)
	}

	content := "[Service]\nLoadCredentialEncrypted=x:/c/x.cred\n"
	path, err := Install(unitDir, "auth", content)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if want := InstalledPath(unitDir, "auth"); path != want {
		t.Errorf("Install() path = %q, want %q", path, want)
	}
	if !strings.HasSuffix(path, "auth.service.d/credentials.conf") {
		t.Errorf("installed path %q does not follow the unit drop-in convention", path)
	}

	got, ok, err := ReadInstalled(unitDir, "auth")
	if err != nil || !ok {
		t.Fatalf("ReadInstalled() after install = ok=%v, err=%v", ok, err)
	}
	if got != content {
		t.Errorf("ReadInstalled() = %q, want %q", got, content)
	}
}
