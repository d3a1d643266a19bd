package migrate

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func TestParseEnvFile(t *testing.T) {
	path := writeEnvFile(t, `
# database settings
DB_HOST=localhost
DB_PASSWORD="s3cret-value"
export API_TOKEN='tok_abc123'

EMPTY=
SPACED = padded value
`)

	entries, err := ParseEnvFile(path)
	if err != nil {
		t.Fatalf("ParseEnvFile failed: %v", err)
	}
	want := []Entry{
		{Key: "DB_HOST", Value: "localhost", Line: 3},
		{Key: "DB_PASSWORD", Value: "s3cret-value", Line: 4},
		{Key: "API_TOKEN", Value: "tok_abc123", Line: 5},
		{Key: "EMPTY", Value: "", Line: 7},
		{Key: "SPACED", Value: "padded value", Line: 8},
	}
	if len(entries) != len(want) {
		t.Fatalf("parsed %d entries, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i] != w {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], w)
		}
	}
}

func TestParseEnvFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no equals", content: "NOT A PAIR\n"},
		{name: "empty key", content: "=value\n"},
		{name: "duplicate key", content: "A=1\nA=2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEnvFile(writeEnvFile(t, tt.content)); err == nil {
				t.Error("expected parse error, got nil")
			}
		})
	}
}

func TestParseEnvFileMissing(t *testing.T) {
	if _, err := ParseEnvFile(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCredentialName(t *testing.T) {
	if got := CredentialName("DB_PASSWORD"); got != "db_password" {
		t.Errorf("CredentialName = %q, want db_password", got)
	}
}

func TestExposureVar(t *testing.T) {
	if got := ExposureVar("db_password"); got != "DB_PASSWORD_FILE" {
		t.Errorf("ExposureVar = %q, want DB_PASSWORD_FILE", got)
	}
}
