package dropin

import (
	"reflect"
	"testing"

	"mercator-hq/ganymede/pkg/vault"
)

func TestDiffIdentical(t *testing.T) {
	fragment := Render([]vault.BindingEntry{
		{Credential: "db_password", EnvVar: "DB_PASSWORD_FILE"},
	}, Options{CredDir: "/creds", Hardening: true})

	if got := Diff(fragment, fragment); len(got) != 0 {
		t.Errorf("Diff(x, x) = %v, want empty", got)
	}
}

func TestDiffChangedBinding(t *testing.T) {
	installed := "[Service]\n" +
		"LoadCredentialEncrypted=db_password:/old/db_password.cred\n"
	generated := "[Service]\n" +
		"LoadCredentialEncrypted=db_password:/new/db_password.cred\n"

	got := Diff(generated, installed)
	want := []Change{
		{Kind: LineRemoved, Line: "LoadCredentialEncrypted=db_password:/old/db_password.cred"},
		{Kind: LineAdded, Line: "LoadCredentialEncrypted=db_password:/new/db_password.cred"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Diff() = %v, want %v", got, want)
	}
}

func TestDiffAddedLine(t *testing.T) {
	installed := "[Service]\n" +
		"LoadCredentialEncrypted=a:/c/a.cred\n"
	generated := "[Service]\n" +
		"LoadCredentialEncrypted=a:/c/a.cred\n" +
		"Environment=A_FILE=/run/credentials/%N/a\n"

	got := Diff(generated, installed)
	want := []Change{
		{Kind: LineAdded, Line: "Environment=A_FILE=/run/credentials/%N/a"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Diff() = %v, want %v", got, want)
	}
}

func TestDiffRemovedLine(t *testing.T) {
	installed := "[Service]\n" +
		"LoadCredentialEncrypted=a:/c/a.cred\n" +
		"LoadCredentialEncrypted=b:/c/b.cred\n"
	generated := "[Service]\n" +
		"LoadCredentialEncrypted=a:/c/a.cred\n"

	got := Diff(generated, installed)
	want := []Change{
		{Kind: LineRemoved, Line: "LoadCredentialEncrypted=b:/c/b.cred"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Diff() = %v, want %v", got, want)
	}
}

func TestDiffAgainstEmptyInstall(t *testing.T) {
	generated := "[Service]\n" +
		"LoadCredentialEncrypted=a:/c/a.cred\n"

	got := Diff(generated, "")
	want := []Change{
		{Kind: LineAdded, Line: "[Service]"},
		{Kind: LineAdded, Line: "LoadCredentialEncrypted=a:/c/a.cred"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Diff() = %v, want %v", got, want)
	}
}

func TestFormat(t *testing.T) {
	changes := []Change{
		{Kind: LineRemoved, Line: "old"},
		{Kind: LineAdded, Line: "new"},
	}
	if got, want := Format(changes), "-old\n+new\n"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
	if got := Format(nil); got != "" {
		t.Errorf("Format(nil) = %q, want empty", got)
	}
}
