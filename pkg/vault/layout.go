package vault

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves every path under a vault root and owns the permission
// discipline applied when the vault is initialized.
//
// The layout on disk:
//
//	<root>/                       0700
//	  vault.json                  0600  metadata document
//	  audit.log                   0600  hash-chained audit ledger
//	  audit.db                    0600  derived audit query index
//	  metrics.prom                0644  optional metrics snapshot
//	  locks/vault.lock            0600  exclusive lock target
//	  credstore/<name>.cred       0600  encrypted blobs
//	  services/<service>.conf     0640  service binding manifests
//	  units/<unit>.service.d/     staged drop-in fragments
type Layout struct {
	// Root is the vault root directory.
	Root string
}

// NewLayout returns a layout rooted at the given directory.
func NewLayout(root string) *Layout {
	return &Layout{Root: root}
}

// MetadataPath is the metadata document file.
func (l *Layout) MetadataPath() string { return filepath.Join(l.Root, "vault.json") }

// AuditLogPath is the append-only audit ledger.
func (l *Layout) AuditLogPath() string { return filepath.Join(l.Root, "audit.log") }

// AuditIndexPath is the derived SQLite audit index.
func (l *Layout) AuditIndexPath() string { return filepath.Join(l.Root, "audit.db") }

// MetricsPath is the textfile-collector metrics snapshot.
func (l *Layout) MetricsPath() string { return filepath.Join(l.Root, "metrics.prom") }

// LockDir is the directory holding lock files.
func (l *Layout) LockDir() string { return filepath.Join(l.Root, "locks") }

// LockPath is the flock target serializing mutating operations.
func (l *Layout) LockPath() string { return filepath.Join(l.LockDir(), "vault.lock") }

// CredstoreDir is the directory of encrypted blobs.
func (l *Layout) CredstoreDir() string { return filepath.Join(l.Root, "credstore") }

// ServicesDir holds the per-service binding manifests.
func (l *Layout) ServicesDir() string { return filepath.Join(l.Root, "services") }

// ServiceManifestPath is the binding manifest for one service.
func (l *Layout) ServiceManifestPath(service string) string {
	return filepath.Join(l.ServicesDir(), service+".conf")
}

// UnitsDir holds staged systemd drop-in fragments.
func (l *Layout) UnitsDir() string { return filepath.Join(l.Root, "units") }

// DropinPath is the staged drop-in fragment for one service unit.
func (l *Layout) DropinPath(service string) string {
	return filepath.Join(l.UnitsDir(), service+".service.d", "credentials.conf")
}

// Initialized reports whether the metadata document exists.
func (l *Layout) Initialized() bool {
	_, err := os.Stat(l.MetadataPath())
	return err == nil
}

// Init creates the vault directory tree with owner-only permissions. It is
// idempotent: existing directories are left alone, but their modes are
// verified.
func (l *Layout) Init() error {
	dirs := []struct {
		path string
		mode os.FileMode
	}{
		{l.Root, 0o700},
		{l.LockDir(), 0o700},
		{l.CredstoreDir(), 0o700},
		{l.ServicesDir(), 0o755},
		{l.UnitsDir(), 0o755},
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d.path, d.mode); err != nil {
			return fmt.Errorf("failed to create %s: %w", d.path, err)
		}
		// MkdirAll applies the umask; fix the mode explicitly.
		if err := os.Chmod(d.path, d.mode); err != nil {
			return fmt.Errorf("failed to set mode on %s: %w", d.path, err)
		}
	}
	return nil
}

// CheckPermissions verifies the owner-only discipline on the root and the
// credstore. It returns a description of every violation found; an empty
// slice means the layout is sound.
func (l *Layout) CheckPermissions() []string {
	var problems []string
	check := func(path string, want os.FileMode, mustExist bool) {
		info, err := os.Stat(path)
		if err != nil {
			if mustExist {
				problems = append(problems, fmt.Sprintf("%s: %v", path, err))
			}
			return
		}
		if got := info.Mode().Perm(); got&0o077 != 0 && want&0o077 == 0 {
			problems = append(problems, fmt.Sprintf("%s: mode %04o grants group/other access (want %04o)", path, got, want))
		}
	}
	check(l.Root, 0o700, true)
	check(l.CredstoreDir(), 0o700, true)
	check(l.MetadataPath(), 0o600, false)
	check(l.AuditLogPath(), 0o600, false)
	return problems
}
