package vault

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBlobStoreWriteReadRemove(t *testing.T) {
	bs := NewBlobStore(filepath.Join(t.TempDir(), "credstore"))

	ref, err := bs.Write("db_password", []byte("ciphertext"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if ref != "db_password.cred" {
		t.Errorf("ref = %q, want db_password.cred", ref)
	}

	path, err := bs.Path(ref)
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("blob mode = %04o, want 0600", mode)
	}

	data, err := bs.Read(ref)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "ciphertext" {
		t.Errorf("Read = %q, want ciphertext", data)
	}

	if err := bs.Remove(ref); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if bs.Exists(ref) {
		t.Error("blob still exists after remove")
	}
	// Removing again is a no-op.
	if err := bs.Remove(ref); err != nil {
		t.Errorf("second remove should be a no-op, got %v", err)
	}
}

func TestBlobStoreReadMissingIsCorrupt(t *testing.T) {
	bs := NewBlobStore(filepath.Join(t.TempDir(), "credstore"))
	_, err := bs.Read("ghost.cred")
	if !HasCode(err, CodeStoreCorrupt) {
		t.Fatalf("expected store corrupt for dangling reference, got %v", err)
	}
}

func TestBlobStoreRejectsTraversalRefs(t *testing.T) {
	bs := NewBlobStore(filepath.Join(t.TempDir(), "credstore"))
	for _, ref := range []string{"../escape.cred", "a/b.cred", "", ".."} {
		if _, err := bs.Path(ref); !HasCode(err, CodeValidation) {
			t.Errorf("Path(%q): expected validation error, got %v", ref, err)
		}
	}
}

func TestBlobStoreKeepAndRestorePrevious(t *testing.T) {
	bs := NewBlobStore(filepath.Join(t.TempDir(), "credstore"))

	if _, err := bs.Write("api_key", []byte("old")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	prevRef, err := bs.KeepPrevious("api_key")
	if err != nil {
		t.Fatalf("KeepPrevious failed: %v", err)
	}
	if prevRef != "api_key.cred.prev" {
		t.Errorf("prev ref = %q, want api_key.cred.prev", prevRef)
	}
	// Retention copies: the current blob must exist at every instant.
	if !bs.Exists(bs.Ref("api_key")) {
		t.Error("current blob gone after KeepPrevious")
	}
	retained, err := bs.Read(prevRef)
	if err != nil {
		t.Fatalf("Read retained blob failed: %v", err)
	}
	if string(retained) != "old" {
		t.Errorf("retained blob = %q, want old", retained)
	}

	if _, err := bs.Write("api_key", []byte("new")); err != nil {
		t.Fatalf("Write of new blob failed: %v", err)
	}

	// Roll back: the retained blob replaces the new one.
	if err := bs.RestorePrevious("api_key"); err != nil {
		t.Fatalf("RestorePrevious failed: %v", err)
	}
	data, err := bs.Read(bs.Ref("api_key"))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "old" {
		t.Errorf("restored blob = %q, want old", data)
	}
	if bs.Exists(prevRef) {
		t.Error("retained blob still present after restore")
	}
}

func TestBlobStoreOrphans(t *testing.T) {
	bs := NewBlobStore(filepath.Join(t.TempDir(), "credstore"))

	if _, err := bs.Write("referenced", []byte("x")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := bs.Write("orphan", []byte("y")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	doc := NewDocument()
	doc.UpsertCredential(testCredential("referenced"))

	orphans, err := bs.Orphans(doc)
	if err != nil {
		t.Fatalf("Orphans failed: %v", err)
	}
	if len(orphans) != 1 || orphans[0] != "orphan.cred" {
		t.Errorf("orphans = %v, want [orphan.cred]", orphans)
	}
}

func TestBlobStoreOrphansIncludesUnreferencedPrev(t *testing.T) {
	bs := NewBlobStore(filepath.Join(t.TempDir(), "credstore"))
	if _, err := bs.Write("api_key", []byte("x")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := bs.KeepPrevious("api_key"); err != nil {
		t.Fatalf("KeepPrevious failed: %v", err)
	}
	if _, err := bs.Write("api_key", []byte("y")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Document says active with no retained blob, so the .prev file is residue.
	doc := NewDocument()
	doc.UpsertCredential(testCredential("api_key"))

	orphans, err := bs.Orphans(doc)
	if err != nil {
		t.Fatalf("Orphans failed: %v", err)
	}
	if len(orphans) != 1 || orphans[0] != "api_key.cred.prev" {
		t.Errorf("orphans = %v, want [api_key.cred.prev]", orphans)
	}
}
