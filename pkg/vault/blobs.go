package vault

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
)

// BlobExt is the filename extension of encrypted blobs in the credstore.
const BlobExt = ".cred"

// PrevBlobExt is the extension of the retained pre-rotation blob.
const PrevBlobExt = ".cred.prev"

// BlobStore manages the credstore directory of opaque encrypted artifacts.
// Blob references are bare filenames within the directory; they carry no
// path components so a corrupted metadata document can never direct reads
// or deletes outside the credstore.
type BlobStore struct {
	dir    string
	logger *slog.Logger
}

// NewBlobStore returns a blob store over the given credstore directory.
func NewBlobStore(dir string) *BlobStore {
	return &BlobStore{
		dir:    dir,
		logger: slog.Default().With("component", "vault.blobs"),
	}
}

// Ref returns the blob reference for a credential name.
func (b *BlobStore) Ref(name string) string { return name + BlobExt }

// PrevRef returns the retained-blob reference for a credential name.
func (b *BlobStore) PrevRef(name string) string { return name + PrevBlobExt }

// Path resolves a blob reference to its path inside the credstore.
func (b *BlobStore) Path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.Contains(ref, "..") {
		return "", NewValidationErrorf("invalid blob reference %q", ref)
	}
	return filepath.Join(b.dir, ref), nil
}

// Write stores an encrypted blob for the credential atomically and returns
// its reference. An existing blob with the same reference is replaced.
func (b *BlobStore) Write(name string, blob []byte) (string, error) {
	ref := b.Ref(name)
	if err := b.Put(ref, blob); err != nil {
		return "", err
	}
	return ref, nil
}

// Put stores a blob at an explicit reference. Write covers the common case
// of a credential's current blob; rollback paths use Put to reinstate a
// removed artifact at its original reference.
func (b *BlobStore) Put(ref string, blob []byte) error {
	path, err := b.Path(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credstore: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(blob)); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", ref, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to set blob mode on %s: %w", ref, err)
	}
	b.logger.Debug("blob written", "ref", ref, "bytes", len(blob))
	return nil
}

// Read loads an encrypted blob by reference.
func (b *BlobStore) Read(ref string) ([]byte, error) {
	path, err := b.Path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewStoreCorrupt("blob reference resolves to no artifact", err).WithDetail("ref", ref)
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", ref, err)
	}
	return data, nil
}

// Exists reports whether the referenced blob is present.
func (b *BlobStore) Exists(ref string) bool {
	path, err := b.Path(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes the referenced blob. Removing an absent blob is not an
// error; rollback paths call this on best effort.
func (b *BlobStore) Remove(ref string) error {
	path, err := b.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove blob %s: %w", ref, err)
	}
	b.logger.Debug("blob removed", "ref", ref)
	return nil
}

// KeepPrevious copies the credential's current blob to its retained name,
// preserving it as the rotation fallback. Copying rather than renaming
// means the current blob exists at every instant of a rotation. It
// returns the retained reference.
func (b *BlobStore) KeepPrevious(name string) (string, error) {
	cur, err := b.Read(b.Ref(name))
	if err != nil {
		return "", err
	}
	prev, err := b.Path(b.PrevRef(name))
	if err != nil {
		return "", err
	}
	if err := atomic.WriteFile(prev, bytes.NewReader(cur)); err != nil {
		return "", fmt.Errorf("failed to retain previous blob for %s: %w", name, err)
	}
	if err := os.Chmod(prev, 0o600); err != nil {
		return "", fmt.Errorf("failed to set mode on retained blob: %w", err)
	}
	return b.PrevRef(name), nil
}

// RestorePrevious moves the retained blob back into place, undoing
// KeepPrevious during a rotation rollback.
func (b *BlobStore) RestorePrevious(name string) error {
	cur, err := b.Path(b.Ref(name))
	if err != nil {
		return err
	}
	prev, err := b.Path(b.PrevRef(name))
	if err != nil {
		return err
	}
	if err := os.Rename(prev, cur); err != nil {
		return fmt.Errorf("failed to restore previous blob for %s: %w", name, err)
	}
	return nil
}

// List returns every blob filename in the credstore, sorted.
func (b *BlobStore) List() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credstore: %w", err)
	}
	var refs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), BlobExt) || strings.HasSuffix(e.Name(), PrevBlobExt) {
			refs = append(refs, e.Name())
		}
	}
	sort.Strings(refs)
	return refs, nil
}

// Orphans returns blobs present in the credstore that no credential in the
// document references, either as current or retained blob. Orphans are inert
// but worth surfacing: they are residue of interrupted operations or of
// rotations never followed by a revoke.
func (b *BlobStore) Orphans(doc *Document) ([]string, error) {
	refs, err := b.List()
	if err != nil {
		return nil, err
	}
	referenced := make(map[string]bool, 2*len(doc.Credentials))
	for _, c := range doc.Credentials {
		referenced[c.BlobRef] = true
		if c.PrevBlobRef != "" {
			referenced[c.PrevBlobRef] = true
		}
	}
	var orphans []string
	for _, ref := range refs {
		if !referenced[ref] {
			orphans = append(orphans, ref)
		}
	}
	return orphans, nil
}
