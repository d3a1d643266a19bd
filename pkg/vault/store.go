package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// Store persists the metadata document. Load returns a snapshot for the
// caller to mutate in memory; Commit writes the whole snapshot back
// atomically, so a crash mid-write never leaves a half-written document
// behind and lock-free readers always parse a complete file.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore returns a store over the given metadata document path.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: slog.Default().With("component", "vault.store"),
	}
}

// Path returns the metadata document path.
func (s *Store) Path() string { return s.path }

// Exists reports whether the metadata document is present.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Mode().IsRegular()
}

// Load reads and validates the metadata document. A missing document means
// the vault was never initialized; a document that does not parse, carries
// an unknown field, or fails consistency checks is reported as corrupt.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewNotInitialized(filepath.Dir(s.path))
		}
		return nil, fmt.Errorf("failed to read metadata document: %w", err)
	}

	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, NewStoreCorrupt("metadata document does not parse", err).
			WithDetail("path", s.path)
	}
	if doc.Bindings == nil {
		doc.Bindings = map[string][]BindingEntry{}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Commit atomically replaces the metadata document with the given snapshot.
// The snapshot is validated first; an inconsistent document is never
// persisted. The write goes to a temporary file in the same directory, is
// fsynced, renamed over the document, and the directory entry is fsynced so
// the rename survives a crash.
func (s *Store) Commit(doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata document: %w", err)
	}
	data = append(data, '\n')

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to commit metadata document: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("failed to set metadata document mode: %w", err)
	}
	if err := syncDir(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to sync vault directory: %w", err)
	}

	s.logger.Debug("metadata document committed",
		"path", s.path,
		"credentials", len(doc.Credentials),
		"services", len(doc.Bindings),
	)
	return nil
}

// syncDir fsyncs a directory so a completed rename is durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
