// Package oracle abstracts the external encryption primitive.
//
// Ganymede never implements cryptography. Encryption and decryption are
// delegated to an oracle that turns a plaintext buffer plus a key-policy
// selector into an opaque blob and back. The production backend shells out
// to systemd-creds; the memory backend is a reversible encoding for tests
// and development and provides no protection at all.
//
// Oracle failures abort the enclosing operation before any metadata
// mutation. Absent key material (typically a missing TPM2 device) is
// distinguished from other failures so callers can report it precisely.
package oracle

import (
	"context"
	"fmt"

	"mercator-hq/ganymede/pkg/vault"
)

// Oracle encrypts and decrypts credential material. Implementations are
// black boxes; the blob format is opaque to every caller.
type Oracle interface {
	// Encrypt turns plaintext into an opaque blob bound to the credential
	// name under the given concrete key policy.
	Encrypt(ctx context.Context, name string, plaintext []byte, policy vault.KeyPolicy) ([]byte, error)

	// Decrypt turns a blob back into plaintext. The credential name must
	// match the one the blob was encrypted under.
	Decrypt(ctx context.Context, name string, blob []byte) ([]byte, error)

	// HasTPM2 reports whether a TPM2 device is available for key binding.
	HasTPM2(ctx context.Context) (bool, error)

	// Backend returns the backend name ("systemd-creds", "memory").
	Backend() string
}

// New constructs the named backend. An empty name selects systemd-creds.
func New(backend, binaryPath string) (Oracle, error) {
	switch backend {
	case "", "systemd-creds":
		return NewSystemdCreds(binaryPath), nil
	case "memory":
		return NewMemory(false), nil
	default:
		return nil, fmt.Errorf("unknown oracle backend %q (want systemd-creds or memory)", backend)
	}
}
