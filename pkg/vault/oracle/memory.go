package oracle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"mercator-hq/ganymede/pkg/vault"
)

// memoryHeader marks blobs produced by the memory backend.
const memoryHeader = "GANYMEDE-MEMORY;v1"

// Memory is a development and test backend. It produces a reversible
// encoding, not ciphertext: the blob embeds the credential name and key
// policy so name binding and round-trips behave like the real oracle, but
// the payload is merely base64. It must never hold production secrets.
type Memory struct {
	tpm2 bool

	// failNext, when set, makes the next encrypt or decrypt call fail with
	// the stored error. Tests use this to simulate oracle outages.
	failNext atomic.Pointer[error]

	encrypts atomic.Int64
	decrypts atomic.Int64
}

// NewMemory creates the backend. tpm2 controls what HasTPM2 reports, so
// tests can exercise both key-availability branches.
func NewMemory(tpm2 bool) *Memory {
	return &Memory{tpm2: tpm2}
}

// Backend returns "memory".
func (m *Memory) Backend() string { return "memory" }

// FailNextWith arms a one-shot failure for the next encrypt or decrypt.
func (m *Memory) FailNextWith(err error) {
	m.failNext.Store(&err)
}

// Encrypts reports how many encrypt calls completed.
func (m *Memory) Encrypts() int64 { return m.encrypts.Load() }

// Decrypts reports how many decrypt calls completed.
func (m *Memory) Decrypts() int64 { return m.decrypts.Load() }

func (m *Memory) takeFailure() error {
	if p := m.failNext.Swap(nil); p != nil {
		return *p
	}
	return nil
}

// Encrypt encodes the plaintext with a header binding it to the name and
// policy. A TPM2-requiring policy fails when the fake device is absent,
// mirroring the production backend's key-unavailable behavior.
func (m *Memory) Encrypt(ctx context.Context, name string, plaintext []byte, policy vault.KeyPolicy) ([]byte, error) {
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	if policy == vault.KeyPolicyAuto {
		return nil, vault.NewOracleError("encrypt", errors.New("auto key policy must be resolved before encryption"))
	}
	if (policy == vault.KeyPolicyTPM2 || policy == vault.KeyPolicyHostTPM2) && !m.tpm2 {
		return nil, vault.NewKeyUnavailable(policy, errors.New("memory backend has no TPM2 device"))
	}
	blob := fmt.Sprintf("%s;%s;%s;%s",
		memoryHeader, name, policy,
		base64.StdEncoding.EncodeToString(plaintext),
	)
	m.encrypts.Add(1)
	return []byte(blob), nil
}

// Decrypt reverses Encrypt, enforcing the name binding.
func (m *Memory) Decrypt(ctx context.Context, name string, blob []byte) ([]byte, error) {
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	parts := strings.SplitN(string(blob), ";", 5)
	if len(parts) != 5 || parts[0]+";"+parts[1] != memoryHeader {
		return nil, vault.NewOracleError("decrypt", errors.New("blob was not produced by the memory backend"))
	}
	if parts[2] != name {
		return nil, vault.NewOracleError("decrypt",
			fmt.Errorf("blob is bound to credential %q, not %q", parts[2], name))
	}
	plaintext, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, vault.NewOracleError("decrypt", err)
	}
	m.decrypts.Add(1)
	return plaintext, nil
}

// HasTPM2 reports the configured fake device presence.
func (m *Memory) HasTPM2(ctx context.Context) (bool, error) {
	return m.tpm2, nil
}
