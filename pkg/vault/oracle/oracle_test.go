package oracle

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"mercator-hq/ganymede/pkg/vault"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory(false)
	ctx := context.Background()
	plaintext := []byte("s3cret-value\nwith a second line")

	blob, err := m.Encrypt(ctx, "db-password", plaintext, vault.KeyPolicyHost)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(blob, plaintext) {
		t.Fatalf("blob contains raw plaintext: %q", blob)
	}

	got, err := m.Decrypt(ctx, "db-password", blob)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
	if m.Encrypts() != 1 || m.Decrypts() != 1 {
		t.Errorf("counters = %d/%d, want 1/1", m.Encrypts(), m.Decrypts())
	}
}

func TestMemoryNameBinding(t *testing.T) {
	m := NewMemory(false)
	ctx := context.Background()

	blob, err := m.Encrypt(ctx, "api-token", []byte("x"), vault.KeyPolicyHost)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := m.Decrypt(ctx, "other-token", blob); !vault.HasCode(err, vault.CodeOracle) {
		t.Errorf("Decrypt() with wrong name error = %v, want code %s", err, vault.CodeOracle)
	}
}

func TestMemoryTPM2Policies(t *testing.T) {
	tests := []struct {
		name     string
		tpm2     bool
		policy   vault.KeyPolicy
		wantCode vault.Code
	}{
		{"host works without device", false, vault.KeyPolicyHost, ""},
		{"tpm2 needs device", false, vault.KeyPolicyTPM2, vault.CodeKeyUnavailable},
		{"host+tpm2 needs device", false, vault.KeyPolicyHostTPM2, vault.CodeKeyUnavailable},
		{"tpm2 with device", true, vault.KeyPolicyTPM2, ""},
		{"host+tpm2 with device", true, vault.KeyPolicyHostTPM2, ""},
		{"auto is never accepted", true, vault.KeyPolicyAuto, vault.CodeOracle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemory(tt.tpm2)
			_, err := m.Encrypt(context.Background(), "cred", []byte("x"), tt.policy)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Encrypt() error = %v, want nil", err)
				}
				return
			}
			if !vault.HasCode(err, tt.wantCode) {
				t.Errorf("Encrypt() error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestMemoryRejectsForeignBlob(t *testing.T) {
	m := NewMemory(false)
	for _, blob := range []string{"", "not a blob", "GANYMEDE-MEMORY;v2;x;host;AAAA"} {
		if _, err := m.Decrypt(context.Background(), "cred", []byte(blob)); !vault.HasCode(err, vault.CodeOracle) {
			t.Errorf("Decrypt(%q) error = %v, want code %s", blob, err, vault.CodeOracle)
		}
	}
}

func TestMemoryFailNext(t *testing.T) {
	m := NewMemory(false)
	ctx := context.Background()
	boom := errors.New("simulated outage")

	m.FailNextWith(boom)
	if _, err := m.Encrypt(ctx, "cred", []byte("x"), vault.KeyPolicyHost); !errors.Is(err, boom) {
		t.Fatalf("armed Encrypt() error = %v, want %v", err, boom)
	}
	// The failure is one-shot.
	if _, err := m.Encrypt(ctx, "cred", []byte("x"), vault.KeyPolicyHost); err != nil {
		t.Fatalf("second Encrypt() error = %v, want nil", err)
	}
}

func TestMemoryHasTPM2(t *testing.T) {
	for _, want := range []bool{true, false} {
		got, err := NewMemory(want).HasTPM2(context.Background())
		if err != nil || got != want {
			t.Errorf("HasTPM2() = %v, %v, want %v, nil", got, err, want)
		}
	}
}

func TestNewBackendSelection(t *testing.T) {
	tests := []struct {
		backend string
		want    string
		wantErr bool
	}{
		{"", "systemd-creds", false},
		{"systemd-creds", "systemd-creds", false},
		{"memory", "memory", false},
		{"gpg", "", true},
	}
	for _, tt := range tests {
		o, err := New(tt.backend, "")
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%q) error = nil, want error", tt.backend)
			}
			continue
		}
		if err != nil {
			t.Errorf("New(%q) error = %v", tt.backend, err)
			continue
		}
		if o.Backend() != tt.want {
			t.Errorf("New(%q).Backend() = %q, want %q", tt.backend, o.Backend(), tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	cause := errors.New("exit status 1")
	tests := []struct {
		name     string
		stderr   string
		wantCode vault.Code
	}{
		{
			name:     "tpm device missing",
			stderr:   "TPM2 device not available, refusing.",
			wantCode: vault.CodeKeyUnavailable,
		},
		{
			name:     "no tpm chip",
			stderr:   "No TPM2 chip found on this system",
			wantCode: vault.CodeKeyUnavailable,
		},
		{
			name:     "tpm sealing failure",
			stderr:   "Failed to seal to TPM2: device busy",
			wantCode: vault.CodeKeyUnavailable,
		},
		{
			name:     "unrelated failure mentioning nothing",
			stderr:   "Failed to read credential host key",
			wantCode: vault.CodeOracle,
		},
		{
			name:     "empty stderr",
			stderr:   "",
			wantCode: vault.CodeOracle,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("encrypt", vault.KeyPolicyHostTPM2, tt.stderr, cause)
			if !vault.HasCode(err, tt.wantCode) {
				t.Errorf("classify(%q) = %v, want code %s", tt.stderr, err, tt.wantCode)
			}
			if !errors.Is(err, cause) {
				t.Errorf("classify(%q) does not wrap the cause", tt.stderr)
			}
		})
	}
}
