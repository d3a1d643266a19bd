package oracle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"

	"mercator-hq/ganymede/pkg/vault"
)

// DefaultBinary is the systemd-creds executable resolved from PATH.
const DefaultBinary = "systemd-creds"

// SystemdCreds is the production oracle backend. It drives the systemd-creds
// tool, which performs authenticated encryption bound to the host key under
// /var/lib/systemd/credential.secret, to the TPM2 device, or to both.
//
// Plaintext moves over stdin and stdout only; it is never written to a
// temporary file.
type SystemdCreds struct {
	binary string
	logger *slog.Logger
}

// NewSystemdCreds creates the backend. An empty binary path resolves
// systemd-creds from PATH.
func NewSystemdCreds(binary string) *SystemdCreds {
	if binary == "" {
		binary = DefaultBinary
	}
	return &SystemdCreds{
		binary: binary,
		logger: slog.Default().With("component", "oracle.systemd-creds"),
	}
}

// Backend returns "systemd-creds".
func (s *SystemdCreds) Backend() string { return "systemd-creds" }

// Encrypt runs systemd-creds encrypt with the plaintext on stdin and the
// blob on stdout.
func (s *SystemdCreds) Encrypt(ctx context.Context, name string, plaintext []byte, policy vault.KeyPolicy) ([]byte, error) {
	if policy == vault.KeyPolicyAuto {
		return nil, vault.NewOracleError("encrypt", errors.New("auto key policy must be resolved before encryption"))
	}
	args := []string{
		"encrypt",
		"--with-key=" + string(policy),
		"--name=" + name,
		"-", "-",
	}
	out, stderr, err := s.run(ctx, bytes.NewReader(plaintext), args)
	if err != nil {
		return nil, classify("encrypt", policy, stderr, err)
	}
	s.logger.Debug("blob encrypted", "name", name, "key_policy", policy, "bytes", len(out))
	return out, nil
}

// Decrypt runs systemd-creds decrypt with the blob on stdin and the
// plaintext on stdout.
func (s *SystemdCreds) Decrypt(ctx context.Context, name string, blob []byte) ([]byte, error) {
	args := []string{
		"decrypt",
		"--name=" + name,
		"-", "-",
	}
	out, stderr, err := s.run(ctx, bytes.NewReader(blob), args)
	if err != nil {
		return nil, classify("decrypt", "", stderr, err)
	}
	return out, nil
}

// HasTPM2 probes for a usable TPM2 device. systemd-creds reports via its
// exit status: zero means full support, anything else means absent or
// partial support, which Ganymede treats as unavailable.
func (s *SystemdCreds) HasTPM2(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, s.binary, "has-tpm2")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	// The binary itself could not run.
	return false, vault.NewOracleError("probe", err).WithDetail("stderr", stderr.String())
}

func (s *SystemdCreds) run(ctx context.Context, stdin *bytes.Reader, args []string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.String(), err
}

// classify maps a systemd-creds failure to the error taxonomy. Messages
// naming the TPM mean the configured key material is absent rather than
// the oracle malfunctioning.
func classify(op string, policy vault.KeyPolicy, stderr string, err error) error {
	trimmed := strings.TrimSpace(stderr)
	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "tpm") &&
		(strings.Contains(lower, "not available") ||
			strings.Contains(lower, "no tpm") ||
			strings.Contains(lower, "failed to") ||
			strings.Contains(lower, "refusing")) {
		kerr := vault.NewKeyUnavailable(policy, err)
		if trimmed != "" {
			kerr = kerr.WithDetail("stderr", trimmed)
		}
		return kerr
	}
	oerr := vault.NewOracleError(op, err)
	if trimmed != "" {
		oerr = oerr.WithDetail("stderr", trimmed)
	}
	return oerr
}
