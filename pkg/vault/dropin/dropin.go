// Package dropin renders systemd drop-in fragments from service bindings.
//
// A drop-in tells the service manager which encrypted blobs a unit may load
// at start time (LoadCredentialEncrypted=) and, per binding, which
// environment variable points at the decrypted runtime path (Environment=).
// Rendering is a pure function of the bindings and options: identical input
// yields byte-identical output, so a staged fragment can be diffed against
// an installed one without noise.
//
// The package stages fragments under the vault root and can copy a staged
// fragment to the system unit directory, but it never reloads the service
// manager. That, and the human confirmation gating it, belong to the caller.
package dropin

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"mercator-hq/ganymede/pkg/vault"
)

// RuntimeCredentialDir is where the service manager exposes decrypted
// credentials to the running unit. %N is the unit-name specifier, expanded
// by the service manager itself, which keeps the fragment valid if the unit
// is renamed via symlink.
const RuntimeCredentialDir = "/run/credentials/%N"

// SystemUnitDir is where installed drop-ins land.
const SystemUnitDir = "/etc/systemd/system"

// hardeningDirectives is the optional sandboxing block appended after the
// credential directives. Order is fixed to keep rendering deterministic.
var hardeningDirectives = [...]string{
	"NoNewPrivileges=yes",
	"ProtectSystem=strict",
	"ProtectHome=read-only",
	"PrivateTmp=yes",
	"ProtectKernelTunables=yes",
	"ProtectKernelModules=yes",
	"ProtectControlGroups=yes",
	"LockPersonality=yes",
	"MemoryDenyWriteExecute=yes",
}

// Options control rendering.
type Options struct {
	// CredDir is the directory holding the encrypted blobs referenced by
	// the LoadCredentialEncrypted directives.
	CredDir string

	// NoEnv suppresses Environment= lines.
	NoEnv bool

	// Hardening appends the sandboxing directive block.
	Hardening bool
}

// UnitName returns the full unit name for a service, with or without the
// .service suffix already present.
func UnitName(service string) string {
	return vault.NormalizeServiceName(service) + ".service"
}

// Render produces the drop-in fragment for one service's bindings. It is
// deterministic: the same bindings and options always produce the same
// bytes, in binding order.
func Render(bindings []vault.BindingEntry, opts Options) string {
	var b bytes.Buffer
	b.WriteString("[Service]\n")
	for _, entry := range bindings {
		fmt.Fprintf(&b, "LoadCredentialEncrypted=%s:%s\n",
			entry.Credential,
			filepath.Join(opts.CredDir, entry.Credential+vault.BlobExt),
		)
		if !opts.NoEnv && entry.EnvVar != "" {
			fmt.Fprintf(&b, "Environment=%s=%s/%s\n",
				entry.EnvVar, RuntimeCredentialDir, entry.Credential)
		}
	}
	if opts.Hardening {
		for _, d := range hardeningDirectives {
			b.WriteString(d)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Generator renders and stages drop-in fragments for a vault layout.
type Generator struct {
	layout *vault.Layout
	logger *slog.Logger
}

// NewGenerator creates a generator over the given layout.
func NewGenerator(layout *vault.Layout) *Generator {
	return &Generator{
		layout: layout,
		logger: slog.Default().With("component", "vault.dropin"),
	}
}

// Generate renders the fragment for a service from the document's bindings.
// The service may be given with or without the .service suffix.
func (g *Generator) Generate(doc *vault.Document, service string, opts Options) (string, error) {
	name := vault.NormalizeServiceName(service)
	bindings, ok := doc.Bindings[name]
	if !ok || len(bindings) == 0 {
		return "", vault.NewServiceNotFound(name)
	}
	if opts.CredDir == "" {
		opts.CredDir = g.layout.CredstoreDir()
	}
	return Render(bindings, opts), nil
}

// Stage writes the rendered fragment to the staged location under the vault
// root (units/<unit>.d/credentials.conf) and returns that path. The write is
// atomic so a reader never sees a truncated fragment.
func (g *Generator) Stage(service, content string) (string, error) {
	path := g.layout.DropinPath(vault.NormalizeServiceName(service))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create drop-in directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader([]byte(content))); err != nil {
		return "", fmt.Errorf("failed to write drop-in: %w", err)
	}
	if err := os.Chmod(path, 0o644); err != nil {
		return "", fmt.Errorf("failed to set drop-in mode: %w", err)
	}
	g.logger.Debug("drop-in staged", "service", service, "path", path, "bytes", len(content))
	return path, nil
}

// StagedPath is where Stage writes the fragment for a service.
func (g *Generator) StagedPath(service string) string {
	return g.layout.DropinPath(vault.NormalizeServiceName(service))
}

// InstalledPath is where the service manager expects the fragment. unitDir
// defaults to SystemUnitDir when empty; tests point it elsewhere.
func InstalledPath(unitDir, service string) string {
	if unitDir == "" {
		unitDir = SystemUnitDir
	}
	return filepath.Join(unitDir, UnitName(service)+".d", "credentials.conf")
}

// Install copies a rendered fragment to the installed location. The caller
// gates this behind explicit confirmation and handles the daemon reload.
func Install(unitDir, service, content string) (string, error) {
	path := InstalledPath(unitDir, service)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create unit directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader([]byte(content))); err != nil {
		return "", fmt.Errorf("failed to install drop-in: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return "", fmt.Errorf("failed to set drop-in mode: %w", err)
	}
	return path, nil
}

// ReadInstalled returns the installed fragment, or "" with ok=false when no
// fragment is installed for the service.
func ReadInstalled(unitDir, service string) (string, bool, error) {
	data, err := os.ReadFile(InstalledPath(unitDir, service))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}
