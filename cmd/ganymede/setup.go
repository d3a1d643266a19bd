package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/audit"
	"mercator-hq/ganymede/pkg/vault/dropin"
	"mercator-hq/ganymede/pkg/vault/oracle"
	"mercator-hq/ganymede/pkg/vault/policy"
	"mercator-hq/ganymede/pkg/vault/workflow"
)

// app bundles the collaborators commands share: resolved configuration, the
// vault layout, both stores, the audit ledger, the oracle, the policy engine,
// and the drop-in generator. Commands build it once per invocation.
type app struct {
	cfg     *config.Config
	layout  *vault.Layout
	store   *vault.Store
	blobs   *vault.BlobStore
	ledger  *audit.Ledger
	oracle  oracle.Oracle
	policy  *policy.Engine
	dropins *dropin.Generator
	metrics *metrics.Collector
}

// newApp resolves configuration, installs the process logger, and wires the
// vault collaborators.
func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if vaultRoot != "" {
		cfg.Vault.Root = vaultRoot
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}

	// The close function only matters for file outputs; a CLI process
	// exits before buffering could bite.
	if _, err := logging.Setup(logging.Options{
		Level:   cfg.Telemetry.Logging.Level,
		Format:  cfg.Telemetry.Logging.Format,
		Output:  cfg.Telemetry.Logging.Output,
		Verbose: verbose,
	}); err != nil {
		return nil, err
	}

	orc, err := oracle.New(cfg.Oracle.Backend, cfg.Oracle.Binary)
	if err != nil {
		return nil, err
	}

	layout := vault.NewLayout(cfg.Vault.Root)
	a := &app{
		cfg:    cfg,
		layout: layout,
		store:  vault.NewStore(layout.MetadataPath()),
		blobs:  vault.NewBlobStore(layout.CredstoreDir()),
		ledger: audit.NewLedger(layout.AuditLogPath()),
		oracle: orc,
		policy: policy.NewEngine(policy.Config{
			AllowServices:          cfg.Policy.AllowServices,
			MinSecretLength:        cfg.Policy.MinSecretLength,
			ForbidHostOnlyWhenTPM2: cfg.Policy.ForbidHostOnlyWhenTPM2,
		}),
		dropins: dropin.NewGenerator(layout),
	}
	if cfg.MetricsOn() {
		a.metrics = metrics.NewCollector(nil)
	}
	return a, nil
}

// orchestrator wires the workflow engine over the app's collaborators.
func (a *app) orchestrator() *workflow.Orchestrator {
	return workflow.New(workflow.Deps{
		Layout:      a.layout,
		Store:       a.store,
		Blobs:       a.blobs,
		Ledger:      a.ledger,
		Policy:      a.policy,
		Oracle:      a.oracle,
		Dropins:     a.dropins,
		LockTimeout: a.cfg.Lock.Timeout,
		Metrics:     a.metrics,
		Harden:      a.cfg.Dropin.Hardening,
	})
}

// requireInitialized fails fast with a pointer at `ganymede init` when the
// vault layout does not exist yet.
func (a *app) requireInitialized() error {
	if !a.layout.Initialized() {
		return vault.NewNotInitialized(a.layout.Root)
	}
	return nil
}

// formatter resolves the persistent --output flag.
func formatter() (cli.Formatter, error) {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return cli.NewFormatter(format), nil
}

// readSecretInput resolves the secret material for create and rotate from
// the mutually exclusive input flags. With no flag set it falls back to an
// interactive double prompt with echo disabled. --stdin trims exactly one
// trailing newline so `echo secret | ganymede ...` does what it looks like;
// --from-file reads the file verbatim.
func readSecretInput(fromFile string, useStdin bool, label string) ([]byte, error) {
	if fromFile != "" && useStdin {
		return nil, vault.NewValidationError("--from-file and --stdin are mutually exclusive")
	}

	switch {
	case fromFile != "":
		data, err := os.ReadFile(fromFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read secret file: %w", err)
		}
		return data, nil
	case useStdin:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read secret from stdin: %w", err)
		}
		data = bytes.TrimSuffix(data, []byte("\n"))
		return bytes.TrimSuffix(data, []byte("\r")), nil
	default:
		return cli.ReadSecret(os.Stdin, os.Stderr, label)
	}
}
