package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/audit"
	"mercator-hq/ganymede/pkg/vault/dropin"
)

var dropinFlags struct {
	harden  bool
	noEnv   bool
	unitDir string
}

var dropinCmd = &cobra.Command{
	Use:   "dropin",
	Short: "Manage systemd drop-in fragments",
	Long: `Generate, compare, and install the systemd drop-in fragments that
deliver credentials to services.

A fragment lists one LoadCredentialEncrypted= directive per bound credential
and, where configured, an Environment= line pointing at the materialized
path under /run/credentials. Rendering is deterministic, so generated and
installed fragments diff cleanly.

Subcommands:
  generate - render a service's fragment and stage it under the vault
  diff     - compare the staged render against the installed fragment
  apply    - install the fragment into the systemd unit directory

Examples:
  ganymede dropin generate webapp
  ganymede dropin diff webapp
  ganymede dropin apply webapp`,
}

var dropinGenerateCmd = &cobra.Command{
	Use:   "generate <service>",
	Short: "Render and stage a service's fragment",
	Long: `Render the drop-in fragment for a service from its current bindings
and write it to the vault's staging area. The fragment is printed so it can
be reviewed before 'dropin apply' installs it.

Examples:
  ganymede dropin generate webapp

  # Include the systemd sandboxing directive block
  ganymede dropin generate webapp --harden

  # Omit Environment= lines, deliver file paths only
  ganymede dropin generate webapp --no-env`,
	Args: cobra.ExactArgs(1),
	RunE: runDropinGenerate,
}

var dropinDiffCmd = &cobra.Command{
	Use:   "diff <service>",
	Short: "Compare generated against installed",
	Long: `Render the fragment from current bindings and compare it line by
line against what is installed in the systemd unit directory. Nothing is
mutated.

Examples:
  ganymede dropin diff webapp
  ganymede dropin diff webapp --unit-dir /etc/systemd/system`,
	Args: cobra.ExactArgs(1),
	RunE: runDropinDiff,
}

var dropinApplyCmd = &cobra.Command{
	Use:   "apply <service>",
	Short: "Install a service's fragment",
	Long: `Install the rendered fragment into the systemd unit directory as
<unit>.d/credentials.conf (0600). The install is confirmation-gated and
audited; systemd itself is not reloaded.

Examples:
  ganymede dropin apply webapp
  sudo systemctl daemon-reload && sudo systemctl restart webapp`,
	Args: cobra.ExactArgs(1),
	RunE: runDropinApply,
}

func init() {
	rootCmd.AddCommand(dropinCmd)
	dropinCmd.AddCommand(dropinGenerateCmd, dropinDiffCmd, dropinApplyCmd)

	for _, c := range []*cobra.Command{dropinGenerateCmd, dropinDiffCmd, dropinApplyCmd} {
		c.Flags().BoolVar(&dropinFlags.harden, "harden", false, "append the sandboxing directive block")
		c.Flags().BoolVar(&dropinFlags.noEnv, "no-env", false, "omit Environment= lines")
	}
	dropinDiffCmd.Flags().StringVar(&dropinFlags.unitDir, "unit-dir", "", "systemd unit directory (default from config)")
	dropinApplyCmd.Flags().StringVar(&dropinFlags.unitDir, "unit-dir", "", "systemd unit directory (default from config)")
	addYesFlag(dropinApplyCmd)
}

// dropinOptions merges the configured hardening default with the flags.
func (a *app) dropinOptions() dropin.Options {
	return dropin.Options{
		Hardening: a.cfg.Dropin.Hardening || dropinFlags.harden,
		NoEnv:     dropinFlags.noEnv,
	}
}

// unitDir resolves the target systemd unit directory.
func (a *app) unitDir() string {
	if dropinFlags.unitDir != "" {
		return dropinFlags.unitDir
	}
	return a.cfg.Dropin.UnitDir
}

func runDropinGenerate(cmd *cobra.Command, args []string) error {
	service := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}
	doc, err := a.store.Load()
	if err != nil {
		return err
	}

	content, err := a.dropins.Generate(doc, service, a.dropinOptions())
	if err != nil {
		return err
	}
	staged, err := a.dropins.Stage(service, content)
	if err != nil {
		return err
	}

	fmt.Print(content)
	fmt.Fprintf(os.Stderr, "\n✓ Staged at %s\n", staged)
	return nil
}

func runDropinDiff(cmd *cobra.Command, args []string) error {
	service := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}
	doc, err := a.store.Load()
	if err != nil {
		return err
	}

	content, err := a.dropins.Generate(doc, service, a.dropinOptions())
	if err != nil {
		return err
	}
	installed, found, err := dropin.ReadInstalled(a.unitDir(), service)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("No installed fragment at %s\n", dropin.InstalledPath(a.unitDir(), service))
	}

	changes := dropin.Diff(content, installed)
	if len(changes) == 0 {
		fmt.Println("✓ Installed fragment is up to date")
		return nil
	}
	fmt.Print(dropin.Format(changes))
	return nil
}

func runDropinApply(cmd *cobra.Command, args []string) error {
	service := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	unitDir := a.unitDir()
	unit := dropin.UnitName(service)
	if err := confirmAction(fmt.Sprintf("Install drop-in for %s into %s?", unit, unitDir)); err != nil {
		return err
	}

	// The install mutates shared state outside the vault, but the audit
	// entries still need the guard: Append assumes the caller serializes.
	ctx := cli.SetupSignalHandler()
	guard := vault.NewGuard(a.layout.LockPath(), a.cfg.Lock.Timeout)
	if err := guard.Acquire(ctx); err != nil {
		return err
	}
	defer guard.Release()

	doc, err := a.store.Load()
	if err != nil {
		return err
	}
	content, err := a.dropins.Generate(doc, service, a.dropinOptions())
	if err != nil {
		return err
	}

	opID := uuid.NewString()
	actor := audit.DetectActor()
	draft := audit.Draft{
		Actor:     actor,
		Operation: "dropin-apply",
		Target:    vault.NormalizeServiceName(service),
		OpID:      opID,
		Details:   map[string]string{"unit_dir": unitDir},
	}

	draft.Outcome = audit.OutcomeAttempted
	if _, err := a.ledger.Append(draft); err != nil {
		return err
	}

	installed, err := dropin.Install(unitDir, service, content)
	if err != nil {
		draft.Outcome = audit.OutcomeFailed
		draft.Reason = err.Error()
		if _, aerr := a.ledger.Append(draft); aerr != nil {
			return fmt.Errorf("%w (audit append also failed: %v)", err, aerr)
		}
		return err
	}

	draft.Outcome = audit.OutcomeSucceeded
	if _, err := a.ledger.Append(draft); err != nil {
		return err
	}

	fmt.Printf("✓ Drop-in installed at %s\n", installed)
	fmt.Println()
	fmt.Println("Reload systemd and restart the service to pick it up:")
	fmt.Printf("  sudo systemctl daemon-reload && sudo systemctl restart %s\n", unit)
	return nil
}
