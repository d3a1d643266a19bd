package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault"
)

var (
	// Global flags
	cfgFile      string
	vaultRoot    string
	verbose      bool
	outputFormat string
	assumeYes    bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Ganymede - single-host secrets lifecycle manager",
	Long: `Ganymede manages the full lifecycle of service credentials on a single
host: creation, binding, rotation, revocation, and deletion.

Secrets are sealed through systemd-creds (host key and/or TPM2) and never
written to disk in plaintext. Every mutating operation is policy-gated,
serialized under an exclusive vault lock, recorded in a hash-chained audit
ledger, and rolled back on failure.

Services consume credentials through generated systemd drop-in fragments
(LoadCredentialEncrypted=), so the plaintext exists only in the service's
private /run/credentials directory at runtime.

For more information, visit: https://github.com/mercator-hq/ganymede`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Failures map onto the documented exit codes
// so scripts can branch on the failure class.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default /etc/ganymede/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&vaultRoot, "vault-root", "", "vault root directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json")

	// Disable default completion command (we'll add our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = false
}

// addYesFlag registers the confirmation bypass on a mutating command.
func addYesFlag(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt")
}

// confirmAction enforces the confirmation rule for mutating commands:
// interactive runs get a y/N prompt, non-interactive runs must pass --yes.
// Scripts never get a silent default.
func confirmAction(question string) error {
	if assumeYes {
		return nil
	}
	if !cli.IsTerminal(os.Stdin) {
		return vault.NewValidationError("confirmation required: re-run with --yes when stdin is not a terminal")
	}
	ok, err := cli.Confirm(os.Stdin, os.Stderr, question)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("aborted")
	}
	return nil
}
