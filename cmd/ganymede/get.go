package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault"
)

var getFlags struct {
	out    string
	reason string
	quiet  bool
}

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Decrypt a credential",
	Long: `Decrypt a credential and write the plaintext to stdout or a file.

Every access lands in the audit ledger with the invoking user and the
--reason text. To keep secrets out of scrollback, get refuses to print to
an interactive terminal unless --quiet forces it; use --out to write a
0600 file instead.

Examples:
  # Pipe the secret into another tool
  ganymede get db_password | psql-wrapper

  # Write to a file readable only by the owner
  ganymede get db_password --out /tmp/dbpass

  # Record why the secret was pulled
  ganymede get api_token --reason "incident 4211 triage" --out /tmp/tok

  # Force terminal output
  ganymede get db_password --quiet`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVar(&getFlags.out, "out", "", "write the plaintext to this file (created 0600)")
	getCmd.Flags().StringVar(&getFlags.reason, "reason", "", "access reason recorded in the audit ledger")
	getCmd.Flags().BoolVar(&getFlags.quiet, "quiet", false, "allow printing the secret to a terminal")
}

func runGet(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	// Refuse before decrypting: no point pulling plaintext we will not
	// hand over.
	toTerminal := getFlags.out == "" && cli.IsTerminal(os.Stdout)
	if toTerminal && !getFlags.quiet {
		return vault.NewValidationError("refusing to print a secret to a terminal; use --out FILE, pipe the output, or force with --quiet")
	}

	plaintext, err := a.orchestrator().Get(cli.SetupSignalHandler(), name, getFlags.reason)
	if err != nil {
		return err
	}
	defer vault.Zero(plaintext)

	if getFlags.out != "" {
		f, err := os.OpenFile(getFlags.out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		if _, err := f.Write(plaintext); err != nil {
			f.Close()
			return fmt.Errorf("failed to write secret: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write secret: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Secret written to %s\n", getFlags.out)
		return nil
	}

	if _, err := os.Stdout.Write(plaintext); err != nil {
		return err
	}
	// A trailing newline only when a human is watching; pipes get the
	// exact bytes.
	if toTerminal {
		fmt.Println()
	}
	return nil
}
