package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/audit"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the vault layout",
	Long: `Create the vault directory layout with its permission discipline.

The vault root, lock directory, and credential store are created 0700; the
service manifest and staged drop-in directories are 0755. An empty metadata
document and the audit ledger's first entries are written last, so a vault
is only considered initialized once its metadata exists.

Running init against an existing vault is a no-op.

Examples:
  # Initialize at the configured root
  ganymede init

  # Initialize a scratch vault elsewhere
  ganymede --vault-root /tmp/vault-test init`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if a.layout.Initialized() {
		fmt.Printf("✓ Vault already initialized at %s\n", a.layout.Root)
		return nil
	}

	if err := a.layout.Init(); err != nil {
		return err
	}

	// The attempted entry precedes the metadata write: if the commit
	// fails, the ledger still shows the attempt.
	opID := uuid.NewString()
	actor := audit.DetectActor()
	if _, err := a.ledger.Append(audit.Draft{
		Actor:     actor,
		Operation: "init",
		Target:    a.layout.Root,
		Outcome:   audit.OutcomeAttempted,
		OpID:      opID,
	}); err != nil {
		return err
	}

	if err := a.store.Commit(vault.NewDocument()); err != nil {
		if _, aerr := a.ledger.Append(audit.Draft{
			Actor:     actor,
			Operation: "init",
			Target:    a.layout.Root,
			Outcome:   audit.OutcomeFailed,
			Reason:    err.Error(),
			OpID:      opID,
		}); aerr != nil {
			return fmt.Errorf("%w (audit append also failed: %v)", err, aerr)
		}
		return err
	}

	if _, err := a.ledger.Append(audit.Draft{
		Actor:     actor,
		Operation: "init",
		Target:    a.layout.Root,
		Outcome:   audit.OutcomeSucceeded,
		OpID:      opID,
	}); err != nil {
		return err
	}

	fmt.Printf("✓ Vault initialized at %s\n", a.layout.Root)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  ganymede create <name> --generate    # create a credential")
	fmt.Println("  ganymede health                      # verify the setup")
	return nil
}
