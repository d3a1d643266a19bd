package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault/workflow"
)

var deleteFlags struct {
	force bool
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a credential",
	Long: `Remove a credential's metadata and encrypted blobs from the vault.

Deletion refuses while any service binding still references the credential;
--force unbinds every consumer first and restages their drop-in fragments.
The audit trail of the credential's lifetime is never deleted.

Examples:
  # Delete an unbound credential
  ganymede delete scratch_token

  # Delete and unbind consumers in one operation
  ganymede delete db_password --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().BoolVar(&deleteFlags.force, "force", false, "unbind consuming services before deleting")
	addYesFlag(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	if err := confirmAction(fmt.Sprintf("Permanently delete credential %q?", name)); err != nil {
		return err
	}

	if _, err := a.orchestrator().Delete(cli.SetupSignalHandler(), workflow.DeleteSpec{
		Name:  name,
		Force: deleteFlags.force,
	}); err != nil {
		return err
	}

	fmt.Printf("✓ Credential %q deleted\n", name)
	return nil
}
