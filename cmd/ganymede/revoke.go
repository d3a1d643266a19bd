package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke <name>",
	Short: "Retire a rotated credential's previous secret",
	Long: `Complete a rotation by deleting the retained previous blob and
returning the credential to active. Run this once every consumer has been
restarted against the new secret; until then the previous blob remains as
the rollback path.

Only credentials in awaiting-revocation can be revoked.

Examples:
  ganymede rotate db_password --generate
  systemctl restart webapp
  ganymede revoke db_password`,
	Args: cobra.ExactArgs(1),
	RunE: runRevoke,
}

func init() {
	rootCmd.AddCommand(revokeCmd)
	addYesFlag(revokeCmd)
}

func runRevoke(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	if err := confirmAction(fmt.Sprintf("Delete the retained previous secret of %q?", name)); err != nil {
		return err
	}

	if _, err := a.orchestrator().Revoke(cli.SetupSignalHandler(), name); err != nil {
		return err
	}

	fmt.Printf("✓ Previous secret of %q revoked; credential is active again\n", name)
	return nil
}
