package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/workflow"
)

var rotateFlags struct {
	keyPolicy string
	fromFile  string
	stdin     bool
	generate  bool
	length    int
}

var rotateCmd = &cobra.Command{
	Use:   "rotate <name>",
	Short: "Rotate a credential to a new secret",
	Long: `Install a new secret for a credential. Rotation is two-phase: the
previous blob is retained as a fallback and the credential moves to
awaiting-revocation. Once every consumer has picked up the new secret, run
'ganymede revoke <name>' to delete the retained blob.

A credential already awaiting revocation cannot be rotated again; revoke it
first. Bound services get their drop-in fragments restaged in the same
operation.

Examples:
  # Rotate to a fresh random secret
  ganymede rotate db_password --generate

  # Rotate to a specific value and tighten the sealing policy
  ganymede rotate api_token --from-file /tmp/new-token --key-policy host+tpm2`,
	Args: cobra.ExactArgs(1),
	RunE: runRotate,
}

func init() {
	rootCmd.AddCommand(rotateCmd)

	rotateCmd.Flags().StringVar(&rotateFlags.keyPolicy, "key-policy", "auto", "sealing policy for the new blob: host, tpm2, host+tpm2, auto")
	rotateCmd.Flags().StringVar(&rotateFlags.fromFile, "from-file", "", "read the new secret from a file")
	rotateCmd.Flags().BoolVar(&rotateFlags.stdin, "stdin", false, "read the new secret from stdin")
	rotateCmd.Flags().BoolVar(&rotateFlags.generate, "generate", false, "generate a random secret")
	rotateCmd.Flags().IntVar(&rotateFlags.length, "length", 0, "generated secret length (default 32)")
	addYesFlag(rotateCmd)
}

func runRotate(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	spec := workflow.RotateSpec{
		Name:           name,
		KeyPolicy:      vault.KeyPolicy(rotateFlags.keyPolicy),
		Generate:       rotateFlags.generate,
		GenerateLength: rotateFlags.length,
	}

	if !rotateFlags.generate {
		secret, err := readSecretInput(rotateFlags.fromFile, rotateFlags.stdin, "New secret for "+name)
		if err != nil {
			return err
		}
		defer vault.Zero(secret)
		spec.Secret = secret
	}

	if err := confirmAction(fmt.Sprintf("Rotate credential %q?", name)); err != nil {
		return err
	}

	res, err := a.orchestrator().Rotate(cli.SetupSignalHandler(), spec)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Credential %q rotated\n", name)
	fmt.Printf("  New blob:      %s\n", res.Details["blob_ref"])
	fmt.Printf("  Retained blob: %s\n", res.Details["prev_blob_ref"])
	fmt.Println()
	fmt.Printf("Restart the consuming services, then run 'ganymede revoke %s' to retire the old secret.\n", name)
	return nil
}
