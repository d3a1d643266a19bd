package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/workflow"
)

var bindFlags struct {
	service string
	envVar  string
}

var unbindFlags struct {
	service string
}

var bindCmd = &cobra.Command{
	Use:   "bind <name>",
	Short: "Bind a credential to a service",
	Long: `Declare that a service consumes a credential. The binding lands in
the metadata document and the service manifest, and the service's drop-in
fragment is restaged to include the credential.

With --env-var the drop-in also exports an environment variable pointing at
the materialized credential path under /run/credentials.

Examples:
  ganymede bind db_password --service webapp
  ganymede bind db_password --service webapp --env-var DB_PASSWORD_FILE`,
	Args: cobra.ExactArgs(1),
	RunE: runBind,
}

var unbindCmd = &cobra.Command{
	Use:   "unbind <name>",
	Short: "Unbind a credential from a service",
	Long: `Remove a service's claim on a credential and restage the service's
drop-in fragment without it. The credential itself is untouched.

Examples:
  ganymede unbind db_password --service webapp`,
	Args: cobra.ExactArgs(1),
	RunE: runUnbind,
}

func init() {
	rootCmd.AddCommand(bindCmd, unbindCmd)

	bindCmd.Flags().StringVar(&bindFlags.service, "service", "", "consuming service (required)")
	bindCmd.Flags().StringVar(&bindFlags.envVar, "env-var", "", "exposure variable for the binding")
	_ = bindCmd.MarkFlagRequired("service")
	addYesFlag(bindCmd)

	unbindCmd.Flags().StringVar(&unbindFlags.service, "service", "", "consuming service (required)")
	_ = unbindCmd.MarkFlagRequired("service")
	addYesFlag(unbindCmd)
}

func runBind(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	if err := confirmAction(fmt.Sprintf("Bind credential %q to service %q?", name, bindFlags.service)); err != nil {
		return err
	}

	if _, err := a.orchestrator().Bind(cli.SetupSignalHandler(), workflow.BindSpec{
		Credential: name,
		Service:    bindFlags.service,
		EnvVar:     bindFlags.envVar,
	}); err != nil {
		return err
	}

	svc := vault.NormalizeServiceName(bindFlags.service)
	fmt.Printf("✓ Credential %q bound to service %q\n", name, svc)
	fmt.Printf("Drop-in staged; run 'ganymede dropin apply %s' to install it.\n", svc)
	return nil
}

func runUnbind(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	if err := confirmAction(fmt.Sprintf("Unbind credential %q from service %q?", name, unbindFlags.service)); err != nil {
		return err
	}

	if _, err := a.orchestrator().Unbind(cli.SetupSignalHandler(), workflow.UnbindSpec{
		Credential: name,
		Service:    unbindFlags.service,
	}); err != nil {
		return err
	}

	fmt.Printf("✓ Credential %q unbound from service %q\n", name, vault.NormalizeServiceName(unbindFlags.service))
	return nil
}
