package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/workflow"
)

var createFlags struct {
	description string
	tags        []string
	service     string
	envVar      string
	keyPolicy   string
	fromFile    string
	stdin       bool
	generate    bool
	length      int
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a credential",
	Long: `Encrypt a new secret through the oracle and record its metadata.

The secret comes from --from-file, --stdin, --generate, or an interactive
double prompt with echo disabled. With --service the credential is bound in
the same operation and the service's drop-in fragment is restaged.

The key policy selects the sealing key material: "host" (host key only),
"tpm2" (TPM2 only), "host+tpm2" (both), or "auto" (host+tpm2 when a TPM2
device is present, host otherwise).

Examples:
  # Generate a random secret and bind it
  ganymede create db_password --service webapp --generate

  # Import an existing secret from a file
  ganymede create api_token --from-file /tmp/token --tag external

  # Pipe a secret in from another tool
  op read "op://prod/db/password" | ganymede create db_password --stdin --yes

  # Seal against the TPM2 only
  ganymede create signing_key --key-policy tpm2 --generate --length 64`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&createFlags.description, "description", "", "human-readable description")
	createCmd.Flags().StringSliceVar(&createFlags.tags, "tag", nil, "tag to attach (repeatable)")
	createCmd.Flags().StringVar(&createFlags.service, "service", "", "bind to this service in the same operation")
	createCmd.Flags().StringVar(&createFlags.envVar, "env-var", "", "exposure variable for the service binding")
	createCmd.Flags().StringVar(&createFlags.keyPolicy, "key-policy", "auto", "sealing policy: host, tpm2, host+tpm2, auto")
	createCmd.Flags().StringVar(&createFlags.fromFile, "from-file", "", "read the secret from a file")
	createCmd.Flags().BoolVar(&createFlags.stdin, "stdin", false, "read the secret from stdin")
	createCmd.Flags().BoolVar(&createFlags.generate, "generate", false, "generate a random secret")
	createCmd.Flags().IntVar(&createFlags.length, "length", 0, "generated secret length (default 32)")
	addYesFlag(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	spec := workflow.CreateSpec{
		Name:           name,
		Description:    createFlags.description,
		Tags:           createFlags.tags,
		Service:        createFlags.service,
		EnvVar:         createFlags.envVar,
		KeyPolicy:      vault.KeyPolicy(createFlags.keyPolicy),
		Generate:       createFlags.generate,
		GenerateLength: createFlags.length,
	}

	// Read the secret before confirming: an interactive prompt for the
	// material doubles as intent, and a piped secret must be drained
	// before the confirmation rule inspects stdin.
	if !createFlags.generate {
		secret, err := readSecretInput(createFlags.fromFile, createFlags.stdin, "Secret for "+name)
		if err != nil {
			return err
		}
		defer vault.Zero(secret)
		spec.Secret = secret
	}

	if err := confirmAction(fmt.Sprintf("Create credential %q?", name)); err != nil {
		return err
	}

	res, err := a.orchestrator().Create(cli.SetupSignalHandler(), spec)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Credential %q created\n", name)
	fmt.Printf("  Blob: %s\n", res.Details["blob_ref"])
	if createFlags.service != "" {
		svc := vault.NormalizeServiceName(createFlags.service)
		fmt.Printf("  Service: %s\n", svc)
		fmt.Println()
		fmt.Printf("Drop-in staged; run 'ganymede dropin apply %s' to install it.\n", svc)
	}
	return nil
}
