package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/migrate"
	"mercator-hq/ganymede/pkg/vault/workflow"
)

var migrateFlags struct {
	service   string
	keyPolicy string
	dryRun    bool
	include   []string
	exclude   []string
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate plaintext environment files into the vault",
	Long: `Classify and import secrets from plaintext .env files.

The classifier flags entries whose key matches a secret-bearing pattern
(PASSWORD, TOKEN, API_KEY, ...) or whose value looks like key material.
--include and --exclude override it per key.

Subcommands:
  scan   - classify an env file and report the would-import set
  import - encrypt, store, and bind the accepted entries

Examples:
  # See what would be imported
  ganymede migrate scan /opt/services/webapp/.env

  # Import everything classified as secret and bind it to webapp
  ganymede migrate import /opt/services/webapp/.env --service webapp

  # Rehearse without committing
  ganymede migrate import .env --service webapp --dry-run`,
}

var migrateScanCmd = &cobra.Command{
	Use:   "scan <env-file>",
	Short: "Classify an env file",
	Long: `Parse an environment file and report, per entry, whether it would be
imported and which rule decided that. Read-only; no vault access.

Examples:
  ganymede migrate scan /opt/services/webapp/.env
  ganymede migrate scan .env --include APP_MODE --exclude DEBUG_TOKEN`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrateScan,
}

var migrateImportCmd = &cobra.Command{
	Use:   "import <env-file>",
	Short: "Import an env file's secrets",
	Long: `Encrypt, store, and bind every entry the classifier accepts, as one
audited operation. Entries whose credential name already exists in the vault
are skipped and reported. With --dry-run all work is performed and then
rolled back, reporting what would change without committing anything.

Examples:
  ganymede migrate import /opt/services/webapp/.env --service webapp
  ganymede migrate import .env --service webapp --key-policy host+tpm2 --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrateImport,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateScanCmd, migrateImportCmd)

	for _, c := range []*cobra.Command{migrateScanCmd, migrateImportCmd} {
		c.Flags().StringSliceVar(&migrateFlags.include, "include", nil, "force-import this key (repeatable)")
		c.Flags().StringSliceVar(&migrateFlags.exclude, "exclude", nil, "never import this key (repeatable)")
	}

	migrateImportCmd.Flags().StringVar(&migrateFlags.service, "service", "", "bind imported credentials to this service")
	migrateImportCmd.Flags().StringVar(&migrateFlags.keyPolicy, "key-policy", "auto", "sealing policy: host, tpm2, host+tpm2, auto")
	migrateImportCmd.Flags().BoolVar(&migrateFlags.dryRun, "dry-run", false, "run every step but roll back instead of committing")
	addYesFlag(migrateImportCmd)
}

// migrateScanReport is the scan result, rendered as a table or JSON.
type migrateScanReport struct {
	Path    string           `json:"path"`
	Entries []migrateScanRow `json:"entries"`
	Secrets int              `json:"secrets"`
}

type migrateScanRow struct {
	Key        string `json:"key"`
	Line       int    `json:"line"`
	Import     bool   `json:"import"`
	Rule       string `json:"rule"`
	Credential string `json:"credential,omitempty"`
}

func (r *migrateScanReport) TableHeader() []string {
	return []string{"KEY", "LINE", "IMPORT", "RULE", "CREDENTIAL"}
}

func (r *migrateScanReport) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		imp := "no"
		cred := "-"
		if e.Import {
			imp = "yes"
			cred = e.Credential
		}
		rows = append(rows, []string{e.Key, strconv.Itoa(e.Line), imp, e.Rule, cred})
	}
	return rows
}

func runMigrateScan(cmd *cobra.Command, args []string) error {
	f, err := formatter()
	if err != nil {
		return err
	}

	// Scan needs the configured extra patterns but no vault access, so it
	// loads configuration without requiring an initialized layout.
	a, err := newApp()
	if err != nil {
		return err
	}

	classifier := migrate.NewClassifier(a.cfg.Policy.SecretPatterns).
		Include(migrateFlags.include...).
		Exclude(migrateFlags.exclude...)

	candidates, err := migrate.Scan(args[0], classifier)
	if err != nil {
		return err
	}

	report := &migrateScanReport{Path: args[0], Entries: make([]migrateScanRow, 0, len(candidates))}
	for _, c := range candidates {
		row := migrateScanRow{
			Key:    c.Entry.Key,
			Line:   c.Entry.Line,
			Import: c.Classification.Secret,
			Rule:   c.Classification.Rule,
		}
		if row.Import {
			row.Credential = migrate.CredentialName(c.Entry.Key)
			report.Secrets++
		}
		report.Entries = append(report.Entries, row)
	}
	return f.FormatTo(os.Stdout, report)
}

func runMigrateImport(cmd *cobra.Command, args []string) error {
	path := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	if !migrateFlags.dryRun {
		if err := confirmAction(fmt.Sprintf("Import secrets from %s into the vault?", path)); err != nil {
			return err
		}
	}

	res, err := a.orchestrator().MigrateImport(cli.SetupSignalHandler(), workflow.MigrateSpec{
		Path:      path,
		Service:   migrateFlags.service,
		KeyPolicy: vault.KeyPolicy(migrateFlags.keyPolicy),
		DryRun:    migrateFlags.dryRun,
		Patterns:  a.cfg.Policy.SecretPatterns,
		Include:   migrateFlags.include,
		Exclude:   migrateFlags.exclude,
	})
	if err != nil {
		return err
	}

	imported := splitDetail(res.Details["imported"])
	skipped := splitDetail(res.Details["skipped_existing"])

	if migrateFlags.dryRun {
		fmt.Printf("Dry run: %d credential(s) would be imported from %s\n", len(imported), path)
	} else {
		fmt.Printf("✓ Imported %d credential(s) from %s\n", len(imported), path)
	}
	for _, name := range imported {
		fmt.Printf("  %s\n", name)
	}
	if len(skipped) > 0 {
		fmt.Printf("Skipped %d existing credential(s): %s\n", len(skipped), strings.Join(skipped, ", "))
	}
	if !migrateFlags.dryRun && len(imported) > 0 {
		fmt.Println()
		fmt.Println("The plaintext file is now redundant; shred it once the services are switched over.")
	}
	return nil
}

// splitDetail splits a comma-joined detail value, mapping empty to none.
func splitDetail(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
