package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault/health"
)

var healthFlags struct {
	decrypt bool
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run the vault health checks",
	Long: `Evaluate the vault end to end: layout and permissions, metadata
consistency, oracle reachability, TPM2 availability, a quick audit chain
verification, orphaned blobs, credentials stuck in awaiting-revocation, and
credentials with zero consumers.

Failures mean the vault is broken or untrustworthy; warnings are advisory.
The command exits non-zero when any check fails.

With --decrypt every credential is additionally round-tripped through the
oracle, proving the blobs still decrypt under the current key material.
That is slower and touches plaintext in memory, so it is opt-in.

Examples:
  ganymede health
  ganymede health --decrypt
  ganymede health --output json`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().BoolVar(&healthFlags.decrypt, "decrypt", false, "round-trip every credential through the oracle")
}

// healthView renders a health summary as a table or JSON.
type healthView struct {
	*health.Summary
}

func (v *healthView) TableHeader() []string {
	return []string{"STATUS", "CHECK", "MESSAGE", "HINT"}
}

func (v *healthView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Results))
	for _, r := range v.Results {
		msg := r.Message
		if msg == "" {
			msg = "ok"
		}
		hint := r.Hint
		if hint == "" {
			hint = "-"
		}
		rows = append(rows, []string{statusGlyph(r.Status), r.Name, msg, hint})
	}
	return rows
}

func statusGlyph(s health.Status) string {
	switch s {
	case health.StatusPass:
		return "✓ pass"
	case health.StatusWarn:
		return "⚠ warn"
	default:
		return "✗ fail"
	}
}

func runHealth(cmd *cobra.Command, args []string) error {
	f, err := formatter()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	checker := health.Standard(health.Deps{
		Layout: a.layout,
		Store:  a.store,
		Blobs:  a.blobs,
		Ledger: a.ledger,
		Oracle: a.oracle,
	}, health.Options{Decrypt: healthFlags.decrypt})

	summary := checker.Run(cli.SetupSignalHandler())

	if err := f.FormatTo(os.Stdout, &healthView{Summary: summary}); err != nil {
		return err
	}
	if outputFormat != string(cli.FormatJSON) {
		fmt.Printf("\n%d passed, %d warned, %d failed\n", summary.Passed, summary.Warned, summary.Failed)
	}

	if !summary.Healthy() {
		return fmt.Errorf("%d health check(s) failing", summary.Failed)
	}
	return nil
}
