package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/audit"
)

var auditFlags struct {
	from      uint64
	priorHash string

	limit     int
	operation string
	target    string
	outcome   string
	actor     string
	opID      string
	since     string
	until     string

	exportFormat string
	exportOut    string

	tailLimit  int
	tailFollow bool
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit ledger",
	Long: `Verify, query, export, and follow the hash-chained audit ledger.

Every operation attempt and outcome is an immutable ledger entry carrying a
digest chained to its predecessor. Queries run against a derived SQLite
index that is rebuilt from the ledger whenever the two disagree; the ledger
is always the source of truth.

Subcommands:
  verify - recompute the hash chain and report the first divergence
  show   - query entries through the SQLite index
  export - dump entries as JSON or CSV
  tail   - print the most recent entries, optionally following

Examples:
  ganymede audit verify
  ganymede audit show --operation rotate --limit 10
  ganymede audit export --format csv --output /tmp/audit.csv
  ganymede audit tail --follow`,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain",
	Long: `Recompute every entry digest from genesis and check the chain. A
divergence reports the first bad sequence number and fails with the
store-corrupt exit code; entries past that point are unverifiable.

With --from the check starts mid-chain, trusting --prior-hash as the digest
of the entry before it. That suits scheduled incremental checks which
remember the last verified position.

Examples:
  ganymede audit verify
  ganymede audit verify --from 4212 --prior-hash 9f0c...`,
	Args: cobra.NoArgs,
	RunE: runAuditVerify,
}

var auditShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Query audit entries",
	Long: `Query the ledger through its SQLite index, most recent first. The
index is synced from the ledger before the query, so a deleted or stale
index heals on the next show.

Examples:
  # Everything recent
  ganymede audit show

  # One credential's history
  ganymede audit show --target db_password --limit 50

  # Failed operations this month
  ganymede audit show --outcome failed --since 2026-08-01T00:00:00Z

  # All entries of one operation run
  ganymede audit show --op-id 1b0c...`,
	Args: cobra.NoArgs,
	RunE: runAuditShow,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ledger",
	Long: `Export ledger entries as JSON or CSV for offline analysis or
archival. JSON preserves the full entries including chain digests, so an
export remains independently verifiable.

Examples:
  ganymede audit export --format json --output /backup/audit.json
  ganymede audit export --format csv | column -t -s,`,
	Args: cobra.NoArgs,
	RunE: runAuditExport,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the most recent entries",
	Long: `Print the last entries of the ledger and, with --follow, keep
printing entries as they are appended until interrupted.

Examples:
  ganymede audit tail
  ganymede audit tail -n 50
  ganymede audit tail --follow`,
	Args: cobra.NoArgs,
	RunE: runAuditTail,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd, auditShowCmd, auditExportCmd, auditTailCmd)

	auditVerifyCmd.Flags().Uint64Var(&auditFlags.from, "from", 0, "start verification at this sequence number")
	auditVerifyCmd.Flags().StringVar(&auditFlags.priorHash, "prior-hash", "", "trusted digest of the entry before --from")

	auditShowCmd.Flags().IntVar(&auditFlags.limit, "limit", 20, "maximum entries to return")
	auditShowCmd.Flags().StringVar(&auditFlags.operation, "operation", "", "filter by operation")
	auditShowCmd.Flags().StringVar(&auditFlags.target, "target", "", "filter by target")
	auditShowCmd.Flags().StringVar(&auditFlags.outcome, "outcome", "", "filter by outcome: attempted, succeeded, failed")
	auditShowCmd.Flags().StringVar(&auditFlags.actor, "actor", "", "filter by actor")
	auditShowCmd.Flags().StringVar(&auditFlags.opID, "op-id", "", "filter by operation ID")
	auditShowCmd.Flags().StringVar(&auditFlags.since, "since", "", "entries at or after this RFC3339 time")
	auditShowCmd.Flags().StringVar(&auditFlags.until, "until", "", "entries before this RFC3339 time")

	auditExportCmd.Flags().StringVar(&auditFlags.exportFormat, "format", "json", "export format: json, csv")
	auditExportCmd.Flags().StringVarP(&auditFlags.exportOut, "output", "o", "", "write to this file instead of stdout")

	auditTailCmd.Flags().IntVarP(&auditFlags.tailLimit, "limit", "n", 10, "number of entries to print")
	auditTailCmd.Flags().BoolVarP(&auditFlags.tailFollow, "follow", "f", false, "keep following appended entries")
}

// verifyReport is the audit verify result, rendered as text or JSON.
type verifyReport struct {
	Valid        bool   `json:"valid"`
	Checked      uint64 `json:"entries_checked"`
	LastSequence uint64 `json:"last_sequence,omitempty"`
	LastHash     string `json:"last_hash,omitempty"`
	DivergedAt   uint64 `json:"diverged_at,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func (r *verifyReport) TableHeader() []string { return nil }

func (r *verifyReport) TableRows() [][]string {
	rows := [][]string{
		{"Chain valid:", strconv.FormatBool(r.Valid)},
		{"Entries checked:", strconv.FormatUint(r.Checked, 10)},
	}
	if r.Valid && r.Checked > 0 {
		rows = append(rows,
			[]string{"Last sequence:", strconv.FormatUint(r.LastSequence, 10)},
			[]string{"Last hash:", r.LastHash})
	}
	if !r.Valid {
		rows = append(rows,
			[]string{"Diverged at:", strconv.FormatUint(r.DivergedAt, 10)},
			[]string{"Reason:", r.Reason})
	}
	return rows
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	f, err := formatter()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	report, err := a.ledger.Verify(audit.VerifyOptions{
		FromSequence: auditFlags.from,
		PriorHash:    auditFlags.priorHash,
	})
	if err != nil {
		return err
	}

	view := &verifyReport{
		Valid:        report.Valid,
		Checked:      report.Checked,
		LastSequence: report.LastSequence,
		LastHash:     report.LastHash,
	}
	if report.Divergence != nil {
		view.DivergedAt = report.Divergence.Sequence
		view.Reason = report.Divergence.Reason
	}
	if err := f.FormatTo(os.Stdout, view); err != nil {
		return err
	}

	if !report.Valid {
		return vault.NewStoreCorrupt(
			fmt.Sprintf("audit chain diverges at sequence %d", view.DivergedAt), nil)
	}
	return nil
}

// auditListing renders query results as a table or JSON. The JSON form
// carries the complete entries, chain digests included.
type auditListing struct {
	Entries []audit.Entry `json:"entries"`
	Total   int           `json:"total"`
}

func (l *auditListing) TableHeader() []string {
	return []string{"SEQ", "TIME", "ACTOR", "OPERATION", "TARGET", "OUTCOME", "REASON"}
}

func (l *auditListing) TableRows() [][]string {
	rows := make([][]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		reason := e.Reason
		if reason == "" {
			reason = "-"
		}
		rows = append(rows, []string{
			strconv.FormatUint(e.Sequence, 10),
			e.Timestamp,
			e.Actor,
			e.Operation,
			e.Target,
			string(e.Outcome),
			reason,
		})
	}
	return rows
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	f, err := formatter()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	query := audit.Query{
		Operation: auditFlags.operation,
		Target:    auditFlags.target,
		Outcome:   auditFlags.outcome,
		Actor:     auditFlags.actor,
		OpID:      auditFlags.opID,
		Limit:     auditFlags.limit,
	}
	if auditFlags.since != "" {
		t, err := time.Parse(time.RFC3339, auditFlags.since)
		if err != nil {
			return vault.NewValidationErrorf("invalid --since value %q: %v", auditFlags.since, err)
		}
		query.Since = t
	}
	if auditFlags.until != "" {
		t, err := time.Parse(time.RFC3339, auditFlags.until)
		if err != nil {
			return vault.NewValidationErrorf("invalid --until value %q: %v", auditFlags.until, err)
		}
		query.Until = t
	}

	idx, err := audit.OpenIndex(a.layout.AuditIndexPath())
	if err != nil {
		return err
	}
	defer idx.Close()

	// The index is derived state; syncing here means a deleted index file
	// heals on the next query.
	if _, err := idx.Sync(a.ledger); err != nil {
		return err
	}

	entries, err := idx.Search(query)
	if err != nil {
		return err
	}
	if len(entries) == 0 && outputFormat != string(cli.FormatJSON) {
		fmt.Println("No audit entries match")
		return nil
	}
	return f.FormatTo(os.Stdout, &auditListing{Entries: entries, Total: len(entries)})
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	exporter, err := audit.NewExporter(auditFlags.exportFormat)
	if err != nil {
		return err
	}

	entries, err := a.ledger.Entries()
	if err != nil {
		return err
	}

	out := os.Stdout
	if auditFlags.exportOut != "" {
		f, err := os.OpenFile(auditFlags.exportOut, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := exporter.Export(cli.SetupSignalHandler(), entries, out); err != nil {
		return err
	}
	if auditFlags.exportOut != "" {
		fmt.Fprintf(os.Stderr, "✓ Exported %d entries to %s\n", len(entries), auditFlags.exportOut)
	}
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	tailer := audit.NewTailer(a.layout.AuditLogPath())
	entries, err := tailer.Last(auditFlags.tailLimit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		printEntryLine(e)
	}

	if !auditFlags.tailFollow {
		return nil
	}

	err = tailer.Follow(cli.SetupSignalHandler(), func(e audit.Entry) error {
		printEntryLine(e)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		// Interrupted follow is the normal way out.
		return nil
	}
	return err
}

// printEntryLine renders one entry in the streaming single-line form used
// by tail, where a tabwriter cannot line up columns after the fact.
func printEntryLine(e audit.Entry) {
	line := fmt.Sprintf("%d  %s  %s  %s  %s  %s", e.Sequence, e.Timestamp, e.Actor, e.Operation, e.Target, e.Outcome)
	if e.Reason != "" {
		line += "  (" + e.Reason + ")"
	}
	fmt.Println(line)
}
