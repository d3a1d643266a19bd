package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/maintain"
)

var maintainFlags struct {
	schedule string
	once     bool
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the scheduled maintenance sweep",
	Long: `Run the maintenance sweep: audit chain verification, query index
refresh, health evaluation, and a metrics textfile flush for the
node-exporter textfile collector.

By default one sweep runs immediately and further sweeps follow the cron
schedule until interrupted. --once runs the immediate sweep and exits,
which suits driving the schedule from a systemd timer instead.

A sweep is read-only: it never takes the vault lock and never mutates
managed state. On a diverged audit chain the sweep reports the divergence
and leaves the index untouched; the ledger is evidence at that point.

Examples:
  # Long-running, daily at 03:00 (the default schedule)
  ganymede maintain

  # Hourly sweeps
  ganymede maintain --schedule "@hourly"

  # One sweep, scheduling left to a systemd timer
  ganymede maintain --once`,
	Args: cobra.NoArgs,
	RunE: runMaintain,
}

func init() {
	rootCmd.AddCommand(maintainCmd)

	maintainCmd.Flags().StringVar(&maintainFlags.schedule, "schedule", "", "cron schedule (default from config)")
	maintainCmd.Flags().BoolVar(&maintainFlags.once, "once", false, "run a single sweep and exit")
}

// sweepView renders a sweep summary as a table or JSON.
type sweepView struct {
	*maintain.Summary
}

func (v *sweepView) TableHeader() []string { return nil }

func (v *sweepView) TableRows() [][]string {
	rows := [][]string{
		{"Chain valid:", strconv.FormatBool(v.ChainValid)},
		{"Entries checked:", strconv.FormatUint(v.EntriesChecked, 10)},
		{"Entries indexed:", strconv.Itoa(v.EntriesIndexed)},
	}
	if v.Health != nil {
		rows = append(rows, []string{"Health:", fmt.Sprintf("%d passed, %d warned, %d failed",
			v.Health.Passed, v.Health.Warned, v.Health.Failed)})
	}
	if v.MetricsPath != "" {
		rows = append(rows, []string{"Metrics:", v.MetricsPath})
	}
	for _, p := range v.Problems {
		rows = append(rows, []string{"Problem:", p})
	}
	rows = append(rows, []string{"Duration:", fmt.Sprintf("%dms", v.DurationMS)})
	return rows
}

func runMaintain(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireInitialized(); err != nil {
		return err
	}

	sweeper := maintain.NewSweeper(maintain.Deps{
		Layout:       a.layout,
		Store:        a.store,
		Blobs:        a.blobs,
		Ledger:       a.ledger,
		Oracle:       a.oracle,
		Metrics:      a.metrics,
		TextfilePath: a.cfg.Telemetry.Metrics.TextfilePath,
	})

	ctx := cli.SetupSignalHandler()

	// One sweep up front in both modes: a broken vault should surface on
	// start, not at 03:00.
	sum, err := sweeper.RunOnce(ctx)
	if err != nil {
		return err
	}

	if maintainFlags.once {
		f, err := formatter()
		if err != nil {
			return err
		}
		if err := f.FormatTo(os.Stdout, &sweepView{Summary: sum}); err != nil {
			return err
		}
		return sweepError(sum)
	}

	schedule := maintainFlags.schedule
	if schedule == "" {
		schedule = a.cfg.Maintain.Schedule
	}
	if schedule == "" {
		return vault.NewValidationError("no maintenance schedule configured; set maintain.schedule or pass --schedule (or use --once)")
	}

	scheduler := maintain.NewScheduler(sweeper, schedule)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("✓ Maintenance scheduler running (schedule %q)\n", schedule)
	if next := scheduler.NextRun(); next != nil {
		fmt.Printf("  Next sweep: %s\n", next.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()
	scheduler.Stop()
	fmt.Println("\nScheduler stopped")
	return nil
}

// sweepError maps a finished sweep onto the exit contract: a diverged chain
// is store corruption, anything else unclean is a plain failure.
func sweepError(sum *maintain.Summary) error {
	if !sum.ChainValid {
		return vault.NewStoreCorrupt("audit chain verification failed", nil)
	}
	if sum.Health != nil && !sum.Health.Healthy() {
		return fmt.Errorf("%d health check(s) failing", sum.Health.Failed)
	}
	if len(sum.Problems) > 0 {
		return fmt.Errorf("maintenance sweep found %d problem(s)", len(sum.Problems))
	}
	return nil
}
