package maintain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/vault"
	"mercator-hq/ganymede/pkg/vault/audit"
	"mercator-hq/ganymede/pkg/vault/health"
	"mercator-hq/ganymede/pkg/vault/oracle"
)

// Deps wires the collaborators one sweep reads. Metrics is optional; nil
// skips gauge updates and the textfile flush.
type Deps struct {
	Layout  *vault.Layout
	Store   *vault.Store
	Blobs   *vault.BlobStore
	Ledger  *audit.Ledger
	Oracle  oracle.Oracle
	Metrics *metrics.Collector

	// TextfilePath overrides where the metrics snapshot is written. Empty
	// uses the layout's metrics path.
	TextfilePath string
}

// Sweeper runs the periodic maintenance pass: audit chain verification,
// query index refresh, health evaluation, and metrics flush. A sweep never
// takes the vault lock and never mutates managed state; the index and the
// metrics snapshot are both derived artifacts.
type Sweeper struct {
	deps   Deps
	logger *slog.Logger
}

// NewSweeper wires a sweeper over the given collaborators.
func NewSweeper(deps Deps) *Sweeper {
	return &Sweeper{
		deps:   deps,
		logger: slog.Default().With("component", "vault.maintain"),
	}
}

// Summary reports one completed sweep.
type Summary struct {
	// Started is when the sweep began, UTC.
	Started time.Time `json:"started"`

	// DurationMS is the sweep's wall time in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// ChainValid reports whether the audit hash chain verified.
	ChainValid bool `json:"chain_valid"`

	// EntriesChecked counts ledger entries whose digests were recomputed.
	EntriesChecked uint64 `json:"entries_checked"`

	// EntriesIndexed counts entries newly synced into the query index.
	EntriesIndexed int `json:"entries_indexed"`

	// Health is the full health evaluation.
	Health *health.Summary `json:"health"`

	// MetricsPath is where the metrics snapshot was written, empty when
	// metrics are disabled.
	MetricsPath string `json:"metrics_path,omitempty"`

	// Problems lists everything the sweep could not do or found broken.
	Problems []string `json:"problems,omitempty"`
}

// Clean reports whether the sweep found nothing wrong. Health warnings
// count as findings here even though they leave the vault operational.
func (s *Summary) Clean() bool {
	return s.ChainValid && len(s.Problems) == 0 &&
		s.Health != nil && s.Health.Healthy() && s.Health.Warned == 0
}

// RunOnce executes a single maintenance pass. Findings land in the Summary;
// the error return is reserved for an unusable vault or I/O failure that
// prevented the sweep from running at all.
func (s *Sweeper) RunOnce(ctx context.Context) (*Summary, error) {
	start := time.Now()
	sum := &Summary{Started: start.UTC()}

	if !s.deps.Layout.Initialized() {
		return nil, vault.NewNotInitialized(s.deps.Layout.Root)
	}

	report, err := s.deps.Ledger.Verify(audit.VerifyOptions{})
	if err != nil {
		return nil, err
	}
	sum.ChainValid = report.Valid
	sum.EntriesChecked = report.Checked
	if !report.Valid && report.Divergence != nil {
		sum.Problems = append(sum.Problems, fmt.Sprintf(
			"audit chain diverges at sequence %d: %s",
			report.Divergence.Sequence, report.Divergence.Reason))
	}

	// A diverged ledger is evidence; re-indexing it would bury the good
	// prefix under unverifiable rows.
	if report.Valid {
		sum.EntriesIndexed = s.syncIndex(sum)
	}

	checker := health.Standard(health.Deps{
		Layout: s.deps.Layout,
		Store:  s.deps.Store,
		Blobs:  s.deps.Blobs,
		Ledger: s.deps.Ledger,
		Oracle: s.deps.Oracle,
	}, health.Options{})
	sum.Health = checker.Run(ctx)

	s.flushMetrics(report, sum)

	sum.DurationMS = time.Since(start).Milliseconds()
	s.logger.Info("maintenance sweep completed",
		"chain_valid", sum.ChainValid,
		"entries_checked", sum.EntriesChecked,
		"entries_indexed", sum.EntriesIndexed,
		"health_failed", sum.Health.Failed,
		"health_warned", sum.Health.Warned,
		"duration_ms", sum.DurationMS,
	)
	return sum, nil
}

// syncIndex refreshes the derived SQLite index from the ledger, returning
// the number of newly indexed entries.
func (s *Sweeper) syncIndex(sum *Summary) int {
	idx, err := audit.OpenIndex(s.deps.Layout.AuditIndexPath())
	if err != nil {
		sum.Problems = append(sum.Problems, fmt.Sprintf("failed to open audit index: %v", err))
		return 0
	}
	defer idx.Close()

	n, err := idx.Sync(s.deps.Ledger)
	if err != nil {
		sum.Problems = append(sum.Problems, fmt.Sprintf("failed to sync audit index: %v", err))
		return 0
	}
	return n
}

// flushMetrics updates the state gauges and writes the textfile snapshot.
func (s *Sweeper) flushMetrics(report *audit.Report, sum *Summary) {
	if s.deps.Metrics == nil {
		return
	}

	s.deps.Metrics.SetAuditStats(report.Checked, report.Valid)

	doc, err := s.deps.Store.Load()
	if err != nil {
		sum.Problems = append(sum.Problems, fmt.Sprintf("failed to load metadata for gauges: %v", err))
	} else {
		inv := metrics.Inventory{Credentials: len(doc.Credentials)}
		for _, cred := range doc.Credentials {
			if cred.Status == vault.StatusAwaitingRevocation {
				inv.AwaitingRevocation++
			}
		}
		for _, entries := range doc.Bindings {
			if len(entries) > 0 {
				inv.BoundServices++
			}
		}
		if orphans, err := s.deps.Blobs.Orphans(doc); err == nil {
			inv.OrphanedBlobs = len(orphans)
		}
		s.deps.Metrics.SetInventory(inv)
	}

	path := s.deps.TextfilePath
	if path == "" {
		path = s.deps.Layout.MetricsPath()
	}
	if err := s.deps.Metrics.WriteTextfile(path); err != nil {
		sum.Problems = append(sum.Problems, fmt.Sprintf("failed to write metrics textfile: %v", err))
		return
	}
	sum.MetricsPath = path
}
