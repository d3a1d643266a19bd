// Package maintain implements the scheduled maintenance sweep.
//
// One sweep verifies the audit hash chain from genesis, refreshes the
// derived SQLite query index, runs the standard health checks, and flushes
// the metrics snapshot for the node-exporter textfile collector. Sweeps are
// read-only with respect to managed state and never take the vault lock:
// everything they write (audit.db, metrics.prom) is derived and rebuildable.
//
// The Sweeper runs a single pass; the Scheduler repeats it on a cron
// schedule for the long-running `maintain` mode.
package maintain
