// Package telemetry provides observability for Ganymede.
//
// # Overview
//
// The telemetry package implements structured logging and Prometheus
// metrics for a short-lived CLI process. There is no long-running
// server to scrape, so metrics are published through the node_exporter
// textfile collector: each maintenance sweep renders the registry to a
// .prom file that node_exporter picks up on its next scrape.
//
// # Components
//
//   - logging: Structured logging built on log/slog
//   - metrics: Prometheus gauges flushed to a textfile
//
// # Usage
//
//	// Initialize logging once, before any command logic runs
//	closer, err := logging.Setup(logging.Options{
//		Level:  cfg.Telemetry.Logging.Level,
//		Format: cfg.Telemetry.Logging.Format,
//	})
//
//	// Record vault state and flush
//	col := metrics.NewCollector(nil)
//	col.SetInventory(inv)
//	col.SetAuditStats(entries, chainValid)
//	err = col.WriteTextfile(cfg.Telemetry.Metrics.TextfilePath)
//
// # Published series
//
// Operation counters and duration histograms accumulate within a single
// process run; the inventory and audit gauges carry state between runs:
//
//   - ganymede_operations_total, ganymede_operation_duration_seconds
//   - ganymede_lock_wait_seconds, ganymede_step_duration_seconds
//   - ganymede_credentials, ganymede_credentials_awaiting_revocation
//   - ganymede_bound_services, ganymede_orphaned_blobs
//   - ganymede_audit_entries, ganymede_audit_chain_valid
package telemetry
