// Package metrics collects operation metrics and exports them in the
// Prometheus text exposition format.
//
// A short-lived CLI cannot serve a scrape endpoint, so export goes through
// the node-exporter textfile collector instead: after a sweep (and
// optionally after individual operations) the registry is flushed to
// <vault-root>/metrics.prom, which node_exporter picks up from its textfile
// directory via a symlink or a copy job.
//
// All Collector methods are nil-receiver safe. Components accept a
// *Collector and call it unconditionally; a disabled configuration simply
// wires nil.
package metrics
