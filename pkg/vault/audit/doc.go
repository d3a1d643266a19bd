// Package audit implements the append-only, hash-chained operation ledger.
//
// # Overview
//
// Every operation attempt and outcome is recorded as one JSON line in the
// ledger. Each entry carries a SHA-256 digest over its canonical
// serialization chained with the previous entry's digest, so any retroactive
// edit, reorder, or deletion breaks the chain at a verifiable point. The
// genesis entry chains to a fixed all-zero digest.
//
// Mutating operations log in two phases: an "attempted" entry before the
// first side effect and a terminal "succeeded" or "failed" entry after. An
// interrupted operation is therefore visible as an attempted entry with no
// terminal partner sharing its operation ID.
//
// Appends are fsynced before they are reported durable. A failed append is
// fatal for the enclosing operation: nothing is reported successful without
// its audit record.
//
// # Components
//
//   - Ledger: append and verify the hash chain (the source of truth)
//   - Index: derived SQLite mirror for filtered queries, rebuildable at will
//   - Exporters: JSON and CSV renderings of ledger entries
//   - Tailer: follow mode over the ledger file
package audit
