// Package migrate imports plaintext environment-style secrets into the
// vault.
//
// # Overview
//
// Migration reads a dotenv-style file, classifies each entry as secret-like
// or plain configuration, and hands the accepted candidates to the workflow
// orchestrator for the usual encrypt, store, and bind sequence. The
// classifier is a heuristic over key names and value shapes; false positives
// and negatives are expected, so it is an explicit, swappable predicate with
// per-entry include and exclude overrides rather than baked-in logic.
//
// Scanning is read-only and lock-free. Importing runs as one guarded,
// audited operation; its dry-run mode executes every step except the final
// commit and reports what would change.
package migrate
