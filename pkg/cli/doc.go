// Package cli holds the presentation-layer plumbing shared by every
// ganymede command: the mapping from vault error codes to process exit
// codes, table and JSON output formatting, interactive prompting with
// echo disabled, and signal-aware context setup.
//
// Commands render results through a Formatter selected by the --output
// flag. Result types implement Tabler for the human-readable table form
// and carry JSON struct tags for the machine-readable one, so a single
// value serves both formats.
//
// Exit codes are part of the tool's contract. ExitCode maps the vault
// error taxonomy onto them; anything outside the taxonomy exits 1.
package cli
