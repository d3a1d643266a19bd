// Package logging owns structured logger setup for ganymede.
//
// The CLI calls Setup once at startup; every package then derives a
// component logger from the installed default:
//
//	logger := slog.Default().With("component", "vault.store")
//
// Three encodings are supported: json (machine consumption), text (logfmt
// style), and console (text without timestamps, for interactive runs).
// Output goes to stderr by default so command output on stdout stays
// parseable; a file path routes logs to an append-only 0600 file instead.
//
// Secret material never reaches a log line. Call sites log credential names
// and, where a value fragment is unavoidable, the masked form produced by
// vault.MaskSecret.
package logging
