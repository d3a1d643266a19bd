package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// indexSchemaVersion is bumped when the index layout changes; a mismatched
// index is dropped and rebuilt from the ledger.
const indexSchemaVersion = 1

const indexSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	sequence   INTEGER PRIMARY KEY,
	timestamp  TEXT NOT NULL,
	actor      TEXT NOT NULL,
	operation  TEXT NOT NULL,
	target     TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	op_id      TEXT NOT NULL DEFAULT '',
	details    TEXT NOT NULL DEFAULT '{}',
	prev_hash  TEXT NOT NULL,
	entry_hash TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_entries(operation);
CREATE INDEX IF NOT EXISTS idx_audit_target    ON audit_entries(target);
CREATE INDEX IF NOT EXISTS idx_audit_outcome   ON audit_entries(outcome);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);

CREATE TABLE IF NOT EXISTS schema_info (
	version INTEGER NOT NULL
);
`

// Index is a SQLite mirror of the ledger used for filtered queries. It is
// derived data: the ledger stays the source of truth, and the index can be
// deleted and rebuilt at any time. The index is refreshed opportunistically
// before reads, never inside a mutating operation's critical path.
type Index struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenIndex opens or creates the index database at the given path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit index: %w", err)
	}
	ix := &Index{
		db:     db,
		path:   path,
		logger: slog.Default().With("component", "audit.index"),
	}
	if err := ix.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return ix, nil
}

func (ix *Index) initialize() error {
	if _, err := ix.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := ix.db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := ix.db.Exec(indexSchema); err != nil {
		return fmt.Errorf("failed to create index schema: %w", err)
	}

	var version int
	err := ix.db.QueryRow("SELECT version FROM schema_info LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := ix.db.Exec("INSERT INTO schema_info (version) VALUES (?)", indexSchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	case version != indexSchemaVersion:
		// Stale layout. Drop everything; the ledger rebuilds it.
		if _, err := ix.db.Exec("DELETE FROM audit_entries"); err != nil {
			return fmt.Errorf("failed to clear stale index: %w", err)
		}
		if _, err := ix.db.Exec("UPDATE schema_info SET version = ?", indexSchemaVersion); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
		ix.logger.Info("audit index layout changed, cleared for rebuild",
			"old_version", version,
			"new_version", indexSchemaVersion,
		)
	}

	if err := os.Chmod(ix.path, 0o600); err != nil {
		return fmt.Errorf("failed to set index mode: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Sync brings the index up to date with the ledger. New entries are appended
// incrementally; if the ledger and index have diverged (a shorter ledger or
// a mismatched digest at the index tip) the index is rebuilt from scratch.
// It returns the number of entries inserted.
func (ix *Index) Sync(l *Ledger) (int, error) {
	entries, err := l.Entries()
	if err != nil {
		return 0, err
	}

	var tipSeq uint64
	var tipHash string
	err = ix.db.QueryRow(
		"SELECT sequence, entry_hash FROM audit_entries ORDER BY sequence DESC LIMIT 1",
	).Scan(&tipSeq, &tipHash)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to read index tip: %w", err)
	}

	diverged := false
	if tipSeq > uint64(len(entries)) {
		diverged = true
	} else if tipSeq > 0 && entries[tipSeq-1].EntryHash != tipHash {
		diverged = true
	}
	if diverged {
		ix.logger.Warn("audit index diverged from ledger, rebuilding",
			"index_tip", tipSeq,
			"ledger_entries", len(entries),
		)
		if _, err := ix.db.Exec("DELETE FROM audit_entries"); err != nil {
			return 0, fmt.Errorf("failed to clear diverged index: %w", err)
		}
		tipSeq = 0
	}

	pending := entries[tipSeq:]
	if len(pending) == 0 {
		return 0, nil
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO audit_entries
			(sequence, timestamp, actor, operation, target, outcome, reason, op_id, details, prev_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare index insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range pending {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return 0, fmt.Errorf("failed to encode details for entry %d: %w", e.Sequence, err)
		}
		if _, err := stmt.Exec(
			e.Sequence, e.Timestamp, e.Actor, e.Operation, e.Target,
			string(e.Outcome), e.Reason, e.OpID, string(details), e.PrevHash, e.EntryHash,
		); err != nil {
			return 0, fmt.Errorf("failed to insert entry %d: %w", e.Sequence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit index transaction: %w", err)
	}

	ix.logger.Debug("audit index synced", "inserted", len(pending))
	return len(pending), nil
}

// Query filters index rows. Zero fields match everything.
type Query struct {
	// Operation filters by operation kind.
	Operation string

	// Target filters by target name.
	Target string

	// Outcome filters by attempted, succeeded, or failed.
	Outcome string

	// Actor filters by invoking identity.
	Actor string

	// OpID selects both phases of one operation.
	OpID string

	// Since and Until bound the entry timestamp, inclusive on both ends.
	Since time.Time
	Until time.Time

	// Limit caps the result count. Zero means no cap.
	Limit int
}

// Search returns the matching entries, most recent first.
func (ix *Index) Search(q Query) ([]Entry, error) {
	var where []string
	var args []any
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if q.Operation != "" {
		add("operation = ?", q.Operation)
	}
	if q.Target != "" {
		add("target = ?", q.Target)
	}
	if q.Outcome != "" {
		add("outcome = ?", q.Outcome)
	}
	if q.Actor != "" {
		add("actor = ?", q.Actor)
	}
	if q.OpID != "" {
		add("op_id = ?", q.OpID)
	}
	if !q.Since.IsZero() {
		add("timestamp >= ?", q.Since.UTC().Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		add("timestamp <= ?", q.Until.UTC().Format(time.RFC3339))
	}

	sqlStr := "SELECT sequence, timestamp, actor, operation, target, outcome, reason, op_id, details, prev_hash, entry_hash FROM audit_entries"
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}
	sqlStr += " ORDER BY sequence DESC"
	if q.Limit > 0 {
		sqlStr += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := ix.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("audit index query failed: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var outcome, details string
		if err := rows.Scan(
			&e.Sequence, &e.Timestamp, &e.Actor, &e.Operation, &e.Target,
			&outcome, &e.Reason, &e.OpID, &details, &e.PrevHash, &e.EntryHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		e.Outcome = Outcome(outcome)
		if details != "" && details != "{}" && details != "null" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details for entry %d: %w", e.Sequence, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit index iteration failed: %w", err)
	}
	return out, nil
}

// Count returns the number of indexed entries.
func (ix *Index) Count() (int64, error) {
	var n int64
	if err := ix.db.QueryRow("SELECT COUNT(*) FROM audit_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count index entries: %w", err)
	}
	return n, nil
}
