package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"mercator-hq/ganymede/pkg/vault"
)

// maxLineSize bounds a single ledger line. Entries are small; the bound only
// protects the scanner from a corrupted file.
const maxLineSize = 1 << 20

// Ledger is the append-only hash-chained operation log. One JSON line per
// entry, each fsynced before the append is reported durable. The ledger file
// is the source of truth; the SQLite index is derived from it.
//
// Appends happen only while the caller holds the exclusive vault lock, which
// keeps the chain a total order. Verification and reads take no lock: they
// see a prefix of the chain, which always verifies.
type Ledger struct {
	path   string
	logger *slog.Logger

	// Chain tip, loaded lazily before the first append.
	tipLoaded bool
	lastSeq   uint64
	lastHash  string
}

// NewLedger returns a ledger over the given file path. The file is created
// on first append.
func NewLedger(path string) *Ledger {
	return &Ledger{
		path:   path,
		logger: slog.Default().With("component", "audit.ledger"),
	}
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// Append assigns the next sequence number, chains and fills in the digests,
// writes the canonical line, and fsyncs. Every failure is reported as an
// audit write error; callers treat that as fatal for their operation.
func (l *Ledger) Append(d Draft) (*Entry, error) {
	if err := d.validate(); err != nil {
		return nil, vault.NewAuditWriteError(err)
	}
	if err := l.loadTip(); err != nil {
		return nil, err
	}

	actor := d.Actor
	if actor == "" {
		actor = DetectActor()
	}
	entry := &Entry{
		Sequence:  l.lastSeq + 1,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor:     actor,
		Operation: d.Operation,
		Target:    d.Target,
		Outcome:   d.Outcome,
		Reason:    d.Reason,
		OpID:      d.OpID,
		Details:   d.Details,
		PrevHash:  l.lastHash,
	}
	hash, err := ComputeEntryHash(entry)
	if err != nil {
		return nil, vault.NewAuditWriteError(err)
	}
	entry.EntryHash = hash

	line, err := marshalEntryLine(entry)
	if err != nil {
		return nil, vault.NewAuditWriteError(err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, vault.NewAuditWriteError(err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return nil, vault.NewAuditWriteError(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, vault.NewAuditWriteError(err)
	}
	if err := f.Close(); err != nil {
		return nil, vault.NewAuditWriteError(err)
	}

	l.lastSeq = entry.Sequence
	l.lastHash = entry.EntryHash
	l.logger.Debug("audit entry appended",
		"sequence", entry.Sequence,
		"operation", entry.Operation,
		"outcome", entry.Outcome,
	)
	return entry, nil
}

// loadTip scans the ledger once to find the last sequence and digest. A
// ledger that cannot be parsed refuses further appends: extending a broken
// chain would destroy the evidence of where it broke.
func (l *Ledger) loadTip() error {
	if l.tipLoaded {
		return nil
	}
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.lastSeq = 0
			l.lastHash = GenesisHash
			l.tipLoaded = true
			return nil
		}
		return vault.NewAuditWriteError(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var last *Entry
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		entry, _, err := parseEntry(line)
		if err != nil {
			return vault.NewAuditWriteError(fmt.Errorf("ledger tip unreadable: %w", err))
		}
		last = entry
	}
	if err := scanner.Err(); err != nil {
		return vault.NewAuditWriteError(err)
	}
	if last == nil {
		l.lastSeq = 0
		l.lastHash = GenesisHash
	} else {
		l.lastSeq = last.Sequence
		l.lastHash = last.EntryHash
	}
	l.tipLoaded = true
	return nil
}

// Entries reads every ledger entry in order. No chain verification is
// performed; use Verify for that.
func (l *Ledger) Entries() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		entry, _, err := parseEntry(line)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d unreadable: %w", lineNo, err)
		}
		entries = append(entries, *entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return entries, nil
}

// parseEntry decodes one ledger line both into the entry struct and into the
// decoded-value form used for digest recomputation.
func parseEntry(line []byte) (*Entry, map[string]any, error) {
	v, err := decodeValue(line)
	if err != nil {
		return nil, nil, fmt.Errorf("entry does not parse: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("entry is not a JSON object")
	}
	var entry Entry
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entry); err != nil {
		return nil, nil, fmt.Errorf("entry has unexpected shape: %w", err)
	}
	return &entry, m, nil
}
