package audit

import (
	"fmt"
	"os"
	"time"
)

// Outcome is the phase or result an entry records.
type Outcome string

const (
	// OutcomeAttempted is appended before any side effect of an operation.
	OutcomeAttempted Outcome = "attempted"

	// OutcomeSucceeded is the terminal entry of a committed operation.
	OutcomeSucceeded Outcome = "succeeded"

	// OutcomeFailed is the terminal entry of a rejected or rolled back
	// operation. Reason carries the failure classification.
	OutcomeFailed Outcome = "failed"
)

// Valid reports whether o is a recognized outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeAttempted || o == OutcomeSucceeded || o == OutcomeFailed
}

// GenesisHash is the prev_hash of the very first ledger entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one immutable ledger record. Entries are created only by
// Ledger.Append, which assigns the sequence number and the chained digests.
type Entry struct {
	// Sequence is the monotonic entry number, starting at 1.
	Sequence uint64 `json:"sequence"`

	// Timestamp is the append time in RFC 3339 UTC.
	Timestamp string `json:"timestamp"`

	// Actor identifies who invoked the operation.
	Actor string `json:"actor"`

	// Operation is the operation kind ("create", "rotate", ...).
	Operation string `json:"operation"`

	// Target is the credential or service the operation acts on.
	Target string `json:"target"`

	// Outcome is attempted, succeeded, or failed.
	Outcome Outcome `json:"outcome"`

	// Reason classifies a failure. Empty unless Outcome is failed.
	Reason string `json:"reason,omitempty"`

	// OpID correlates the attempted and terminal entries of one operation.
	OpID string `json:"op_id,omitempty"`

	// Details carries flat operation context (service, key_policy, ...).
	Details map[string]string `json:"details,omitempty"`

	// PrevHash is the previous entry's digest, or GenesisHash for the first.
	PrevHash string `json:"prev_hash"`

	// EntryHash is the SHA-256 hex digest of this entry's canonical
	// serialization with this field omitted.
	EntryHash string `json:"entry_hash"`
}

// Time parses the entry timestamp.
func (e *Entry) Time() (time.Time, error) {
	return time.Parse(time.RFC3339, e.Timestamp)
}

// Draft is the caller-supplied portion of an entry. Sequence, timestamp and
// digests are assigned at append time.
type Draft struct {
	// Actor identifies the invoker. Empty falls back to DetectActor.
	Actor string

	// Operation is the operation kind.
	Operation string

	// Target is the object acted on.
	Target string

	// Outcome is the phase being recorded.
	Outcome Outcome

	// Reason classifies a failure, for failed entries.
	Reason string

	// OpID correlates the two phases of one operation.
	OpID string

	// Details carries flat operation context.
	Details map[string]string
}

// validate rejects drafts that would produce an unverifiable entry.
func (d *Draft) validate() error {
	if d.Operation == "" {
		return fmt.Errorf("draft has no operation")
	}
	if !d.Outcome.Valid() {
		return fmt.Errorf("draft has invalid outcome %q", d.Outcome)
	}
	if d.Outcome != OutcomeFailed && d.Reason != "" {
		return fmt.Errorf("reason is only valid on failed entries")
	}
	return nil
}

// DetectActor resolves the invoking identity from the environment: the sudo
// caller when present, the login user otherwise, "unknown" as the last
// resort.
func DetectActor() string {
	if u := os.Getenv("SUDO_USER"); u != "" {
		return u + " (sudo)"
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
