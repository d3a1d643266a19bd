package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Exporter renders ledger entries to a writer in one format.
type Exporter interface {
	// Export writes the entries to w.
	Export(ctx context.Context, entries []Entry, w io.Writer) error

	// Format returns the format name ("json", "csv").
	Format() string
}

// NewExporter returns the exporter for the named format.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return &JSONExporter{Pretty: true}, nil
	case "csv":
		return &CSVExporter{IncludeHeader: true}, nil
	default:
		return nil, fmt.Errorf("unknown export format %q (want json or csv)", format)
	}
}

// JSONExporter writes entries as a JSON array.
type JSONExporter struct {
	// Pretty indents the output for human consumption.
	Pretty bool
}

// Format returns "json".
func (e *JSONExporter) Format() string { return "json" }

// Export writes the entries as one JSON document.
func (e *JSONExporter) Export(ctx context.Context, entries []Entry, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("json export failed: %w", err)
	}
	return nil
}

// CSVExporter writes entries as CSV rows. The details map is flattened to
// sorted key=value pairs in a single column.
type CSVExporter struct {
	// IncludeHeader emits a header row with column names.
	IncludeHeader bool
}

// Format returns "csv".
func (e *CSVExporter) Format() string { return "csv" }

// Export writes the entries as CSV.
func (e *CSVExporter) Export(ctx context.Context, entries []Entry, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		header := []string{
			"sequence", "timestamp", "actor", "operation", "target",
			"outcome", "reason", "op_id", "details", "prev_hash", "entry_hash",
		}
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("csv export failed: %w", err)
		}
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		row := []string{
			strconv.FormatUint(entry.Sequence, 10),
			entry.Timestamp,
			entry.Actor,
			entry.Operation,
			entry.Target,
			string(entry.Outcome),
			entry.Reason,
			entry.OpID,
			flattenDetails(entry.Details),
			entry.PrevHash,
			entry.EntryHash,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("csv export failed: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv export failed: %w", err)
	}
	return nil
}

func flattenDetails(details map[string]string) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+details[k])
	}
	return strings.Join(pairs, " ")
}
