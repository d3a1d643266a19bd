package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Format selects how command results are rendered.
type Format string

const (
	// FormatTable is aligned columnar output for humans (default).
	FormatTable Format = "table"
	// FormatJSON is indented JSON for scripts.
	FormatJSON Format = "json"
)

// ParseFormat validates an --output flag value. The empty string selects
// the table format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid output format %q: must be %q or %q", s, FormatTable, FormatJSON)
	}
}

// Tabler is implemented by result types that know their columnar shape.
// The same value marshals to JSON via its struct tags.
type Tabler interface {
	TableHeader() []string
	TableRows() [][]string
}

// Formatter renders command results.
type Formatter interface {
	Format(data any) ([]byte, error)
	FormatTo(w io.Writer, data any) error
}

// TableFormatter renders Tabler values as aligned columns. Values that do
// not implement Tabler are printed with %v as a last resort.
type TableFormatter struct{}

// Format renders data to a byte slice.
func (f *TableFormatter) Format(data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.FormatTo(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatTo writes data to w as an aligned table.
func (f *TableFormatter) FormatTo(w io.Writer, data any) error {
	t, ok := data.(Tabler)
	if !ok {
		_, err := fmt.Fprintf(w, "%v\n", data)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	if header := t.TableHeader(); len(header) > 0 {
		if _, err := fmt.Fprintln(tw, strings.Join(header, "\t")); err != nil {
			return err
		}
	}
	for _, row := range t.TableRows() {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// JSONFormatter renders results as indented JSON.
type JSONFormatter struct{}

// Format renders data to a byte slice.
func (f *JSONFormatter) Format(data any) ([]byte, error) {
	return json.MarshalIndent(data, "", "  ")
}

// FormatTo writes data to w as indented JSON.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// NewFormatter returns the formatter for the given format.
func NewFormatter(format Format) Formatter {
	if format == FormatJSON {
		return &JSONFormatter{}
	}
	return &TableFormatter{}
}
