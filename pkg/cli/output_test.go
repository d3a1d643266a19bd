package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

type credentialRow struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type credentialListing []credentialRow

func (l credentialListing) TableHeader() []string {
	return []string{"NAME", "STATUS"}
}

func (l credentialListing) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, c := range l {
		rows = append(rows, []string{c.Name, c.Status})
	}
	return rows
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "table", input: "table", want: FormatTable},
		{name: "json", input: "json", want: FormatJSON},
		{name: "unknown rejected", input: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFormat(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTableFormatter(t *testing.T) {
	formatter := &TableFormatter{}
	listing := credentialListing{
		{Name: "db_password", Status: "active"},
		{Name: "api_key", Status: "awaiting_revocation"},
	}

	buf := &bytes.Buffer{}
	if err := formatter.FormatTo(buf, listing); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "NAME") || !strings.Contains(lines[0], "STATUS") {
		t.Errorf("unexpected header line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "db_password") || !strings.Contains(lines[1], "active") {
		t.Errorf("unexpected first row %q", lines[1])
	}

	// Columns align: STATUS starts at the same offset in every line.
	offset := strings.Index(lines[1], "active")
	if strings.Index(lines[2], "awaiting_revocation") != offset {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestTableFormatterFallback(t *testing.T) {
	formatter := &TableFormatter{}

	output, err := formatter.Format("plain message")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if string(output) != "plain message\n" {
		t.Errorf("Format() = %q, want %q", string(output), "plain message\n")
	}
}

func TestJSONFormatter(t *testing.T) {
	formatter := &JSONFormatter{}
	listing := credentialListing{{Name: "db_password", Status: "active"}}

	buf := &bytes.Buffer{}
	if err := formatter.FormatTo(buf, listing); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	var decoded []map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("FormatTo() produced invalid JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0]["name"] != "db_password" {
		t.Errorf("unexpected JSON %s", buf.String())
	}
	if !strings.Contains(buf.String(), "  ") {
		t.Error("expected indented JSON")
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   string
	}{
		{name: "table formatter", format: FormatTable, want: "*cli.TableFormatter"},
		{name: "json formatter", format: FormatJSON, want: "*cli.JSONFormatter"},
		{name: "default to table", format: "", want: "*cli.TableFormatter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fmt.Sprintf("%T", NewFormatter(tt.format))
			if got != tt.want {
				t.Errorf("NewFormatter(%q) type = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}
