package dropin

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ChangeKind classifies one line-level change.
type ChangeKind string

const (
	// LineAdded marks a line present only in the generated fragment.
	LineAdded ChangeKind = "+"

	// LineRemoved marks a line present only in the installed fragment.
	LineRemoved ChangeKind = "-"
)

// Change is one line-level difference between two fragments.
type Change struct {
	Kind ChangeKind
	Line string
}

// Diff compares a generated fragment against the installed one and returns,
// in order, the line-level changes that applying the generated fragment
// would make. An empty result means the installed fragment is current; a
// fragment diffed against its own render yields nothing.
func Diff(generated, installed string) []Change {
	if generated == installed {
		return nil
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(installed, generated)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var changes []Change
	for _, d := range diffs {
		var kind ChangeKind
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			kind = LineRemoved
		case diffmatchpatch.DiffInsert:
			kind = LineAdded
		default:
			continue
		}
		for _, line := range splitLines(d.Text) {
			changes = append(changes, Change{Kind: kind, Line: line})
		}
	}
	return changes
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// Format renders changes one per line in the conventional -/+ form.
func Format(changes []Change) string {
	var b strings.Builder
	for _, c := range changes {
		b.WriteString(string(c.Kind))
		b.WriteString(c.Line)
		b.WriteByte('\n')
	}
	return b.String()
}
