package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"mercator-hq/ganymede/pkg/vault"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ReadSecret prompts for a secret on the terminal attached to in, with echo
// disabled, and asks for it twice to catch typos. The mismatched or partial
// entries are zeroed before returning an error.
func ReadSecret(in *os.File, out io.Writer, label string) ([]byte, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, vault.NewValidationError("standard input is not a terminal (use --stdin or --from-file)")
	}

	fmt.Fprintf(out, "%s: ", label)
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	fmt.Fprint(out, "Repeat to confirm: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		vault.Zero(first)
		return nil, fmt.Errorf("failed to read confirmation: %w", err)
	}

	if !bytes.Equal(first, second) {
		vault.Zero(first)
		vault.Zero(second)
		return nil, vault.NewValidationError("secret entries do not match")
	}
	vault.Zero(second)

	if len(first) == 0 {
		return nil, vault.NewValidationError("secret must not be empty")
	}
	return first, nil
}

// Confirm prints question with a [y/N] suffix and reads one line from r.
// Only "y" or "yes" (case-insensitive) confirms; EOF or an empty line
// declines.
func Confirm(r io.Reader, w io.Writer, question string) (bool, error) {
	fmt.Fprintf(w, "%s [y/N]: ", question)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
