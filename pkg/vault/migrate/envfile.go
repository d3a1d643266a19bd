package migrate

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Entry is one key/value pair read from an environment file.
type Entry struct {
	// Key is the variable name as written in the file.
	Key string

	// Value is the unquoted value. Treat as secret material until
	// classified otherwise.
	Value string

	// Line is the 1-based line number, for error messages.
	Line int
}

// maxEnvFileSize bounds the source file. Environment files are small; the
// bound catches a mistakenly supplied binary or log file before its content
// ends up in error output.
const maxEnvFileSize = 1 << 20

// ParseEnvFile reads a dotenv-style file: one KEY=VALUE per line, blank
// lines and #-comments skipped, an optional "export " prefix tolerated, and
// surrounding single or double quotes stripped from values. Duplicate keys
// are an error; a file that assigns the same variable twice is ambiguous
// about which value the service actually sees.
func ParseEnvFile(path string) ([]Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment file: %w", err)
	}
	if info.Size() > maxEnvFileSize {
		return nil, fmt.Errorf("environment file %s exceeds %d bytes", path, maxEnvFileSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment file: %w", err)
	}
	defer f.Close()

	var entries []Entry
	seen := map[string]int{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEnvFileSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%s:%d: line is not KEY=VALUE", path, lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("%s:%d: empty key", path, lineNo)
		}
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%s:%d: key %s already assigned at line %d", path, lineNo, key, prev)
		}
		seen[key] = lineNo

		entries = append(entries, Entry{
			Key:   key,
			Value: unquote(strings.TrimSpace(value)),
			Line:  lineNo,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read environment file: %w", err)
	}
	return entries, nil
}

// unquote strips one level of matching single or double quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// CredentialName derives the vault credential name for an environment key:
// lowercased, which also keeps the name within the allowed pattern for any
// valid shell variable name.
func CredentialName(key string) string {
	return strings.ToLower(key)
}

// ExposureVar derives the exposure environment variable for an imported
// entry. The service receives <KEY>_FILE pointing at the materialized
// credential path rather than the original in-line value.
func ExposureVar(key string) string {
	return strings.ToUpper(key) + "_FILE"
}
