package audit

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Tailer reads the end of the ledger and can follow it as entries are
// appended, in the manner of tail -f. It never writes.
type Tailer struct {
	path   string
	logger *slog.Logger
}

// NewTailer returns a tailer over the given ledger path.
func NewTailer(path string) *Tailer {
	return &Tailer{
		path:   path,
		logger: slog.Default().With("component", "audit.tail"),
	}
}

// Last returns the final n entries of the ledger in chronological order.
func (t *Tailer) Last(n int) ([]Entry, error) {
	entries, err := NewLedger(t.path).Entries()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Follow watches the ledger file and invokes fn for every entry appended
// after the call. It returns when the context is done or fn returns an
// error. The ledger's append-only discipline means the watcher only ever
// needs to read forward from its last offset; a shrinking file indicates
// tampering and stops the follow with an error.
func (t *Tailer) Follow(ctx context.Context, fn func(Entry) error) error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	// Start at the current end; Last covers the backlog.
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek ledger: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file so the watch survives the
	// file being recreated.
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		return fmt.Errorf("failed to watch ledger directory: %w", err)
	}

	t.logger.Debug("following ledger", "path", t.path, "offset", offset)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != t.path || event.Op&fsnotify.Write == 0 {
				continue
			}
			next, err := t.drain(f, offset, fn)
			if err != nil {
				return err
			}
			offset = next

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Error("watcher error while following ledger", "error", err)
		}
	}
}

// drain reads complete lines appended since offset and hands them to fn.
// A partial final line (a writer mid-append) is left for the next event.
func (t *Tailer) drain(f *os.File, offset int64, fn func(Entry) error) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return offset, fmt.Errorf("failed to stat ledger: %w", err)
	}
	if info.Size() < offset {
		return offset, fmt.Errorf("ledger shrank from %d to %d bytes; append-only discipline violated", offset, info.Size())
	}
	if info.Size() == offset {
		return offset, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("failed to seek ledger: %w", err)
	}
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			// Incomplete line; re-read it after the next write event.
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("failed to read ledger: %w", err)
		}
		offset += int64(len(line))
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		entry, _, err := parseEntry(line)
		if err != nil {
			return offset, fmt.Errorf("appended entry does not parse: %w", err)
		}
		if err := fn(*entry); err != nil {
			return offset, err
		}
	}
}
