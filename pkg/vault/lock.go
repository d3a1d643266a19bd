package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultLockTimeout bounds how long a mutating operation waits for the
// exclusive vault lock before failing with lock contention.
const DefaultLockTimeout = 10 * time.Second

// lockRetryInterval is the poll interval while waiting for the lock.
const lockRetryInterval = 100 * time.Millisecond

// Guard serializes all mutating operations vault-wide with an exclusive
// advisory flock(2) on a dedicated lock file. Concurrent invocations are
// separate processes, so the lock must live in the kernel, not in memory.
//
// Acquisition blocks up to the configured timeout and then fails with a
// lock contention error, having performed no side effects. The lock is held
// until Release, which the caller runs only after the operation reached a
// terminal state.
type Guard struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger

	file *os.File
}

// NewGuard creates a guard for the given lock file path. A non-positive
// timeout falls back to DefaultLockTimeout.
func NewGuard(path string, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Guard{
		path:    path,
		timeout: timeout,
		logger:  slog.Default().With("component", "vault.lock"),
	}
}

// Acquire takes the exclusive lock, polling in non-blocking mode until the
// timeout or context expiry. On timeout it returns a lock contention error.
func (g *Guard) Acquire(ctx context.Context) error {
	if g.file != nil {
		return fmt.Errorf("lock already held on %s", g.path)
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0o700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(g.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	start := time.Now()
	deadline := start.Add(g.timeout)
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			g.file = f
			g.logger.Debug("vault lock acquired",
				"path", g.path,
				"wait_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
			f.Close()
			return fmt.Errorf("flock failed on %s: %w", g.path, err)
		}
		if time.Now().After(deadline) {
			f.Close()
			return NewLockContention(g.path, g.timeout)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return NewLockContention(g.path, g.timeout).WithDetail("cause", ctx.Err().Error())
		case <-time.After(lockRetryInterval):
		}
	}
}

// Release drops the lock. It is safe to call on a guard that never acquired.
func (g *Guard) Release() error {
	if g.file == nil {
		return nil
	}
	err := unix.Flock(int(g.file.Fd()), unix.LOCK_UN)
	closeErr := g.file.Close()
	g.file = nil
	if err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", g.path, err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close lock file %s: %w", g.path, closeErr)
	}
	g.logger.Debug("vault lock released", "path", g.path)
	return nil
}

// Held reports whether this guard currently holds the lock.
func (g *Guard) Held() bool {
	return g.file != nil
}
