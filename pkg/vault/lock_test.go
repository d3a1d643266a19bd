package vault

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestGuardAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "vault.lock")
	g := NewGuard(path, time.Second)

	if g.Held() {
		t.Fatal("new guard reports held")
	}
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !g.Held() {
		t.Fatal("guard does not report held after acquire")
	}
	if err := g.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if g.Held() {
		t.Fatal("guard reports held after release")
	}

	// Reacquire after release must work.
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("second release failed: %v", err)
	}
}

func TestGuardContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "vault.lock")

	holder := NewGuard(path, time.Second)
	if err := holder.Acquire(context.Background()); err != nil {
		t.Fatalf("holder acquire failed: %v", err)
	}
	defer holder.Release()

	contender := NewGuard(path, 300*time.Millisecond)
	start := time.Now()
	err := contender.Acquire(context.Background())
	if !HasCode(err, CodeLockContention) {
		t.Fatalf("expected lock contention, got %v", err)
	}
	if waited := time.Since(start); waited < 250*time.Millisecond {
		t.Errorf("contender gave up after %v, before the timeout", waited)
	}
	if contender.Held() {
		t.Error("contender reports held after contention failure")
	}
}

func TestGuardHandoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "vault.lock")

	holder := NewGuard(path, time.Second)
	if err := holder.Acquire(context.Background()); err != nil {
		t.Fatalf("holder acquire failed: %v", err)
	}

	// Release while a contender is polling; the contender must win the lock
	// before its timeout.
	go func() {
		time.Sleep(200 * time.Millisecond)
		holder.Release()
	}()

	contender := NewGuard(path, 2*time.Second)
	if err := contender.Acquire(context.Background()); err != nil {
		t.Fatalf("contender acquire failed after release: %v", err)
	}
	contender.Release()
}

func TestGuardContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "vault.lock")

	holder := NewGuard(path, time.Second)
	if err := holder.Acquire(context.Background()); err != nil {
		t.Fatalf("holder acquire failed: %v", err)
	}
	defer holder.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	contender := NewGuard(path, time.Minute)
	start := time.Now()
	err := contender.Acquire(ctx)
	if !HasCode(err, CodeLockContention) {
		t.Fatalf("expected lock contention on cancel, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not interrupt the wait")
	}
}

func TestGuardDoubleAcquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "vault.lock")
	g := NewGuard(path, time.Second)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer g.Release()

	if err := g.Acquire(context.Background()); err == nil {
		t.Fatal("double acquire on one guard should fail")
	}
}

func TestGuardReleaseWithoutAcquire(t *testing.T) {
	g := NewGuard(filepath.Join(t.TempDir(), "vault.lock"), time.Second)
	if err := g.Release(); err != nil {
		t.Fatalf("release without acquire should be a no-op, got %v", err)
	}
}
