package audit

import (
	"context"
	"testing"
	"time"
)

func TestTailerLast(t *testing.T) {
	l := testLedger(t)
	for i := 0; i < 5; i++ {
		mustAppend(t, l, Draft{Operation: "create", Target: "a", Outcome: OutcomeAttempted})
	}

	tailer := NewTailer(l.Path())
	entries, err := tailer.Last(2)
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Sequence != 4 || entries[1].Sequence != 5 {
		t.Errorf("got sequences %d,%d, want 4,5", entries[0].Sequence, entries[1].Sequence)
	}

	// Zero means everything.
	entries, err = tailer.Last(0)
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("expected 5 entries, got %d", len(entries))
	}
}

func TestTailerFollowSeesAppends(t *testing.T) {
	l := testLedger(t)
	mustAppend(t, l, Draft{Operation: "create", Target: "a", Outcome: OutcomeAttempted})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make(chan Entry, 4)
	done := make(chan error, 1)
	go func() {
		done <- NewTailer(l.Path()).Follow(ctx, func(e Entry) error {
			got <- e
			return nil
		})
	}()

	// Give the watcher a moment to install before appending.
	time.Sleep(200 * time.Millisecond)
	appended := mustAppend(t, l, Draft{Operation: "rotate", Target: "a", Outcome: OutcomeAttempted})

	select {
	case e := <-got:
		if e.Sequence != appended.Sequence {
			t.Errorf("followed entry sequence = %d, want %d", e.Sequence, appended.Sequence)
		}
		if e.Operation != "rotate" {
			t.Errorf("followed entry operation = %q, want rotate", e.Operation)
		}
	case <-ctx.Done():
		t.Fatal("follow never delivered the appended entry")
	}

	cancel()
	if err := <-done; err != context.Canceled && err != context.DeadlineExceeded {
		t.Errorf("Follow returned %v, want a context error", err)
	}
}
