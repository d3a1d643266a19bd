package cli

import (
	"testing"
	"time"
)

func TestSetupSignalHandler(t *testing.T) {
	ctx := SetupSignalHandler()

	if ctx.Done() == nil {
		t.Fatal("context should have a Done channel")
	}

	select {
	case <-ctx.Done():
		t.Error("context should not be cancelled initially")
	case <-time.After(10 * time.Millisecond):
		// Expected - no signal sent
	}
}
