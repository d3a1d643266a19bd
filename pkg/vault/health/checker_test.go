package health

import (
	"context"
	"testing"
	"time"
)

func TestRunAggregatesInRegistrationOrder(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("first", func(ctx context.Context) Result { return Pass("ok") })
	c.Register("second", func(ctx context.Context) Result { return Warn("advisory", "do something") })
	c.Register("third", func(ctx context.Context) Result { return Fail("broken", "fix it") })

	s := c.Run(context.Background())

	if len(s.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(s.Results))
	}
	for i, want := range []string{"first", "second", "third"} {
		if s.Results[i].Name != want {
			t.Errorf("result %d = %s, want %s", i, s.Results[i].Name, want)
		}
	}
	if s.Passed != 1 || s.Warned != 1 || s.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", s.Passed, s.Warned, s.Failed)
	}
	if s.Healthy() {
		t.Error("a failed check must make the summary unhealthy")
	}
}

func TestWarningsDoNotMakeUnhealthy(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("advisory", func(ctx context.Context) Result { return Warn("pending", "") })

	if s := c.Run(context.Background()); !s.Healthy() {
		t.Error("warnings alone should leave the vault healthy")
	}
}

func TestReplacingACheckKeepsItsPosition(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("a", func(ctx context.Context) Result { return Pass("") })
	c.Register("b", func(ctx context.Context) Result { return Pass("") })
	c.Register("a", func(ctx context.Context) Result { return Fail("replaced", "") })

	s := c.Run(context.Background())
	if len(s.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(s.Results))
	}
	if s.Results[0].Name != "a" || s.Results[0].Status != StatusFail {
		t.Errorf("replaced check = %+v", s.Results[0])
	}
}

func TestSlowCheckFailsOnTimeout(t *testing.T) {
	c := NewChecker(50 * time.Millisecond)
	c.Register("hung", func(ctx context.Context) Result {
		<-ctx.Done()
		time.Sleep(200 * time.Millisecond)
		return Pass("too late")
	})
	c.Register("after", func(ctx context.Context) Result { return Pass("still runs") })

	s := c.Run(context.Background())
	if s.Results[0].Status != StatusFail {
		t.Errorf("hung check status = %s, want fail", s.Results[0].Status)
	}
	if s.Results[1].Status != StatusPass {
		t.Error("a hung check must not stop the remaining checks")
	}
}
