// Package health evaluates the operational state of a vault.
//
// A health run is read-only and lock-free: every check inspects the vault as
// it is, so diagnosis works even while another process holds the operation
// lock or the metadata document is damaged. Checks are tri-state. A fail
// means the vault cannot be trusted or used; a warn is an advisory the
// operator should act on eventually; a pass needs no attention.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is the verdict of one check.
type Status string

const (
	// StatusPass means the check found nothing to report.
	StatusPass Status = "pass"

	// StatusWarn is an advisory: the vault works, but the condition wants
	// operator attention.
	StatusWarn Status = "warn"

	// StatusFail means the vault is broken or untrustworthy in this aspect.
	StatusFail Status = "fail"
)

// Result is the outcome of one named check.
type Result struct {
	// Name identifies the check.
	Name string `json:"name"`

	// Status is the verdict.
	Status Status `json:"status"`

	// Message describes what was found, for warn and fail verdicts.
	Message string `json:"message,omitempty"`

	// Hint is the remediation, when one is known.
	Hint string `json:"hint,omitempty"`

	// DurationMS is how long the check ran.
	DurationMS int64 `json:"duration_ms"`
}

// CheckFunc performs one check. Name and duration are filled in by the
// runner; the function reports only the verdict.
type CheckFunc func(ctx context.Context) Result

// Pass is a passing result, with an optional message.
func Pass(message string) Result {
	return Result{Status: StatusPass, Message: message}
}

// Warn is an advisory result.
func Warn(message, hint string) Result {
	return Result{Status: StatusWarn, Message: message, Hint: hint}
}

// Fail is a failing result.
func Fail(message, hint string) Result {
	return Result{Status: StatusFail, Message: message, Hint: hint}
}

// DefaultCheckTimeout bounds one check. The oracle probe shells out to an
// external binary, which must not hang the whole evaluation.
const DefaultCheckTimeout = 5 * time.Second

// Checker runs named checks in registration order.
type Checker struct {
	mu      sync.Mutex
	names   []string
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewChecker creates a checker. A non-positive timeout falls back to
// DefaultCheckTimeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: timeout,
	}
}

// Register adds a named check. Registering an existing name replaces the
// check but keeps its position, so output order stays stable.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.checks[name]; !exists {
		c.names = append(c.names, name)
	}
	c.checks[name] = check
}

// Names returns the registered check names in run order.
func (c *Checker) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

// Summary aggregates one evaluation run.
type Summary struct {
	// Results holds every check outcome in registration order.
	Results []Result `json:"checks"`

	// Passed, Warned and Failed count the verdicts.
	Passed int `json:"passed"`
	Warned int `json:"warned"`
	Failed int `json:"failed"`

	// Timestamp is when the run finished, RFC 3339 UTC.
	Timestamp time.Time `json:"timestamp"`
}

// Healthy reports whether no check failed. Warnings do not make a vault
// unhealthy.
func (s *Summary) Healthy() bool { return s.Failed == 0 }

// Run executes every check in registration order and aggregates the
// verdicts. A check that overruns the timeout fails; the run continues with
// the remaining checks either way.
func (c *Checker) Run(ctx context.Context) *Summary {
	c.mu.Lock()
	names := append([]string(nil), c.names...)
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.Unlock()

	summary := &Summary{}
	for _, name := range names {
		result := c.runCheck(ctx, checks[name])
		result.Name = name
		summary.Results = append(summary.Results, result)
		switch result.Status {
		case StatusPass:
			summary.Passed++
		case StatusWarn:
			summary.Warned++
		case StatusFail:
			summary.Failed++
		}
	}
	summary.Timestamp = time.Now().UTC()
	return summary
}

// runCheck executes one check under the timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) Result {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		done <- check(checkCtx)
	}()

	select {
	case result := <-done:
		result.DurationMS = time.Since(start).Milliseconds()
		return result
	case <-checkCtx.Done():
		return Result{
			Status:     StatusFail,
			Message:    "check did not complete within " + c.timeout.String(),
			DurationMS: time.Since(start).Milliseconds(),
		}
	}
}
