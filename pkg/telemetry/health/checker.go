package health

import (
	"context"
	"sync"
	"time"
)

// CheckFunc probes one component. A nil return means healthy; the error
// message is surfaced verbatim in the health response.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of a single component check.
type CheckResult struct {
	// Status is "ok" or "unhealthy".
	Status string `json:"status"`

	// Message carries the failure detail for unhealthy components.
	Message string `json:"message,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ms,omitempty"`
}

// HealthStatus aggregates every registered check.
type HealthStatus struct {
	// Status is "ok" when every component passed, "degraded" otherwise.
	Status string `json:"status"`

	// Checks holds per-component results, keyed by registered name.
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Timestamp is when the checks ran.
	Timestamp time.Time `json:"timestamp"`
}

// DefaultCheckTimeout bounds a single component check when New is given zero.
const DefaultCheckTimeout = 5 * time.Second

// Checker runs named component checks with a per-check timeout. The gateway
// registers a ledger ping at startup and serves the aggregate from /health.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc

	checkTimeout time.Duration
}

// New creates a Checker. A zero timeout selects DefaultCheckTimeout.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout == 0 {
		checkTimeout = DefaultCheckTimeout
	}

	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
	}
}

// RegisterCheck adds or replaces the check for a named component.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = check
}

// UnregisterCheck removes a component's check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.checks, name)
}

// CheckLiveness reports process liveness. It never consults component
// checks, so it stays cheap enough for tight probe intervals.
func (c *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
	}
}

// CheckReadiness runs every registered check concurrently and aggregates
// the results. A stuck component cannot hold up the others past the
// per-check timeout. With no checks registered the system counts as ready.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	fns := make([]CheckFunc, 0, len(c.checks))
	for name, fn := range c.checks {
		names = append(names, name)
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Status:    "ok",
		Checks:    make(map[string]CheckResult, len(names)),
		Timestamp: time.Now(),
	}

	type outcome struct {
		name   string
		result CheckResult
	}
	results := make(chan outcome, len(names))
	for i := range names {
		go func(name string, fn CheckFunc) {
			results <- outcome{name: name, result: c.runCheck(ctx, fn)}
		}(names[i], fns[i])
	}

	for range names {
		out := <-results
		status.Checks[out.name] = out.result
		if out.result.Status != "ok" {
			status.Status = "degraded"
		}
	}
	return status
}

// runCheck executes one check under the per-check timeout. The check runs
// in its own goroutine so a function that ignores its context still cannot
// block the caller.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return CheckResult{
				Status:   "unhealthy",
				Message:  err.Error(),
				Duration: time.Since(start),
			}
		}
		return CheckResult{
			Status:   "ok",
			Duration: time.Since(start),
		}

	case <-checkCtx.Done():
		return CheckResult{
			Status:   "unhealthy",
			Message:  "check timed out",
			Duration: time.Since(start),
		}
	}
}

// ListChecks returns the names of all registered checks.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	return names
}

// CheckCount returns the number of registered checks.
func (c *Checker) CheckCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.checks)
}
