package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds each check.
const DefaultTimeout = 5 * time.Second

// Manager runs registered checkers in parallel, each under its own timeout.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

// NewManager creates a manager with DefaultTimeout.
func NewManager() *Manager {
	return &Manager{timeout: DefaultTimeout}
}

// WithTimeout sets the per-check timeout.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return m
}

// AddChecker registers c. Nil checkers are ignored.
func (m *Manager) AddChecker(c Checker) {
	if c == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Check runs every checker and returns results keyed by checker name. A
// checker returning nil is reported unhealthy.
func (m *Manager) Check(ctx context.Context) map[string]*Result {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	timeout := m.timeout
	m.mu.RUnlock()

	results := make([]*Result, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			res := c.Check(cctx)
			if res == nil {
				res = Unhealthy("check returned no result")
			}
			if res.Latency == 0 {
				res.Latency = time.Since(start)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*Result, len(checkers))
	for i, c := range checkers {
		out[c.Name()] = results[i]
	}
	return out
}

// OverallStatus is unhealthy if any result is, else degraded if any result
// is, else healthy.
func OverallStatus(results map[string]*Result) Status {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// CheckNames lists registered checkers in registration order.
func (m *Manager) CheckNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.checkers))
	for i, c := range m.checkers {
		names[i] = c.Name()
	}
	return names
}
