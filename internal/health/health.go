// Package health provides dependency health checks and the HTTP endpoints
// exposing them together with Prometheus metrics.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusCritical SystemStatus = "critical"
)

// Checker is a dependency that can report its health.
type Checker interface {
	Health(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Health(ctx context.Context) error { return f(ctx) }

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus      `json:"system_status"`
	Components   []ComponentHealth `json:"components"`
}

// Monitor runs registered checks on demand.
type Monitor struct {
	mu      sync.RWMutex
	checks  map[string]Checker
	timeout time.Duration
}

// NewMonitor creates a monitor. Each check gets at most timeout.
func NewMonitor(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Monitor{checks: make(map[string]Checker), timeout: timeout}
}

// Register adds a named check, replacing any previous one with that name.
func (m *Monitor) Register(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = c
}

// CheckHealth runs every check in name order.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	checks := make(map[string]Checker, len(m.checks))
	for k, v := range m.checks {
		checks[k] = v
	}
	m.mu.RUnlock()
	sort.Strings(names)

	report := HealthReport{SystemStatus: StatusHealthy, Components: make([]ComponentHealth, 0, len(names))}
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := checks[name].Health(cctx)
		cancel()

		ch := ComponentHealth{Name: name, Status: StatusHealthy}
		if err != nil {
			ch.Status = StatusCritical
			ch.Error = err.Error()
			report.SystemStatus = StatusCritical
		}
		report.Components = append(report.Components, ch)
	}
	return report
}
