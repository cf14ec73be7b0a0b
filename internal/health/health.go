// Package health runs component checks against the stores and caches the engine uses.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a whole round of checks.
const DefaultTimeout = 10 * time.Second

type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateUnhealthy HealthState = "unhealthy"
	HealthStateWarning   HealthState = "warning"
	HealthStateUnknown   HealthState = "unknown"
)

// HealthCheck probes one component.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) ComponentHealth
}

type ComponentHealth struct {
	Name     string        `json:"name"`
	Status   HealthState   `json:"status"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type HealthStatus struct {
	Overall    HealthState                `json:"overall"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// Unhealthy lists the names of failing components in order.
func (s *HealthStatus) Unhealthy() []string {
	var names []string
	for name, c := range s.Components {
		if c.Status == HealthStateUnhealthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

type HealthChecker struct {
	timeout time.Duration
	logger  *logrus.Logger
	checks  map[string]HealthCheck
	mutex   sync.RWMutex
}

func NewHealthChecker(timeout time.Duration, logger *logrus.Logger) *HealthChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HealthChecker{
		timeout: timeout,
		logger:  logger,
		checks:  make(map[string]HealthCheck),
	}
}

func (h *HealthChecker) RegisterCheck(check HealthCheck) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checks[check.Name()] = check
}

// Run executes every registered check in parallel and derives the overall state:
// any unhealthy component makes the engine unhealthy, otherwise any warning makes it
// a warning.
func (h *HealthChecker) Run(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mutex.RLock()
	checks := make([]HealthCheck, 0, len(h.checks))
	for _, c := range h.checks {
		checks = append(checks, c)
	}
	h.mutex.RUnlock()

	results := make(chan ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(c HealthCheck) {
			defer wg.Done()
			results <- c.Check(ctx)
		}(check)
	}
	wg.Wait()
	close(results)

	status := &HealthStatus{
		Overall:    HealthStateHealthy,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth, len(checks)),
	}
	for result := range results {
		status.Components[result.Name] = result
		switch {
		case result.Status == HealthStateUnhealthy:
			status.Overall = HealthStateUnhealthy
		case result.Status == HealthStateWarning && status.Overall == HealthStateHealthy:
			status.Overall = HealthStateWarning
		}
	}
	if len(checks) == 0 {
		status.Overall = HealthStateUnknown
	}

	if status.Overall != HealthStateHealthy {
		h.logger.WithFields(logrus.Fields{
			"overall_status":       status.Overall,
			"unhealthy_components": status.Unhealthy(),
		}).Warn("Health check completed with issues")
	} else {
		h.logger.Debug("Health check completed successfully")
	}
	return status
}

// PingCheck reports a component unhealthy when its ping fails and a warning when the
// ping is slower than MaxLatency. Errors accepted by Warn, such as a reachable store
// that is not yet populated, only raise a warning.
type PingCheck struct {
	Component  string
	Ping       func(ctx context.Context) error
	MaxLatency time.Duration
	Warn       func(error) bool
}

func (p *PingCheck) Name() string {
	return p.Component
}

func (p *PingCheck) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := p.Ping(ctx)
	result := ComponentHealth{Name: p.Component, Duration: time.Since(start)}

	switch {
	case err != nil && p.Warn != nil && p.Warn(err):
		result.Status = HealthStateWarning
		result.Message = p.Component + " needs attention"
		result.Error = err.Error()
	case err != nil:
		result.Status = HealthStateUnhealthy
		result.Message = p.Component + " is unreachable"
		result.Error = err.Error()
	case p.MaxLatency > 0 && result.Duration > p.MaxLatency:
		result.Status = HealthStateWarning
		result.Message = p.Component + " is slow"
	default:
		result.Status = HealthStateHealthy
		result.Message = p.Component + " is healthy"
	}
	return result
}
