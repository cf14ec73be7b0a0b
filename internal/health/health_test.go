package health

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockHealthCheck struct {
	name   string
	result ComponentHealth
}

func (m *MockHealthCheck) Name() string {
	return m.name
}

func (m *MockHealthCheck) Check(ctx context.Context) ComponentHealth {
	return m.result
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func mockCheck(name string, state HealthState) *MockHealthCheck {
	return &MockHealthCheck{name: name, result: ComponentHealth{Name: name, Status: state}}
}

func TestHealthChecker_RegisterCheck(t *testing.T) {
	hc := NewHealthChecker(0, quietLogger())
	assert.Equal(t, DefaultTimeout, hc.timeout)

	check := mockCheck("test_check", HealthStateHealthy)
	hc.RegisterCheck(check)

	assert.Contains(t, hc.checks, "test_check")
	assert.Equal(t, check, hc.checks["test_check"])
}

func TestHealthChecker_Run(t *testing.T) {
	tests := []struct {
		name     string
		states   map[string]HealthState
		expected HealthState
	}{
		{"no checks", nil, HealthStateUnknown},
		{"all healthy", map[string]HealthState{"a": HealthStateHealthy, "b": HealthStateHealthy}, HealthStateHealthy},
		{"warning", map[string]HealthState{"a": HealthStateHealthy, "b": HealthStateWarning}, HealthStateWarning},
		{"unhealthy wins", map[string]HealthState{"a": HealthStateWarning, "b": HealthStateUnhealthy, "c": HealthStateHealthy}, HealthStateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker(time.Second, quietLogger())
			for name, state := range tt.states {
				hc.RegisterCheck(mockCheck(name, state))
			}

			status := hc.Run(context.Background())

			assert.Equal(t, tt.expected, status.Overall)
			assert.Len(t, status.Components, len(tt.states))
			assert.False(t, status.Timestamp.IsZero())
		})
	}
}

func TestHealthStatus_Unhealthy(t *testing.T) {
	status := &HealthStatus{Components: map[string]ComponentHealth{
		"redis":             {Status: HealthStateUnhealthy},
		"metadata_database": {Status: HealthStateUnhealthy},
		"version_store":     {Status: HealthStateWarning},
	}}
	assert.Equal(t, []string{"metadata_database", "redis"}, status.Unhealthy())
}

func TestPingCheck(t *testing.T) {
	errNotPopulated := errors.New("no active version")

	tests := []struct {
		name     string
		check    *PingCheck
		expected HealthState
		message  string
	}{
		{
			name:     "healthy",
			check:    &PingCheck{Component: "redis", Ping: func(context.Context) error { return nil }},
			expected: HealthStateHealthy,
			message:  "redis is healthy",
		},
		{
			name:     "unreachable",
			check:    &PingCheck{Component: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }},
			expected: HealthStateUnhealthy,
			message:  "redis is unreachable",
		},
		{
			name: "slow",
			check: &PingCheck{
				Component:  "metadata_database",
				Ping:       func(context.Context) error { time.Sleep(5 * time.Millisecond); return nil },
				MaxLatency: time.Millisecond,
			},
			expected: HealthStateWarning,
			message:  "metadata_database is slow",
		},
		{
			name: "accepted error",
			check: &PingCheck{
				Component: "version_store",
				Ping:      func(context.Context) error { return errNotPopulated },
				Warn:      func(err error) bool { return errors.Is(err, errNotPopulated) },
			},
			expected: HealthStateWarning,
			message:  "version_store needs attention",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.check.Check(context.Background())
			assert.Equal(t, tt.check.Component, result.Name)
			assert.Equal(t, tt.expected, result.Status)
			assert.Equal(t, tt.message, result.Message)
			if tt.expected == HealthStateHealthy {
				assert.Empty(t, result.Error)
			}
		})
	}
}

func TestHealthChecker_RunRespectsTimeout(t *testing.T) {
	hc := NewHealthChecker(10*time.Millisecond, quietLogger())
	hc.RegisterCheck(&PingCheck{
		Component: "blocked",
		Ping: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	status := hc.Run(context.Background())
	require.Contains(t, status.Components, "blocked")
	assert.Equal(t, HealthStateUnhealthy, status.Overall)
	assert.Contains(t, status.Components["blocked"].Error, "deadline exceeded")
}
