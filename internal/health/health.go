// Package health runs dependency checks for the service's health endpoints.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Check represents a single dependency probe.
type Check interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Run(ctx context.Context) (map[string]string, error)
}

// Status describes the outcome of one check.
type Status struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Healthy bool              `json:"healthy"`
	Reason  string            `json:"reason,omitempty"`
	Error   string            `json:"error,omitempty"`
	Latency string            `json:"latency,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Report aggregates check statuses. Disabled checks never make it unhealthy.
type Report struct {
	Healthy bool     `json:"healthy"`
	Checks  []Status `json:"checks"`
}

type reasoner interface {
	Reason() string
}

// DisableByName marks the check with the provided name as disabled while
// keeping it in the list.
func DisableByName(checks []Check, name, reason string) {
	for _, check := range checks {
		if check.Name() == name {
			check.Disable(reason)
		}
	}
}

// Find returns the check with the given name.
func Find(checks []Check, name string) (Check, bool) {
	for _, check := range checks {
		if check.Name() == name {
			return check, true
		}
	}
	return nil, false
}

// Run executes the supplied checks sequentially, each bounded by timeout.
func Run(ctx context.Context, logger *zap.Logger, timeout time.Duration, checks ...Check) Report {
	if logger == nil {
		logger = zap.NewNop()
	}

	report := Report{Healthy: true, Checks: make([]Status, 0, len(checks))}
	for _, check := range checks {
		status := Status{Name: check.Name(), Enabled: check.IsEnabled()}
		if !check.IsEnabled() {
			if r, ok := check.(reasoner); ok {
				status.Reason = r.Reason()
			}
			report.Checks = append(report.Checks, status)
			continue
		}

		checkCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			checkCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		started := time.Now()
		details, err := check.Run(checkCtx)
		cancel()

		status.Latency = time.Since(started).String()
		status.Details = details
		status.Healthy = err == nil
		if err != nil {
			status.Error = err.Error()
			report.Healthy = false
			logger.Warn("health check failed", zap.String("check", check.Name()), zap.Error(err))
		}
		report.Checks = append(report.Checks, status)
	}

	return report
}
