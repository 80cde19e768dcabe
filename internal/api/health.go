package api

import (
	"context"
	"time"

	"github.com/vietddude/gramo/internal/infra/llm/budget"
	"github.com/vietddude/gramo/internal/infra/llm/provider"
)

// SystemStatus represents the overall health state of the service or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// lowBudgetRatio marks the limiter degraded when less than this share of the bucket is left.
const lowBudgetRatio = 0.1

// Checker is a dependency that can be pinged.
type Checker interface {
	Health(ctx context.Context) error
}

// BudgetReporter exposes the limiter state.
type BudgetReporter interface {
	Snapshot(ctx context.Context) (budget.Snapshot, error)
}

// UpstreamHealth contains health metrics for the language model provider.
type UpstreamHealth struct {
	Provider string                `json:"provider"`
	Status   SystemStatus          `json:"status"`
	Details  provider.HealthStatus `json:"details"`
}

// HealthReport contains the full service health report.
type HealthReport struct {
	SystemStatus SystemStatus      `json:"system_status"`
	Limiter      *budget.Snapshot  `json:"limiter,omitempty"`
	Upstream     *UpstreamHealth   `json:"upstream,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
	CheckedAt    time.Time         `json:"checked_at"`
}

// Monitor aggregates the health of the limiter, the upstream and storage.
type Monitor struct {
	limiter      BudgetReporter
	upstream     provider.Provider
	dependencies map[string]Checker
}

// NewMonitor creates a health monitor. Any argument may be nil.
func NewMonitor(limiter BudgetReporter, upstream provider.Provider, dependencies map[string]Checker) *Monitor {
	return &Monitor{limiter: limiter, upstream: upstream, dependencies: dependencies}
}

// CheckHealth builds a report; the worst component status wins.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	report := HealthReport{
		SystemStatus: StatusHealthy,
		Dependencies: make(map[string]string, len(m.dependencies)),
		CheckedAt:    time.Now(),
	}

	if m.limiter != nil {
		if snap, err := m.limiter.Snapshot(ctx); err == nil {
			report.Limiter = &snap
			if snap.AvailableTokens < float64(snap.Capacity)*lowBudgetRatio {
				report.SystemStatus = worse(report.SystemStatus, StatusDegraded)
			}
		}
	}

	if m.upstream != nil {
		h := m.upstream.GetHealth()
		status := StatusHealthy
		if h.MonitorStats != nil {
			switch h.MonitorStats.Status {
			case provider.StatusBlocked:
				status = StatusCritical
			case provider.StatusThrottled, provider.StatusDegraded:
				status = StatusDegraded
			}
		}
		if !h.Available {
			status = worse(status, StatusDegraded)
		}
		report.Upstream = &UpstreamHealth{Provider: m.upstream.GetName(), Status: status, Details: h}
		report.SystemStatus = worse(report.SystemStatus, status)
	}

	for name, dep := range m.dependencies {
		if err := dep.Health(ctx); err != nil {
			report.Dependencies[name] = err.Error()
			report.SystemStatus = worse(report.SystemStatus, StatusDegraded)
			continue
		}
		report.Dependencies[name] = "ok"
	}

	return report
}

func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
