// Package health provides system health monitoring and status reporting.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/steward-app/steward/internal/docstore"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// CollectionHealth contains health metrics for one logical collection.
type CollectionHealth struct {
	Collection string       `json:"collection"`
	Status     SystemStatus `json:"status"`
	LatencyMs  int64        `json:"latency_ms"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus SystemStatus                `json:"system_status"`
	Collections  map[string]CollectionHealth `json:"collections"`
}

// Checker is anything that can perform a minimal diagnostic read.
// Accessors of any entity type satisfy it.
type Checker interface {
	HealthCheck(ctx context.Context) docstore.HealthStatus
}

// Monitor aggregates health status across collections.
type Monitor struct {
	checkers map[string]Checker

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a monitor over named collection checkers.
func NewMonitor(checkers map[string]Checker) *Monitor {
	return &Monitor{checkers: checkers}
}

// CheckHealth probes every collection. Results are cached briefly so
// the endpoint cannot hammer the store.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && len(m.lastReport.Collections) > 0 {
		return m.lastReport
	}

	report := Report{
		SystemStatus: StatusHealthy,
		Collections:  make(map[string]CollectionHealth, len(m.checkers)),
	}
	for name, checker := range m.checkers {
		status := checker.HealthCheck(ctx)
		ch := CollectionHealth{
			Collection: name,
			Status:     StatusHealthy,
			LatencyMs:  status.LatencyMs,
		}
		if status.Status != docstore.HealthOK {
			ch.Status = StatusCritical
			report.SystemStatus = StatusCritical
		}
		report.Collections[name] = ch
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
