package monitoring

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/ducminhle1904/tradeguard/internal/health"
)

// HealthReporter is the part of the health monitor the server exposes
type HealthReporter interface {
	GetSummary() health.Summary
	GetRecentAlerts(limit int) []health.Alert
}

// HealthStatus is the liveness payload served on /healthz
type HealthStatus struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	Uptime           string    `json:"uptime"`
	TotalBrokers     int       `json:"total_brokers"`
	HealthyBrokers   int       `json:"healthy_brokers"`
	UnhealthyBrokers int       `json:"unhealthy_brokers"`
	OpenCircuits     []string  `json:"open_circuits,omitempty"`
}

// HealthChecker serves a compact liveness view of the broker monitor
type HealthChecker struct {
	source  HealthReporter
	started time.Time
}

func NewHealthChecker(source HealthReporter) *HealthChecker {
	return &HealthChecker{source: source, started: time.Now()}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	summary := h.source.GetSummary()

	status := HealthStatus{
		Status:           summary.OverallStatus,
		Timestamp:        time.Now(),
		Uptime:           time.Since(h.started).Round(time.Second).String(),
		TotalBrokers:     summary.TotalBrokers,
		HealthyBrokers:   summary.HealthyBrokers,
		UnhealthyBrokers: summary.UnhealthyBrokers,
	}
	for name, b := range summary.Brokers {
		if b.CircuitOpen {
			status.OpenCircuits = append(status.OpenCircuits, name)
		}
	}
	sort.Strings(status.OpenCircuits)

	code := http.StatusOK
	switch summary.OverallStatus {
	case health.OverallDegraded:
		code = http.StatusServiceUnavailable
	case health.OverallUnhealthy:
		code = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
