package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct {
	handler http.Handler
}

// NewMetricsHandler serves the metrics of gatherer, or the default registry when nil
func NewMetricsHandler(gatherer prometheus.Gatherer) *MetricsHandler {
	if gatherer == nil {
		return &MetricsHandler{handler: promhttp.Handler()}
	}
	return &MetricsHandler{handler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.handler.ServeHTTP(w, r)
}
