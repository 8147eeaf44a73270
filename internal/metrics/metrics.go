package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tradeguard"

// Metrics holds the Prometheus collectors shared by the guard components.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Risk gate
	riskDecisions  *prometheus.CounterVec
	tradesRecorded *prometheus.CounterVec
	tradeValue     *prometheus.HistogramVec
	dailyPnL       prometheus.Gauge

	// Brackets
	bracketsActive  prometheus.Gauge
	bracketTriggers *prometheus.CounterVec
	trailingUpdates prometheus.Counter
	exitFailures    prometheus.Counter
	realizedPnL     *prometheus.HistogramVec

	// Broker health
	brokerUp      *prometheus.GaugeVec
	circuitOpen   *prometheus.GaugeVec
	probeLatency  *prometheus.HistogramVec
	executions    *prometheus.CounterVec
	executionTime *prometheus.HistogramVec
	alerts        *prometheus.CounterVec

	// Errors
	errorsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to keep them isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		riskDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_decisions_total",
				Help:      "Admission decisions by outcome and limit type",
			},
			[]string{"result", "limit_type"},
		),
		tradesRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_recorded_total",
				Help:      "Trades recorded by the risk gate",
			},
			[]string{"market", "side"},
		),
		tradeValue: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trade_value",
				Help:      "Distribution of recorded trade values",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
			[]string{"market"},
		),
		dailyPnL: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "daily_pnl",
				Help:      "Realized P&L for the current day",
			},
		),
		bracketsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "brackets_active",
				Help:      "Number of active bracket orders",
			},
		),
		bracketTriggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bracket_triggers_total",
				Help:      "Bracket triggers by reason",
			},
			[]string{"reason"},
		),
		trailingUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trailing_stop_updates_total",
				Help:      "Number of times a trailing stop was ratcheted",
			},
		),
		exitFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bracket_exit_failures_total",
				Help:      "Exit orders that failed after all retries",
			},
		),
		realizedPnL: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bracket_realized_pnl",
				Help:      "Realized P&L of closed brackets",
				Buckets:   []float64{-1000, -250, -100, -25, 0, 25, 100, 250, 1000},
			},
			[]string{"reason"},
		),
		brokerUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "broker_up",
				Help:      "1 when the last health probe succeeded",
			},
			[]string{"broker"},
		),
		circuitOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "broker_circuit_open",
				Help:      "1 while the broker circuit is open",
			},
			[]string{"broker"},
		),
		probeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "broker_probe_seconds",
				Help:      "Health probe latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"broker"},
		),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Order executions by broker and outcome",
			},
			[]string{"broker", "result"},
		),
		executionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_seconds",
				Help:      "Order execution latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"broker"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "health_alerts_total",
				Help:      "Health alerts by level",
			},
			[]string{"level"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"component", "category"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.riskDecisions, m.tradesRecorded, m.tradeValue, m.dailyPnL,
			m.bracketsActive, m.bracketTriggers, m.trailingUpdates, m.exitFailures, m.realizedPnL,
			m.brokerUp, m.circuitOpen, m.probeLatency, m.executions, m.executionTime, m.alerts,
			m.errorsTotal,
		)
	}
	return m
}

// RecordDecision counts a risk gate decision
func (m *Metrics) RecordDecision(allowed bool, limitType string) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
		limitType = "none"
	}
	m.riskDecisions.WithLabelValues(result, limitType).Inc()
}

// RecordTrade counts a recorded trade and its value
func (m *Metrics) RecordTrade(market, side string, value float64) {
	if m == nil {
		return
	}
	m.tradesRecorded.WithLabelValues(market, side).Inc()
	m.tradeValue.WithLabelValues(market).Observe(value)
}

// SetDailyPnL updates today's realized P&L
func (m *Metrics) SetDailyPnL(pnl float64) {
	if m == nil {
		return
	}
	m.dailyPnL.Set(pnl)
}

// SetActiveBrackets updates the active bracket gauge
func (m *Metrics) SetActiveBrackets(n int) {
	if m == nil {
		return
	}
	m.bracketsActive.Set(float64(n))
}

// RecordTrigger counts a bracket trigger and observes its P&L
func (m *Metrics) RecordTrigger(reason string, pnl float64) {
	if m == nil {
		return
	}
	m.bracketTriggers.WithLabelValues(reason).Inc()
	m.realizedPnL.WithLabelValues(reason).Observe(pnl)
}

// RecordTrailingUpdate counts a trailing stop adjustment
func (m *Metrics) RecordTrailingUpdate() {
	if m == nil {
		return
	}
	m.trailingUpdates.Inc()
}

// RecordExitFailure counts an exit order that could not be placed
func (m *Metrics) RecordExitFailure() {
	if m == nil {
		return
	}
	m.exitFailures.Inc()
}

// RecordProbe records the outcome and latency of a health probe
func (m *Metrics) RecordProbe(broker string, healthy bool, seconds float64) {
	if m == nil {
		return
	}
	up := 0.0
	if healthy {
		up = 1
	}
	m.brokerUp.WithLabelValues(broker).Set(up)
	m.probeLatency.WithLabelValues(broker).Observe(seconds)
}

// SetCircuitOpen flags a broker circuit as open or closed
func (m *Metrics) SetCircuitOpen(broker string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.circuitOpen.WithLabelValues(broker).Set(v)
}

// RecordExecution counts an order execution
func (m *Metrics) RecordExecution(broker string, success bool, seconds float64) {
	if m == nil {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	m.executions.WithLabelValues(broker, result).Inc()
	m.executionTime.WithLabelValues(broker).Observe(seconds)
}

// RecordAlert counts a health alert
func (m *Metrics) RecordAlert(level string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(level).Inc()
}

// RecordError counts an error by component and category
func (m *Metrics) RecordError(component, category string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(component, category).Inc()
}
