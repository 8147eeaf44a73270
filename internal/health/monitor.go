package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	boterrors "github.com/ducminhle1904/tradeguard/internal/errors"
	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/internal/logger"
	"github.com/ducminhle1904/tradeguard/internal/metrics"
	"github.com/ducminhle1904/tradeguard/internal/notifications"
	"github.com/ducminhle1904/tradeguard/internal/safety"
)

// AlertLevel is the severity of a health alert
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertError    AlertLevel = "error"
	AlertCritical AlertLevel = "critical"
)

// Rank orders levels from info (0) to critical (3); unknown levels rank as info
func (l AlertLevel) Rank() int {
	switch l {
	case AlertWarning:
		return 1
	case AlertError:
		return 2
	case AlertCritical:
		return 3
	default:
		return 0
	}
}

// Status values reported for a broker
const (
	StatusUnknown     = "unknown"
	StatusHealthy     = "healthy"
	StatusError       = "error"
	StatusCircuitOpen = "circuit_open"
)

// Overall summary states
const (
	OverallHealthy   = "healthy"
	OverallDegraded  = "degraded"
	OverallUnhealthy = "unhealthy"
)

// Config holds health monitor settings
type Config struct {
	CheckInterval          time.Duration `json:"check_interval" yaml:"check_interval"`
	MaxConsecutiveFailures uint32        `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	RecoveryTimeout        time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`
	ProbeTimeout           time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
	PauseAfterFailures     int           `json:"pause_after_failures" yaml:"pause_after_failures"`
	SlowResponse           time.Duration `json:"slow_response" yaml:"slow_response"`
	AlertHistorySize       int           `json:"alert_history_size" yaml:"alert_history_size"`
	ExecutionHistorySize   int           `json:"execution_history_size" yaml:"execution_history_size"`
	StopTimeout            time.Duration `json:"stop_timeout" yaml:"stop_timeout"`
}

// DefaultConfig returns default health monitor settings
func DefaultConfig() Config {
	return Config{
		CheckInterval:          60 * time.Second,
		MaxConsecutiveFailures: 5,
		RecoveryTimeout:        5 * time.Minute,
		ProbeTimeout:           15 * time.Second,
		PauseAfterFailures:     3,
		SlowResponse:           10 * time.Second,
		AlertHistorySize:       100,
		ExecutionHistorySize:   1000,
		StopTimeout:            10 * time.Second,
	}
}

// Validate checks the settings
func (c Config) Validate() error {
	switch {
	case c.CheckInterval <= 0:
		return boterrors.NewConfigurationError("health", "validate", "check_interval must be positive")
	case c.MaxConsecutiveFailures == 0:
		return boterrors.NewConfigurationError("health", "validate", "max_consecutive_failures must be positive")
	case c.RecoveryTimeout <= 0:
		return boterrors.NewConfigurationError("health", "validate", "recovery_timeout must be positive")
	case c.PauseAfterFailures <= 0:
		return boterrors.NewConfigurationError("health", "validate", "pause_after_failures must be positive")
	case c.AlertHistorySize <= 0 || c.ExecutionHistorySize <= 0:
		return boterrors.NewConfigurationError("health", "validate", "history sizes must be positive")
	}
	return nil
}

// Alert is one entry of the alert history
type Alert struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     AlertLevel             `json:"level"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// BrokerHealth is the health record kept per registered broker
type BrokerHealth struct {
	Broker              string        `json:"broker"`
	Status              string        `json:"status"`
	LastCheck           time.Time     `json:"last_check,omitempty"`
	ResponseTime        time.Duration `json:"response_time"`
	ErrorCount          int           `json:"error_count"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastError           string        `json:"last_error,omitempty"`
	LastSuccess         time.Time     `json:"last_success,omitempty"`
	CircuitOpen         bool          `json:"circuit_breaker_open"`
	RecoveryAt          time.Time     `json:"recovery_at,omitempty"`
}

// CheckResult is the outcome of a single health check
type CheckResult struct {
	Broker       string               `json:"broker"`
	Status       string               `json:"status"`
	ResponseTime time.Duration        `json:"response_time"`
	Error        string               `json:"error,omitempty"`
	RecoveryAt   time.Time            `json:"recovery_at,omitempty"`
	AccountInfo  exchange.AccountInfo `json:"account_info,omitempty"`
}

// ExecutionRecord is one entry of a broker's execution ring
type ExecutionRecord struct {
	Timestamp     time.Time     `json:"timestamp"`
	Broker        string        `json:"broker"`
	Symbol        string        `json:"symbol"`
	Success       bool          `json:"success"`
	ExecutionTime time.Duration `json:"execution_time"`
	Error         string        `json:"error,omitempty"`
}

// ExecutionStats aggregates execution records over a window
type ExecutionStats struct {
	Total            int           `json:"total"`
	Success          int           `json:"success"`
	Failed           int           `json:"failed"`
	SuccessRate      float64       `json:"success_rate"` // percent
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	MinExecutionTime time.Duration `json:"min_execution_time"`
	MaxExecutionTime time.Duration `json:"max_execution_time"`
}

// Summary is the overall health report
type Summary struct {
	OverallStatus     string                    `json:"overall_status"`
	Brokers           map[string]BrokerHealth   `json:"brokers"`
	TotalBrokers      int                       `json:"total_brokers"`
	HealthyBrokers    int                       `json:"healthy_brokers"`
	UnhealthyBrokers  int                       `json:"unhealthy_brokers"`
	UptimeSeconds     float64                   `json:"uptime_seconds"`
	TotalHealthChecks int                       `json:"total_health_checks"`
	TotalAlerts       int                       `json:"total_alerts"`
	ExecutionStats    map[string]ExecutionStats `json:"execution_stats"`
}

// Callbacks fired by the monitor. They run outside the monitor lock.
type Callbacks struct {
	OnAlert           func(a Alert)
	OnBrokerDown      func(broker, reason string)
	OnBrokerRecovered func(broker string)
}

type brokerEntry struct {
	probe   exchange.BrokerProbe
	breaker *safety.CircuitBreaker
	health  BrokerHealth
}

// Monitor tracks broker liveness, execution quality and alerts, and runs a
// watchdog that probes every registered broker on a schedule
type Monitor struct {
	config    Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
	notifier  notifications.Notifier
	callbacks Callbacks
	breakers  *safety.CircuitBreakerManager
	now       func() time.Time
	startedAt time.Time

	mutex       sync.Mutex
	brokers     map[string]*brokerEntry
	executions  map[string][]ExecutionRecord
	alerts      []Alert
	totalChecks int
	totalAlerts int

	runMutex sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// Option configures a Monitor
type Option func(*Monitor)

// WithLogger sets the monitor logger
func WithLogger(l *logger.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

// WithNotifier forwards every alert to n
func WithNotifier(n notifications.Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithCallbacks sets alert and broker state callbacks
func WithCallbacks(c Callbacks) Option {
	return func(m *Monitor) { m.callbacks = c }
}

// WithCircuitBreakers shares a circuit breaker registry with other components
func WithCircuitBreakers(cbm *safety.CircuitBreakerManager) Option {
	return func(m *Monitor) { m.breakers = cbm }
}

// WithClock overrides time.Now for timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a health monitor
func NewMonitor(config Config, opts ...Option) (*Monitor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 10 * time.Second
	}

	m := &Monitor{
		config:     config,
		now:        time.Now,
		brokers:    make(map[string]*brokerEntry),
		executions: make(map[string][]ExecutionRecord),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Nop()
	}
	if m.breakers == nil {
		m.breakers = safety.NewCircuitBreakerManager()
	}
	m.startedAt = m.now()
	return m, nil
}

// RegisterBroker adds a broker to the monitor with status unknown.
// Registering an existing name replaces its probe and resets its record.
func (m *Monitor) RegisterBroker(name string, probe exchange.BrokerProbe) {
	breaker := m.breakers.GetOrCreate("broker:"+name, safety.CircuitBreakerConfig{
		FailureThreshold: m.config.MaxConsecutiveFailures,
		Timeout:          m.config.RecoveryTimeout,
		HalfOpenRequests: 1,
	})

	m.mutex.Lock()
	m.brokers[name] = &brokerEntry{
		probe:   probe,
		breaker: breaker,
		health:  BrokerHealth{Broker: name, Status: StatusUnknown},
	}
	m.mutex.Unlock()

	m.metrics.SetCircuitOpen(name, breaker.IsOpen())
	m.logger.Info("Registered broker %s for health monitoring", name)
}

// Brokers returns the registered broker names, sorted
func (m *Monitor) Brokers() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.brokerNamesLocked()
}

func (m *Monitor) brokerNamesLocked() []string {
	names := make([]string, 0, len(m.brokers))
	for name := range m.brokers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckBrokerHealth probes one broker. While its circuit is open the probe is
// skipped and the result status is circuit_open.
func (m *Monitor) CheckBrokerHealth(ctx context.Context, name string) CheckResult {
	m.mutex.Lock()
	entry, ok := m.brokers[name]
	m.mutex.Unlock()
	if !ok {
		return CheckResult{Broker: name, Status: StatusError, Error: fmt.Sprintf("broker %s not registered", name)}
	}

	wasOpen := entry.breaker.GetState() == safety.StateOpen

	var info exchange.AccountInfo
	var elapsed time.Duration
	probed := false
	err := entry.breaker.Call(func() error {
		probed = true
		var probeErr error
		info, elapsed, probeErr = m.runProbe(ctx, entry.probe)
		return probeErr
	})

	if !probed && errors.Is(err, safety.ErrCircuitOpen) {
		recoveryAt := entry.breaker.GetStats().OpenUntil
		m.metrics.SetCircuitOpen(name, true)
		return CheckResult{
			Broker:     name,
			Status:     StatusCircuitOpen,
			Error:      "circuit breaker open, broker temporarily disabled",
			RecoveryAt: recoveryAt,
		}
	}

	circuitOpen := entry.breaker.IsOpen()
	m.metrics.RecordProbe(name, err == nil, elapsed.Seconds())
	m.metrics.SetCircuitOpen(name, circuitOpen)

	if err == nil {
		return m.handleSuccess(name, entry, info, elapsed)
	}
	return m.handleFailure(name, entry, err.Error(), elapsed, circuitOpen && !wasOpen)
}

// runProbe calls the broker probe with a timeout. An "error" entry in the
// account info, a context expiry or a panic all count as failure.
func (m *Monitor) runProbe(ctx context.Context, probe exchange.BrokerProbe) (info exchange.AccountInfo, elapsed time.Duration, err error) {
	probeCtx := ctx
	if m.config.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, m.config.ProbeTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		elapsed = time.Since(start)
		if r := recover(); r != nil {
			info = nil
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()

	info = probe.GetAccountInfo(probeCtx)
	if msg, failed := info.Err(); failed {
		return info, 0, errors.New(msg)
	}
	if probeCtx.Err() != nil {
		return nil, 0, probeCtx.Err()
	}
	return info, 0, nil
}

func (m *Monitor) handleSuccess(name string, entry *brokerEntry, info exchange.AccountInfo, elapsed time.Duration) CheckResult {
	now := m.now()

	m.mutex.Lock()
	m.totalChecks++
	h := &entry.health
	wasDown := h.Status == StatusError
	h.Status = StatusHealthy
	h.ConsecutiveFailures = 0
	h.LastError = ""
	h.LastSuccess = now
	h.LastCheck = now
	h.ResponseTime = elapsed

	var pending []Alert
	if wasDown {
		pending = append(pending, m.addAlertLocked(AlertInfo, fmt.Sprintf("Broker %s recovered", name),
			map[string]interface{}{"broker": name}))
	}
	m.mutex.Unlock()

	if wasDown && m.callbacks.OnBrokerRecovered != nil {
		m.invoke("broker_recovered", func() { m.callbacks.OnBrokerRecovered(name) })
	}
	m.dispatch(pending)

	return CheckResult{Broker: name, Status: StatusHealthy, ResponseTime: elapsed, AccountInfo: info}
}

func (m *Monitor) handleFailure(name string, entry *brokerEntry, reason string, elapsed time.Duration, opened bool) CheckResult {
	now := m.now()

	m.mutex.Lock()
	m.totalChecks++
	h := &entry.health
	h.ErrorCount++
	h.ConsecutiveFailures++
	h.LastError = reason
	h.Status = StatusError
	h.LastCheck = now
	h.ResponseTime = elapsed
	firstFailure := h.ConsecutiveFailures == 1

	var pending []Alert
	if opened {
		stats := entry.breaker.GetStats()
		pending = append(pending, m.addAlertLocked(AlertCritical, fmt.Sprintf("Circuit breaker opened for %s", name),
			map[string]interface{}{"broker": name, "failures": stats.Failures, "recovery_at": stats.OpenUntil}))
	}
	if firstFailure {
		pending = append(pending, m.addAlertLocked(AlertError, fmt.Sprintf("Broker %s is down: %s", name, reason),
			map[string]interface{}{"broker": name, "error": reason}))
	}
	m.mutex.Unlock()

	if firstFailure && m.callbacks.OnBrokerDown != nil {
		m.invoke("broker_down", func() { m.callbacks.OnBrokerDown(name, reason) })
	}
	m.dispatch(pending)

	return CheckResult{Broker: name, Status: StatusError, ResponseTime: elapsed, Error: reason}
}

// CheckAll probes every registered broker concurrently
func (m *Monitor) CheckAll(ctx context.Context) map[string]CheckResult {
	names := m.Brokers()

	results := make(map[string]CheckResult, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			r := m.CheckBrokerHealth(ctx, name)
			mu.Lock()
			results[name] = r
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

// RecordExecution appends to the broker's execution ring. A failed execution raises a warning alert.
func (m *Monitor) RecordExecution(broker, symbol string, success bool, took time.Duration, errMsg string) {
	rec := ExecutionRecord{
		Timestamp:     m.now(),
		Broker:        broker,
		Symbol:        symbol,
		Success:       success,
		ExecutionTime: took,
		Error:         errMsg,
	}

	m.mutex.Lock()
	ring := append(m.executions[broker], rec)
	if limit := m.config.ExecutionHistorySize; len(ring) > limit {
		ring = append([]ExecutionRecord(nil), ring[len(ring)-limit:]...)
	}
	m.executions[broker] = ring

	var pending []Alert
	if !success {
		pending = append(pending, m.addAlertLocked(AlertWarning, fmt.Sprintf("Trade execution failed for %s", symbol),
			map[string]interface{}{"broker": broker, "symbol": symbol, "error": errMsg}))
	}
	m.mutex.Unlock()

	m.metrics.RecordExecution(broker, success, took.Seconds())
	m.dispatch(pending)
}

// GetExecutionStats aggregates execution records per broker. An empty broker
// means every registered broker; a zero window means all retained records.
func (m *Monitor) GetExecutionStats(broker string, window time.Duration) map[string]ExecutionStats {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.executionStatsLocked(broker, window)
}

func (m *Monitor) executionStatsLocked(broker string, window time.Duration) map[string]ExecutionStats {
	names := []string{broker}
	if broker == "" {
		names = m.brokerNamesLocked()
	}

	var cutoff time.Time
	if window > 0 {
		cutoff = m.now().Add(-window)
	}

	out := make(map[string]ExecutionStats, len(names))
	for _, name := range names {
		var s ExecutionStats
		var total time.Duration
		for _, r := range m.executions[name] {
			if !cutoff.IsZero() && r.Timestamp.Before(cutoff) {
				continue
			}
			if s.Total == 0 || r.ExecutionTime < s.MinExecutionTime {
				s.MinExecutionTime = r.ExecutionTime
			}
			if r.ExecutionTime > s.MaxExecutionTime {
				s.MaxExecutionTime = r.ExecutionTime
			}
			s.Total++
			total += r.ExecutionTime
			if r.Success {
				s.Success++
			}
		}
		if s.Total > 0 {
			s.Failed = s.Total - s.Success
			s.SuccessRate = float64(s.Success) / float64(s.Total) * 100
			s.AvgExecutionTime = total / time.Duration(s.Total)
		}
		out[name] = s
	}
	return out
}

// ExecutionHistory returns every retained execution record, oldest first
func (m *Monitor) ExecutionHistory() []ExecutionRecord {
	m.mutex.Lock()
	var out []ExecutionRecord
	for _, ring := range m.executions {
		out = append(out, ring...)
	}
	m.mutex.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// RestoreExecutions replaces the execution rings with persisted records
func (m *Monitor) RestoreExecutions(records []ExecutionRecord) {
	rings := make(map[string][]ExecutionRecord)
	for _, r := range records {
		rings[r.Broker] = append(rings[r.Broker], r)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	for broker, ring := range rings {
		sort.SliceStable(ring, func(i, j int) bool { return ring[i].Timestamp.Before(ring[j].Timestamp) })
		if limit := m.config.ExecutionHistorySize; len(ring) > limit {
			ring = ring[len(ring)-limit:]
		}
		m.executions[broker] = ring
	}
}

// GetBrokerHealth returns the health record of one broker
func (m *Monitor) GetBrokerHealth(name string) (BrokerHealth, bool) {
	m.mutex.Lock()
	entry, ok := m.brokers[name]
	if !ok {
		m.mutex.Unlock()
		return BrokerHealth{}, false
	}
	h := entry.health
	m.mutex.Unlock()

	stats := entry.breaker.GetStats()
	h.CircuitOpen = stats.Open
	h.RecoveryAt = stats.OpenUntil
	return h, true
}

// GetSummary reports every broker and the overall status: healthy when all
// brokers are healthy, unhealthy when none are, degraded otherwise
func (m *Monitor) GetSummary() Summary {
	m.mutex.Lock()
	entries := make(map[string]*brokerEntry, len(m.brokers))
	healths := make(map[string]BrokerHealth, len(m.brokers))
	for name, e := range m.brokers {
		entries[name] = e
		healths[name] = e.health
	}
	s := Summary{
		OverallStatus:     OverallHealthy,
		Brokers:           make(map[string]BrokerHealth, len(entries)),
		TotalBrokers:      len(entries),
		UptimeSeconds:     m.now().Sub(m.startedAt).Seconds(),
		TotalHealthChecks: m.totalChecks,
		TotalAlerts:       m.totalAlerts,
		ExecutionStats:    m.executionStatsLocked("", 24*time.Hour),
	}
	m.mutex.Unlock()

	for name, e := range entries {
		h := healths[name]
		stats := e.breaker.GetStats()
		h.CircuitOpen = stats.Open
		h.RecoveryAt = stats.OpenUntil
		s.Brokers[name] = h
		if h.Status == StatusHealthy {
			s.HealthyBrokers++
		} else {
			s.UnhealthyBrokers++
		}
	}

	if s.UnhealthyBrokers > 0 {
		s.OverallStatus = OverallDegraded
	}
	if s.TotalBrokers > 0 && s.UnhealthyBrokers == s.TotalBrokers {
		s.OverallStatus = OverallUnhealthy
	}
	return s
}

// GetRecentAlerts returns up to limit of the newest alerts, oldest first
func (m *Monitor) GetRecentAlerts(limit int) []Alert {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	start := 0
	if limit > 0 && len(m.alerts) > limit {
		start = len(m.alerts) - limit
	}
	return append([]Alert(nil), m.alerts[start:]...)
}

// ShouldPauseTrading reports whether new orders to broker should be held back:
// unknown broker, open circuit, failing status, repeated failures or slow responses
func (m *Monitor) ShouldPauseTrading(broker string) bool {
	m.mutex.Lock()
	entry, ok := m.brokers[broker]
	if !ok {
		m.mutex.Unlock()
		return true
	}
	h := entry.health
	m.mutex.Unlock()

	if entry.breaker.IsOpen() {
		return true
	}
	if h.Status == StatusError {
		return true
	}
	if h.ConsecutiveFailures >= m.config.PauseAfterFailures {
		return true
	}
	if m.config.SlowResponse > 0 && h.ResponseTime > m.config.SlowResponse {
		return true
	}
	return false
}

// Alert records a custom alert and forwards it like the monitor's own
func (m *Monitor) Alert(level AlertLevel, message string, details map[string]interface{}) {
	m.mutex.Lock()
	a := m.addAlertLocked(level, message, details)
	m.mutex.Unlock()
	m.dispatch([]Alert{a})
}

func (m *Monitor) addAlertLocked(level AlertLevel, message string, details map[string]interface{}) Alert {
	a := Alert{Timestamp: m.now(), Level: level, Message: message, Details: details}
	m.alerts = append(m.alerts, a)
	m.totalAlerts++
	if limit := m.config.AlertHistorySize; len(m.alerts) > limit {
		m.alerts = append([]Alert(nil), m.alerts[len(m.alerts)-limit:]...)
	}
	return a
}

// dispatch logs and forwards alerts that were recorded under the lock
func (m *Monitor) dispatch(alerts []Alert) {
	for _, a := range alerts {
		switch a.Level {
		case AlertCritical:
			m.logger.Critical("[CRITICAL] %s", a.Message)
		case AlertError:
			m.logger.Error("[ERROR] %s", a.Message)
		case AlertWarning:
			m.logger.Warning("[WARNING] %s", a.Message)
		default:
			m.logger.Info("[INFO] %s", a.Message)
		}
		m.metrics.RecordAlert(string(a.Level))

		if m.callbacks.OnAlert != nil {
			alert := a
			m.invoke("alert", func() { m.callbacks.OnAlert(alert) })
		}
		if m.notifier != nil {
			if err := m.notifier.SendAlert(string(a.Level), a.Message); err != nil {
				m.logger.LogWarning("health", "failed to forward alert: %v", err)
			}
		}
	}
}

func (m *Monitor) invoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Health callback %s panicked: %v", name, r)
		}
	}()
	fn()
}

// Start launches the watchdog. It checks every broker immediately and then
// every CheckInterval. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})

	go m.watchdogLoop(ctx, m.stopChan, m.done)
	m.logger.Info("Health monitoring watchdog started (interval %s)", m.config.CheckInterval)
}

// Stop signals the watchdog and waits up to StopTimeout for it to exit
func (m *Monitor) Stop() {
	m.runMutex.Lock()
	if !m.running {
		m.runMutex.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	done := m.done
	m.runMutex.Unlock()

	select {
	case <-done:
		m.logger.Info("Health monitoring watchdog stopped")
	case <-time.After(m.config.StopTimeout):
		m.logger.Warning("Health watchdog did not stop within %s", m.config.StopTimeout)
	}
}

// IsMonitoring reports whether the watchdog is running
func (m *Monitor) IsMonitoring() bool {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()
	return m.running
}

func (m *Monitor) watchdogLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	m.watchdogCycle(ctx)
	for {
		select {
		case <-ticker.C:
			m.watchdogCycle(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			m.runMutex.Lock()
			m.running = false
			m.runMutex.Unlock()
			return
		}
	}
}

func (m *Monitor) watchdogCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.Alert(AlertError, fmt.Sprintf("Watchdog error: %v", r), map[string]interface{}{"error": fmt.Sprint(r)})
		}
	}()
	m.CheckAll(ctx)
}
