package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/internal/exchange/paper"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	levels []string
}

func (n *recordingNotifier) SendAlert(level, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.levels = append(n.levels, level)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxConsecutiveFailures = 3
	cfg.RecoveryTimeout = 50 * time.Millisecond
	cfg.ProbeTimeout = time.Second
	return cfg
}

func newTestMonitor(t *testing.T, cfg Config, opts ...Option) *Monitor {
	t.Helper()
	m, err := NewMonitor(cfg, opts...)
	require.NoError(t, err)
	return m
}

func TestRegisterBrokerStartsUnknown(t *testing.T) {
	m := newTestMonitor(t, testConfig())
	m.RegisterBroker("paper", paper.New("paper", nil))

	h, ok := m.GetBrokerHealth("paper")
	require.True(t, ok)
	assert.Equal(t, StatusUnknown, h.Status)
	assert.False(t, h.CircuitOpen)

	summary := m.GetSummary()
	assert.Equal(t, 1, summary.TotalBrokers)
	assert.Equal(t, OverallUnhealthy, summary.OverallStatus)
}

func TestCheckUnregisteredBroker(t *testing.T) {
	m := newTestMonitor(t, testConfig())
	r := m.CheckBrokerHealth(context.Background(), "ghost")
	assert.Equal(t, StatusError, r.Status)
	assert.Contains(t, r.Error, "not registered")
	assert.True(t, m.ShouldPauseTrading("ghost"))
}

func TestCheckHealthyBroker(t *testing.T) {
	m := newTestMonitor(t, testConfig())
	m.RegisterBroker("paper", paper.New("paper", nil))

	r := m.CheckBrokerHealth(context.Background(), "paper")
	assert.Equal(t, StatusHealthy, r.Status)
	assert.NotNil(t, r.AccountInfo)
	assert.False(t, m.ShouldPauseTrading("paper"))

	summary := m.GetSummary()
	assert.Equal(t, OverallHealthy, summary.OverallStatus)
	assert.Equal(t, 1, summary.HealthyBrokers)
	assert.Equal(t, 1, summary.TotalHealthChecks)
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	var (
		mu        sync.Mutex
		downs     []string
		recovered []string
	)
	notifier := &recordingNotifier{}
	m := newTestMonitor(t, testConfig(),
		WithNotifier(notifier),
		WithCallbacks(Callbacks{
			OnBrokerDown: func(broker, reason string) {
				mu.Lock()
				defer mu.Unlock()
				downs = append(downs, broker+":"+reason)
			},
			OnBrokerRecovered: func(broker string) {
				mu.Lock()
				defer mu.Unlock()
				recovered = append(recovered, broker)
			},
		}),
	)

	broker := paper.New("paper", nil)
	broker.SetProbeError("maintenance")
	m.RegisterBroker("paper", broker)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		r := m.CheckBrokerHealth(ctx, "paper")
		assert.Equal(t, StatusError, r.Status, "check %d", i)
		assert.Equal(t, "maintenance", r.Error)
	}
	assert.Equal(t, 3, broker.Calls("GetAccountInfo"))

	h, _ := m.GetBrokerHealth("paper")
	assert.Equal(t, 3, h.ConsecutiveFailures)
	assert.Equal(t, 3, h.ErrorCount)
	assert.True(t, h.CircuitOpen)
	assert.False(t, h.RecoveryAt.IsZero())

	// Open circuit skips the probe entirely
	r := m.CheckBrokerHealth(ctx, "paper")
	assert.Equal(t, StatusCircuitOpen, r.Status)
	assert.False(t, r.RecoveryAt.IsZero())
	assert.Equal(t, 3, broker.Calls("GetAccountInfo"))
	assert.True(t, m.ShouldPauseTrading("paper"))

	mu.Lock()
	assert.Equal(t, []string{"paper:maintenance"}, downs, "down fires on the first failure only")
	mu.Unlock()

	alerts := m.GetRecentAlerts(10)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertError, alerts[0].Level)
	assert.Equal(t, AlertCritical, alerts[1].Level)

	time.Sleep(80 * time.Millisecond)
	broker.SetProbeError("")

	r = m.CheckBrokerHealth(ctx, "paper")
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, 4, broker.Calls("GetAccountInfo"))
	assert.False(t, m.ShouldPauseTrading("paper"))

	h, _ = m.GetBrokerHealth("paper")
	assert.Equal(t, 0, h.ConsecutiveFailures)
	assert.Equal(t, 3, h.ErrorCount)
	assert.False(t, h.CircuitOpen)

	mu.Lock()
	assert.Equal(t, []string{"paper"}, recovered)
	mu.Unlock()

	alerts = m.GetRecentAlerts(1)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertInfo, alerts[0].Level)

	notifier.mu.Lock()
	assert.Equal(t, []string{"error", "critical", "info"}, notifier.levels)
	notifier.mu.Unlock()
}

func TestFailedRecoveryProbeReopensCircuit(t *testing.T) {
	m := newTestMonitor(t, testConfig())
	broker := paper.New("paper", nil)
	broker.SetProbeError("down")
	m.RegisterBroker("paper", broker)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.CheckBrokerHealth(ctx, "paper")
	}
	time.Sleep(80 * time.Millisecond)

	r := m.CheckBrokerHealth(ctx, "paper")
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, 4, broker.Calls("GetAccountInfo"))

	r = m.CheckBrokerHealth(ctx, "paper")
	assert.Equal(t, StatusCircuitOpen, r.Status)
}

func TestProbePanicCountsAsFailure(t *testing.T) {
	m := newTestMonitor(t, testConfig())
	m.RegisterBroker("flaky", exchange.BrokerProbeFunc(func(ctx context.Context) exchange.AccountInfo {
		panic("boom")
	}))

	r := m.CheckBrokerHealth(context.Background(), "flaky")
	assert.Equal(t, StatusError, r.Status)
	assert.Contains(t, r.Error, "boom")
	assert.True(t, m.ShouldPauseTrading("flaky"))
}

func TestShouldPauseTrading(t *testing.T) {
	cfg := testConfig()
	cfg.SlowResponse = 20 * time.Millisecond
	m := newTestMonitor(t, cfg)

	m.RegisterBroker("fast", paper.New("fast", nil))
	slow := paper.New("slow", nil)
	slow.SetLatency(40 * time.Millisecond)
	m.RegisterBroker("slow", slow)
	failing := paper.New("failing", nil)
	failing.SetProbeError("rejected")
	m.RegisterBroker("failing", failing)

	results := m.CheckAll(context.Background())
	require.Len(t, results, 3)
	assert.Equal(t, StatusHealthy, results["slow"].Status)

	tests := []struct {
		broker string
		want   bool
	}{
		{"fast", false},
		{"slow", true},
		{"failing", true},
		{"unknown", true},
	}
	for _, tt := range tests {
		t.Run(tt.broker, func(t *testing.T) {
			assert.Equal(t, tt.want, m.ShouldPauseTrading(tt.broker))
		})
	}

	summary := m.GetSummary()
	assert.Equal(t, OverallDegraded, summary.OverallStatus)
	assert.Equal(t, 2, summary.HealthyBrokers)
	assert.Equal(t, 1, summary.UnhealthyBrokers)
}

func TestRecordExecution(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	cfg := testConfig()
	cfg.ExecutionHistorySize = 5
	m := newTestMonitor(t, cfg, WithClock(clock.Now))
	m.RegisterBroker("paper", paper.New("paper", nil))

	for i := 0; i < 6; i++ {
		m.RecordExecution("paper", "AAPL", true, time.Duration(i+1)*100*time.Millisecond, "")
	}
	clock.Advance(2 * time.Hour)
	m.RecordExecution("paper", "MSFT", false, 50*time.Millisecond, "rejected")

	all := m.GetExecutionStats("paper", 0)["paper"]
	assert.Equal(t, 5, all.Total, "ring keeps the newest records only")
	assert.Equal(t, 4, all.Success)
	assert.Equal(t, 1, all.Failed)
	assert.InDelta(t, 80.0, all.SuccessRate, 1e-9)
	assert.Equal(t, 50*time.Millisecond, all.MinExecutionTime)
	assert.Equal(t, 600*time.Millisecond, all.MaxExecutionTime)

	recent := m.GetExecutionStats("paper", time.Hour)["paper"]
	assert.Equal(t, 1, recent.Total)
	assert.Equal(t, 0.0, recent.SuccessRate)

	empty := m.GetExecutionStats("other", 0)["other"]
	assert.Equal(t, ExecutionStats{}, empty)

	alerts := m.GetRecentAlerts(0)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertWarning, alerts[0].Level)
	assert.Equal(t, "MSFT", alerts[0].Details["symbol"])
}

func TestAlertHistoryIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.AlertHistorySize = 3
	m := newTestMonitor(t, cfg)

	for i := 0; i < 5; i++ {
		m.RecordExecution("paper", "BTCUSDT", false, time.Millisecond, "timeout")
	}
	assert.Len(t, m.GetRecentAlerts(0), 3)
	assert.Len(t, m.GetRecentAlerts(2), 2)
	assert.Equal(t, 5, m.GetSummary().TotalAlerts)
}

func TestAlertCallbackPanicIsContained(t *testing.T) {
	m := newTestMonitor(t, testConfig(), WithCallbacks(Callbacks{
		OnAlert: func(a Alert) { panic("listener bug") },
	}))
	assert.NotPanics(t, func() {
		m.Alert(AlertInfo, "hello", nil)
	})
	assert.Len(t, m.GetRecentAlerts(0), 1)
}

func TestWatchdogStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	m := newTestMonitor(t, cfg)
	broker := paper.New("paper", nil)
	m.RegisterBroker("paper", broker)

	ctx := context.Background()
	m.Start(ctx)
	m.Start(ctx)
	assert.True(t, m.IsMonitoring())

	assert.Eventually(t, func() bool {
		return broker.Calls("GetAccountInfo") >= 2
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
	assert.False(t, m.IsMonitoring())

	h, _ := m.GetBrokerHealth("paper")
	assert.Equal(t, StatusHealthy, h.Status)
}

func TestWatchdogStopsWithContext(t *testing.T) {
	cfg := testConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	m := newTestMonitor(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	assert.Eventually(t, func() bool { return !m.IsMonitoring() }, time.Second, 5*time.Millisecond)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxConsecutiveFailures = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.CheckInterval = 0
	_, err := NewMonitor(cfg)
	assert.Error(t, err)
}

func TestAlertLevelRank(t *testing.T) {
	assert.Less(t, AlertInfo.Rank(), AlertWarning.Rank())
	assert.Less(t, AlertWarning.Rank(), AlertError.Rank())
	assert.Less(t, AlertError.Rank(), AlertCritical.Rank())
	assert.Equal(t, 0, AlertLevel("bogus").Rank())
}
