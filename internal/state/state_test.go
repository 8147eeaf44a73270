package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradeguard/internal/bracket"
	"github.com/ducminhle1904/tradeguard/internal/health"
	"github.com/ducminhle1904/tradeguard/internal/risk"
	"github.com/ducminhle1904/tradeguard/pkg/types"
)

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "risk:state")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "risk:state", []byte(`{"v":1}`)))
	require.NoError(t, s.Set(ctx, "risk:state", []byte(`{"v":2}`)))

	data, ok, err := s.Get(ctx, "risk:state")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(data))

	backup, err := os.ReadFile(filepath.Join(dir, "risk_state_backup.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(backup))

	_, err = os.Stat(filepath.Join(dir, "risk_state.json.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")
}

func TestFileStoreHonoursContext(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Set(ctx, "k", []byte("v")))
	_, _, err = s.Get(ctx, "k")
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStoreFromClient(db, "tg:", 0)
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("tg:risk:state").SetVal(`{"v":1}`)
		data, ok, err := s.Get(ctx, "risk:state")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"v":1}`, string(data))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("tg:missing").RedisNil()
		data, ok, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, data)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error", func(t *testing.T) {
		mock.ExpectGet("tg:broken").SetErr(errors.New("connection refused"))
		_, _, err := s.Get(ctx, "broken")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set", func(t *testing.T) {
		mock.ExpectSet("tg:brackets:active", []byte(`[]`), 0).SetVal("OK")
		require.NoError(t, s.Set(ctx, "brackets:active", []byte(`[]`)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set error", func(t *testing.T) {
		mock.ExpectSet("tg:brackets:active", []byte(`[]`), 0).SetErr(errors.New("READONLY"))
		assert.Error(t, s.Set(ctx, "brackets:active", []byte(`[]`)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), StoreConfig{Backend: "etcd"}, nil)
	assert.Error(t, err)
}

func newGate(t *testing.T, now time.Time) *risk.Gate {
	t.Helper()
	g, err := risk.NewGate(risk.DefaultLimits(), risk.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return g
}

func newBrackets(t *testing.T) *bracket.Manager {
	t.Helper()
	m, err := bracket.NewManager(bracket.DefaultConfig())
	require.NoError(t, err)
	return m
}

func TestPersisterRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	gate := newGate(t, now)
	gate.RecordTrade(risk.TradeRequest{Symbol: "AAPL", Action: types.SideBuy, Quantity: 10, Price: 100, PortfolioValue: 100000, Market: types.MarketNASDAQ})
	gate.RecordPnL(-250)

	brackets := newBrackets(t)
	_, err = brackets.Create(bracket.CreateRequest{Symbol: "AAPL", EntryPrice: 100, Quantity: 10, Side: types.SideBuy})
	require.NoError(t, err)
	closed, err := brackets.Create(bracket.CreateRequest{Symbol: "MSFT", EntryPrice: 200, Quantity: 5, Side: types.SideBuy})
	require.NoError(t, err)
	require.True(t, brackets.Cancel(closed.ID))

	require.NoError(t, NewPersister(store, gate, brackets, nil).Save(ctx))

	restoredGate := newGate(t, now)
	restoredBrackets := newBrackets(t)
	p := NewPersister(store, restoredGate, restoredBrackets, nil)
	require.NoError(t, p.Load(ctx))

	summary := restoredGate.GetSummary(100000)
	assert.Equal(t, 1, summary.DailyTrades)
	assert.InDelta(t, -250.0, summary.DailyPnL, 1e-9)
	assert.InDelta(t, 10.0, summary.Positions["AAPL"].Quantity, 1e-9)

	active := restoredBrackets.GetActive()
	require.Len(t, active, 1)
	assert.Equal(t, "AAPL", active[0].Symbol)

	history, err := p.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, bracket.StatusCancelled, history[0].Status)
}

func TestPersisterExecutions(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	monitor, err := health.NewMonitor(health.DefaultConfig())
	require.NoError(t, err)
	monitor.RecordExecution("paper", "AAPL", true, 20*time.Millisecond, "")
	monitor.RecordExecution("paper", "MSFT", false, 5*time.Millisecond, "rejected")
	require.NoError(t, NewPersister(store, nil, nil, nil).WithExecutions(monitor).Save(ctx))

	restored, err := health.NewMonitor(health.DefaultConfig())
	require.NoError(t, err)
	p := NewPersister(store, nil, nil, nil).WithExecutions(restored)
	require.NoError(t, p.Load(ctx))

	records := restored.ExecutionHistory()
	require.Len(t, records, 2)
	assert.Equal(t, "AAPL", records[0].Symbol)
	assert.False(t, records[1].Success)

	loaded, err := p.LoadExecutions(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestPersisterLoadEmptyStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	brackets := newBrackets(t)
	p := NewPersister(store, newGate(t, time.Now()), brackets, nil)
	require.NoError(t, p.Load(context.Background()))
	assert.Empty(t, brackets.GetActive())
}

func TestPersisterCorruptSnapshot(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, KeyRiskState, []byte("not json")))

	p := NewPersister(store, newGate(t, time.Now()), nil, nil)
	assert.Error(t, p.Load(ctx))
}

func TestPersisterRunSavesOnShutdown(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	gate := newGate(t, time.Now())
	p := NewPersister(store, gate, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("persister did not stop")
	}
	_, ok, err := store.Get(context.Background(), KeyRiskState)
	require.NoError(t, err)
	assert.True(t, ok)
}
