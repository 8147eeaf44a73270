package bracket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	boterrors "github.com/ducminhle1904/tradeguard/internal/errors"
	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/internal/logger"
	"github.com/ducminhle1904/tradeguard/internal/metrics"
	"github.com/ducminhle1904/tradeguard/internal/safety"
	"github.com/ducminhle1904/tradeguard/pkg/types"
)

// Config holds bracket manager settings
type Config struct {
	CheckInterval         time.Duration      `json:"check_interval" yaml:"check_interval"`
	StopLossPct           float64            `json:"stop_loss_pct" yaml:"stop_loss_pct"`                     // Default when a request has neither price nor pct
	TakeProfitPct         float64            `json:"take_profit_pct" yaml:"take_profit_pct"`                 // Default when a request has neither price nor pct
	TrailingActivationPct float64            `json:"trailing_activation_pct" yaml:"trailing_activation_pct"` // Default activation for trailing stops
	HistorySize           int                `json:"history_size" yaml:"history_size"`
	StopTimeout           time.Duration      `json:"stop_timeout" yaml:"stop_timeout"`
	PriceTimeout          time.Duration      `json:"price_timeout" yaml:"price_timeout"` // Per-symbol quote deadline in the monitor loop
	ExitTimeout           time.Duration      `json:"exit_timeout" yaml:"exit_timeout"`
	ExitRetry             safety.RetryConfig `json:"exit_retry" yaml:"exit_retry"`
}

// DefaultConfig returns default bracket settings
func DefaultConfig() Config {
	return Config{
		CheckInterval:         5 * time.Second,
		StopLossPct:           0.02,
		TakeProfitPct:         0.04,
		TrailingActivationPct: 0.03,
		HistorySize:           500,
		StopTimeout:           10 * time.Second,
		PriceTimeout:          10 * time.Second,
		ExitTimeout:           30 * time.Second,
		ExitRetry:             safety.DefaultRetryConfig(),
	}
}

// Validate checks the settings
func (c Config) Validate() error {
	if c.CheckInterval <= 0 {
		return boterrors.NewConfigurationError("bracket", "validate", "check_interval must be positive")
	}
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 || c.TakeProfitPct <= 0 {
		return boterrors.NewConfigurationError("bracket", "validate",
			fmt.Sprintf("invalid default percentages: stop_loss=%v take_profit=%v", c.StopLossPct, c.TakeProfitPct))
	}
	if c.TrailingActivationPct < 0 {
		return boterrors.NewConfigurationError("bracket", "validate", "trailing_activation_pct must not be negative")
	}
	if c.ExitRetry.MaxRetries < 0 {
		return boterrors.NewConfigurationError("bracket", "validate", "exit_retry.max_retries must not be negative")
	}
	return nil
}

// CreateRequest describes a bracket to attach to a new position
type CreateRequest struct {
	ID         string       `json:"id,omitempty"`
	Symbol     string       `json:"symbol"`
	Market     types.Market `json:"market,omitempty"`
	EntryPrice float64      `json:"entry_price"`
	Quantity   float64      `json:"quantity"`
	Side       types.Side   `json:"side"`

	StopLossPct     float64 `json:"stop_loss_pct,omitempty"`
	StopLossPrice   float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPct   float64 `json:"take_profit_pct,omitempty"`
	TakeProfitPrice float64 `json:"take_profit_price,omitempty"`

	TrailingStopPct float64 `json:"trailing_stop_pct,omitempty"`
	// nil uses the configured default; 0 trails from the first tick
	TrailingActivationPct *float64 `json:"trailing_activation_pct,omitempty"`
}

// Stats holds bracket counters
type Stats struct {
	TotalBrackets        int `json:"total_brackets"`
	StopLossesTriggered  int `json:"stop_losses_triggered"`
	TakeProfitsTriggered int `json:"take_profits_triggered"`
	TrailingStopsUpdated int `json:"trailing_stops_updated"`
	ExitsFailed          int `json:"exits_failed"`
	ActiveBrackets       int `json:"active_brackets"`
}

// ExitEvent describes a completed exit attempt
type ExitEvent struct {
	Order    Order                    `json:"order"`
	Reason   Trigger                  `json:"reason"`
	Price    float64                  `json:"price"`
	PnL      float64                  `json:"pnl"`
	PnLPct   float64                  `json:"pnl_pct"`
	Result   exchange.ExecutionResult `json:"result"`
	Attempts int                      `json:"attempts"`
	Err      error                    `json:"-"`
}

// Hooks are invoked outside the manager lock
type Hooks struct {
	OnStopLoss       func(o Order, price float64)
	OnTakeProfit     func(o Order, price float64)
	OnTrailingUpdate func(o Order, newStop float64)
	OnExit           func(ev ExitEvent)
}

// Manager owns the lifecycle of bracket orders and the price monitor loop
type Manager struct {
	config    Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
	prices    exchange.PriceFetcher
	exec      exchange.ExecutionCallback
	validator *safety.Validator
	hooks     Hooks
	now       func() time.Time

	mutex    sync.Mutex
	brackets map[string]*Order
	bySymbol map[string]string
	history  []Order
	stats    Stats
	fetching map[string]struct{}

	// background tracks quote fetches and exits started by the monitor loop
	background sync.WaitGroup

	runMutex sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the manager logger
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithPriceFetcher sets the price source used by the monitor loop
func WithPriceFetcher(p exchange.PriceFetcher) Option {
	return func(m *Manager) { m.prices = p }
}

// WithExecution sets the exit order callback. Without one exits are simulated fills.
func WithExecution(e exchange.ExecutionCallback) Option {
	return func(m *Manager) { m.exec = e }
}

// WithHooks sets lifecycle hooks
func WithHooks(h Hooks) Option {
	return func(m *Manager) { m.hooks = h }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a new bracket manager
func NewManager(config Config, opts ...Option) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 10 * time.Second
	}
	if config.ExitTimeout <= 0 {
		config.ExitTimeout = 30 * time.Second
	}
	if config.PriceTimeout <= 0 {
		config.PriceTimeout = 10 * time.Second
	}

	m := &Manager{
		config:    config,
		validator: safety.NewValidator(),
		now:       time.Now,
		brackets:  make(map[string]*Order),
		bySymbol:  make(map[string]string),
		fetching:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Nop()
	}
	return m, nil
}

func (m *Manager) newOrder(req CreateRequest) (*Order, error) {
	for _, r := range []safety.ValidationResult{
		m.validator.ValidateSymbol(req.Symbol),
		m.validator.ValidatePrice(req.EntryPrice, req.Symbol),
		m.validator.ValidateQuantity(req.Quantity, req.Symbol),
		m.validator.ValidatePercentageRange(req.StopLossPct, 0, 0.99, "stop_loss"),
		m.validator.ValidatePercentageRange(req.TakeProfitPct, 0, 10, "take_profit"),
		m.validator.ValidatePercentageRange(req.TrailingStopPct, 0, 0.99, "trailing_stop"),
	} {
		if !r.Valid {
			return nil, r.Err("bracket", "create")
		}
	}
	if !req.Side.Valid() {
		return nil, boterrors.NewValidationError("bracket", "create", fmt.Sprintf("invalid side %q", req.Side))
	}

	o := &Order{
		ID:              req.ID,
		Symbol:          req.Symbol,
		Market:          req.Market,
		EntryPrice:      req.EntryPrice,
		Quantity:        req.Quantity,
		Side:            req.Side,
		StopLossPrice:   req.StopLossPrice,
		StopLossPct:     req.StopLossPct,
		TakeProfitPrice: req.TakeProfitPrice,
		TakeProfitPct:   req.TakeProfitPct,
		TrailingStopPct: req.TrailingStopPct,
		Status:          StatusPending,
		CreatedAt:       m.now(),
	}
	if o.ID == "" {
		o.ID = fmt.Sprintf("bracket_%s_%s", strings.ToLower(req.Symbol), uuid.NewString()[:8])
	}
	if o.StopLossPrice <= 0 && o.StopLossPct <= 0 {
		o.StopLossPct = m.config.StopLossPct
	}
	if o.TakeProfitPrice <= 0 && o.TakeProfitPct <= 0 {
		o.TakeProfitPct = m.config.TakeProfitPct
	}
	if o.TrailingStopPct > 0 {
		o.TrailingActivationPct = m.config.TrailingActivationPct
		if req.TrailingActivationPct != nil {
			o.TrailingActivationPct = *req.TrailingActivationPct
		}
	}
	if o.Side == types.SideBuy {
		o.HighestPrice = o.EntryPrice
	} else {
		o.LowestPrice = o.EntryPrice
	}

	stop, target := o.StopLoss(), o.TakeProfit()
	ordered := stop < o.EntryPrice && o.EntryPrice < target
	if o.Side == types.SideSell {
		ordered = target < o.EntryPrice && o.EntryPrice < stop
	}
	if !ordered || stop <= 0 || target <= 0 {
		return nil, boterrors.NewInvariantError("bracket", "create",
			fmt.Sprintf("entry %.4f must lie strictly between stop %.4f and target %.4f for %s", o.EntryPrice, stop, target, o.Side)).
			WithContext("symbol", o.Symbol)
	}
	return o, nil
}

// DefaultStopLossPct is the stop applied to requests that carry neither a stop price nor a pct
func (m *Manager) DefaultStopLossPct() float64 {
	return m.config.StopLossPct
}

// Create validates and registers a bracket. Only one active bracket per symbol is allowed.
func (m *Manager) Create(req CreateRequest) (Order, error) {
	o, err := m.newOrder(req)
	if err != nil {
		m.metrics.RecordError("bracket", string(boterrors.CategorizeError(err, "bracket", "create").Category))
		return Order{}, err
	}

	m.mutex.Lock()
	if id, exists := m.bySymbol[o.Symbol]; exists {
		m.mutex.Unlock()
		return Order{}, boterrors.NewValidationError("bracket", "create",
			fmt.Sprintf("symbol %s already has bracket %s", o.Symbol, id))
	}
	if _, exists := m.brackets[o.ID]; exists {
		m.mutex.Unlock()
		return Order{}, boterrors.NewValidationError("bracket", "create", fmt.Sprintf("bracket id %s already exists", o.ID))
	}
	o.Status = StatusActive
	m.brackets[o.ID] = o
	m.bySymbol[o.Symbol] = o.ID
	m.stats.TotalBrackets++
	active := len(m.bySymbol)
	created := *o
	m.mutex.Unlock()

	m.metrics.SetActiveBrackets(active)
	m.logger.Info("Created bracket %s: %s %.6f %s @ %.4f | SL: %.4f | TP: %.4f",
		created.ID, created.Side, created.Quantity, created.Symbol, created.EntryPrice, created.StopLoss(), created.TakeProfit())
	return created, nil
}

// Cancel removes an active bracket. It returns false if the id is unknown or already firing.
func (m *Manager) Cancel(id string) bool {
	m.mutex.Lock()
	o, ok := m.brackets[id]
	if !ok || o.Status != StatusActive {
		m.mutex.Unlock()
		return false
	}
	o.Status = StatusCancelled
	o.ClosedAt = m.now()
	m.removeLocked(o)
	active := len(m.bySymbol)
	m.mutex.Unlock()

	m.metrics.SetActiveBrackets(active)
	m.logger.Info("Cancelled bracket %s (%s)", id, o.Symbol)
	return true
}

// removeLocked drops o from the active index and appends it to history
func (m *Manager) removeLocked(o *Order) {
	delete(m.brackets, o.ID)
	if m.bySymbol[o.Symbol] == o.ID {
		delete(m.bySymbol, o.Symbol)
	}
	m.history = append(m.history, *o)
	if limit := m.config.HistorySize; limit > 0 && len(m.history) > limit {
		m.history = append([]Order(nil), m.history[len(m.history)-limit:]...)
	}
}

type firing struct {
	order  Order
	price  float64
	reason Trigger
}

type trailUpdate struct {
	order   Order
	newStop float64
}

// UpdatePrices applies a price tick to every active bracket whose symbol is
// present, then executes the exits of any that fired. Exit calls run outside
// the lock and concurrently with each other; UpdatePrices returns once they finish.
func (m *Manager) UpdatePrices(ctx context.Context, prices map[string]float64) {
	var wg sync.WaitGroup
	m.applyPrices(ctx, prices, &wg)
	wg.Wait()
}

// applyPrices starts the exit of every bracket the tick fires on wg without waiting for it
func (m *Manager) applyPrices(ctx context.Context, prices map[string]float64, wg *sync.WaitGroup) {
	var fired []firing
	var trails []trailUpdate

	m.mutex.Lock()
	for _, o := range m.brackets {
		if o.Status != StatusActive {
			continue
		}
		price, ok := prices[o.Symbol]
		if !ok || price <= 0 {
			continue
		}

		if newStop, moved := o.updateTrailingStop(price); moved {
			m.stats.TrailingStopsUpdated++
			trails = append(trails, trailUpdate{order: *o, newStop: newStop})
		}

		reason, hit := o.checkTriggered(price)
		if !hit {
			continue
		}
		o.Status = StatusTriggered
		o.TriggeredAt = m.now()
		o.TriggerReason = reason
		if reason == TriggerStopLoss {
			m.stats.StopLossesTriggered++
		} else {
			m.stats.TakeProfitsTriggered++
		}
		fired = append(fired, firing{order: *o, price: price, reason: reason})
	}
	m.mutex.Unlock()

	for _, t := range trails {
		m.metrics.RecordTrailingUpdate()
		m.logger.Info("Trailing stop updated for %s: %.4f", t.order.Symbol, t.newStop)
		if m.hooks.OnTrailingUpdate != nil {
			m.invoke("trailing_update", func() { m.hooks.OnTrailingUpdate(t.order, t.newStop) })
		}
	}

	if len(fired) == 0 {
		return
	}

	for _, f := range fired {
		wg.Add(1)
		go func(f firing) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Panic while exiting bracket %s: %v", f.order.ID, r)
				}
			}()
			m.executeExit(ctx, f)
		}(f)
	}
}

func (m *Manager) invoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Bracket hook %s panicked: %v", name, r)
		}
	}()
	fn()
}

// executeExit places the opposite-side market order for a fired bracket and
// removes it from the active index whatever the outcome.
func (m *Manager) executeExit(ctx context.Context, f firing) {
	o := f.order
	pnl, pnlPct := o.PnL(f.price)

	m.logger.Trade("%s triggered for %s: entry %.4f -> exit %.4f | P&L: %.2f (%+.2f%%)",
		strings.ToUpper(string(f.reason)), o.Symbol, o.EntryPrice, f.price, pnl, pnlPct)
	m.metrics.RecordTrigger(string(f.reason), pnl)

	switch f.reason {
	case TriggerStopLoss:
		if m.hooks.OnStopLoss != nil {
			m.invoke("stop_loss", func() { m.hooks.OnStopLoss(o, f.price) })
		}
	case TriggerTakeProfit:
		if m.hooks.OnTakeProfit != nil {
			m.invoke("take_profit", func() { m.hooks.OnTakeProfit(o, f.price) })
		}
	}

	result, attempts, err := m.placeExit(ctx, o, f.price)

	m.mutex.Lock()
	live, ok := m.brackets[o.ID]
	if !ok {
		live = &o
	}
	live.ClosedAt = m.now()
	live.RealizedPnL = pnl
	live.ExitPrice = f.price
	if err == nil {
		live.Status = StatusFilled
		live.ExitOrderID = result.OrderID
		if result.FillPrice > 0 {
			live.ExitPrice = result.FillPrice
		}
	} else {
		live.ExitError = err.Error()
		m.stats.ExitsFailed++
	}
	if ok {
		m.removeLocked(live)
	}
	closed := *live
	active := len(m.bySymbol)
	m.mutex.Unlock()

	m.metrics.SetActiveBrackets(active)
	if err != nil {
		m.metrics.RecordExitFailure()
		m.logger.Critical("Exit order failed for %s after %d attempt(s), position is unprotected: %v", o.Symbol, attempts, err)
	} else {
		m.logger.Trade("Exit order filled for %s (order %s)", o.Symbol, result.OrderID)
	}

	if m.hooks.OnExit != nil {
		ev := ExitEvent{
			Order:    closed,
			Reason:   f.reason,
			Price:    f.price,
			PnL:      pnl,
			PnLPct:   pnlPct,
			Result:   result,
			Attempts: attempts,
			Err:      err,
		}
		m.invoke("exit", func() { m.hooks.OnExit(ev) })
	}
}

// placeExit sends the exit order, retrying transient failures. The idempotency
// key is stable per bracket so a retry after a lost response cannot double-fill.
func (m *Manager) placeExit(ctx context.Context, o Order, price float64) (exchange.ExecutionResult, int, error) {
	if m.exec == nil {
		return exchange.ExecutionResult{Status: exchange.ExecutionSuccess, FillPrice: price}, 0, nil
	}

	req := exchange.ExecutionRequest{
		Symbol:         o.Symbol,
		Side:           o.Side.Opposite(),
		Quantity:       o.Quantity,
		OrderType:      types.OrderTypeMarket,
		Market:         o.Market,
		IdempotencyKey: "exit-" + o.ID,
	}

	exitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.ExitTimeout)
	defer cancel()

	var result exchange.ExecutionResult
	attempts := 0
	err := safety.Retry(exitCtx, m.config.ExitRetry, func(attempt int) error {
		attempts = attempt + 1
		result = m.exec.Execute(exitCtx, req)
		if result.OK() {
			return nil
		}
		msg := result.Error
		if msg == "" {
			msg = "exit order returned status " + string(result.Status)
		}
		if attempt < m.config.ExitRetry.MaxRetries {
			m.logger.Warning("Exit attempt %d for %s failed: %s", attempts, o.Symbol, msg)
		}
		return errors.New(msg)
	})
	return result, attempts, err
}

// GetActive returns active brackets ordered by creation time
func (m *Manager) GetActive() []Order {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	out := make([]Order, 0, len(m.brackets))
	for _, o := range m.brackets {
		if o.Status == StatusActive {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetForSymbol returns the active bracket for symbol
func (m *Manager) GetForSymbol(symbol string) (Order, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	id, ok := m.bySymbol[symbol]
	if !ok {
		return Order{}, false
	}
	o, ok := m.brackets[id]
	if !ok || o.Status != StatusActive {
		return Order{}, false
	}
	return *o, true
}

// Get returns an open bracket by id, including one whose exit is in flight
func (m *Manager) Get(id string) (Order, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	o, ok := m.brackets[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// GetStats returns bracket counters
func (m *Manager) GetStats() Stats {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s := m.stats
	for _, o := range m.brackets {
		if o.Status == StatusActive {
			s.ActiveBrackets++
		}
	}
	return s
}

// History returns closed brackets, oldest first
func (m *Manager) History() []Order {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]Order(nil), m.history...)
}

// Snapshot returns the active brackets for persistence
func (m *Manager) Snapshot() []Order {
	return m.GetActive()
}

// Restore re-registers persisted brackets. Brackets that fail validation or
// collide with an existing symbol are skipped and reported.
func (m *Manager) Restore(orders []Order, history []Order) error {
	var errs []error

	m.mutex.Lock()
	for i := range orders {
		o := orders[i]
		if o.Status != StatusActive {
			continue
		}
		if _, exists := m.bySymbol[o.Symbol]; exists {
			errs = append(errs, fmt.Errorf("symbol %s already has an active bracket", o.Symbol))
			continue
		}
		stop, target := o.StopLoss(), o.TakeProfit()
		if stop <= 0 || target <= 0 || o.Quantity <= 0 {
			errs = append(errs, fmt.Errorf("bracket %s has no usable stop/target", o.ID))
			continue
		}
		m.brackets[o.ID] = &o
		m.bySymbol[o.Symbol] = o.ID
	}
	if len(history) > 0 {
		m.history = append(append([]Order(nil), history...), m.history...)
		if limit := m.config.HistorySize; limit > 0 && len(m.history) > limit {
			m.history = m.history[len(m.history)-limit:]
		}
	}
	active := len(m.bySymbol)
	m.mutex.Unlock()

	m.metrics.SetActiveBrackets(active)
	m.logger.Info("Restored %d active bracket(s)", active)
	return errors.Join(errs...)
}

// Start launches the price monitor loop. Calling Start on a running manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})

	go m.monitorLoop(ctx, m.stopChan, m.done)
	m.logger.Info("Bracket order monitoring started (interval %s)", m.config.CheckInterval)
}

// Stop signals the monitor loop, then waits up to StopTimeout for it and for
// the exits it started. It also drains after the loop ended with its context.
func (m *Manager) Stop() {
	m.runMutex.Lock()
	if m.running {
		m.running = false
		close(m.stopChan)
	}
	done := m.done
	m.runMutex.Unlock()
	if done == nil {
		return
	}

	deadline := time.NewTimer(m.config.StopTimeout)
	defer deadline.Stop()

	select {
	case <-done:
	case <-deadline.C:
		m.logger.Warning("Bracket monitor did not stop within %s", m.config.StopTimeout)
		return
	}

	// Past this point only tracked goroutines add to background
	drained := make(chan struct{})
	go func() {
		m.background.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		m.logger.Info("Bracket order monitoring stopped")
	case <-deadline.C:
		m.logger.Warning("Exits still in flight after %s, leaving them to finish", m.config.StopTimeout)
	}
}

// IsRunning reports whether the monitor loop is active
func (m *Manager) IsRunning() bool {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()
	return m.running
}

func (m *Manager) monitorLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkCycle(ctx)
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

// checkCycle fetches prices for every symbol with an active bracket and applies them
func (m *Manager) checkCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Error in bracket monitoring: %v", r)
		}
	}()

	if m.prices == nil {
		return
	}

	m.mutex.Lock()
	symbols := make([]string, 0, len(m.bySymbol))
	for symbol, id := range m.bySymbol {
		if o, ok := m.brackets[id]; ok && o.Status == StatusActive {
			symbols = append(symbols, symbol)
		}
	}
	m.mutex.Unlock()

	if len(symbols) == 0 {
		return
	}

	for _, symbol := range symbols {
		if !m.claimFetch(symbol) {
			continue
		}
		m.background.Add(1)
		go m.watchSymbol(ctx, symbol)
	}
}

// claimFetch reserves symbol for one in-flight quote so a slow broker cannot pile up requests
func (m *Manager) claimFetch(symbol string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, busy := m.fetching[symbol]; busy {
		return false
	}
	m.fetching[symbol] = struct{}{}
	return true
}

// watchSymbol quotes one symbol and applies the price on its own, so neither a
// slow quote nor a slow exit for one symbol holds back the others
func (m *Manager) watchSymbol(ctx context.Context, symbol string) {
	defer m.background.Done()
	defer func() {
		m.mutex.Lock()
		delete(m.fetching, symbol)
		m.mutex.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Error while checking %s: %v", symbol, r)
		}
	}()

	quoteCtx, cancel := context.WithTimeout(ctx, m.config.PriceTimeout)
	price, err := m.prices.GetPrice(quoteCtx, symbol)
	cancel()
	if err != nil {
		m.logger.Warning("Failed to get price for %s: %v", symbol, err)
		return
	}
	if price > 0 {
		m.applyPrices(ctx, map[string]float64{symbol: price}, &m.background)
	}
}
