package safety

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the circuit breaker state
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

func fromGobreaker(s gobreaker.State) CircuitBreakerState {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// ErrCircuitOpen is returned by Call when the breaker rejects the request
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold uint32        // Consecutive failures before opening
	Timeout          time.Duration // How long the circuit stays open before a probe is allowed
	HalfOpenRequests uint32        // Probes admitted while half-open
}

// CircuitBreaker trips after N consecutive failures, stays open for Timeout and
// then admits a single probe. Failure bookkeeping survives state transitions.
type CircuitBreaker struct {
	name    string
	config  CircuitBreakerConfig
	breaker *gobreaker.CircuitBreaker

	mutex         sync.RWMutex
	failures      uint32
	lastFailure   time.Time
	openUntil     time.Time
	totalFailures uint64
	totalSuccess  uint64
	onStateChange func(name string, from, to CircuitBreakerState)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = 1
	}

	cb := &CircuitBreaker{name: name, config: config}
	cb.breaker = cb.newBreaker()
	return cb
}

func (cb *CircuitBreaker) newBreaker() *gobreaker.CircuitBreaker {
	threshold := cb.config.FailureThreshold
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cb.name,
		MaxRequests: cb.config.HalfOpenRequests,
		Timeout:     cb.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			// Runs under gobreaker's lock; only touch our own fields here.
			cb.mutex.Lock()
			if to == gobreaker.StateOpen {
				cb.openUntil = time.Now().Add(cb.config.Timeout)
			} else if to == gobreaker.StateClosed {
				cb.openUntil = time.Time{}
			}
			callback := cb.onStateChange
			cb.mutex.Unlock()

			if callback != nil {
				callback(name, fromGobreaker(from), fromGobreaker(to))
			}
		},
	})
}

// SetStateChangeCallback sets a callback to be called when the state changes
func (cb *CircuitBreaker) SetStateChangeCallback(callback func(name string, from, to CircuitBreakerState)) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.onStateChange = callback
}

// Call executes fn with circuit breaker protection. When the breaker rejects
// the call fn is not run and ErrCircuitOpen is returned.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mutex.RLock()
	breaker := cb.breaker
	cb.mutex.RUnlock()

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}

	cb.mutex.Lock()
	if err != nil {
		cb.failures++
		cb.totalFailures++
		cb.lastFailure = time.Now()
	} else {
		cb.failures = 0
		cb.totalSuccess++
	}
	cb.mutex.Unlock()

	return err
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mutex.RLock()
	breaker := cb.breaker
	cb.mutex.RUnlock()
	return fromGobreaker(breaker.State())
}

// IsOpen reports whether calls are currently being rejected
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.GetState() == StateOpen
}

// Failures returns the consecutive failure count
func (cb *CircuitBreaker) Failures() uint32 {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.failures
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	state := cb.GetState()

	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	stats := CircuitBreakerStats{
		Name:          cb.name,
		State:         state.String(),
		Open:          state == StateOpen,
		Failures:      cb.failures,
		LastFailure:   cb.lastFailure,
		TotalFailures: cb.totalFailures,
		TotalSuccess:  cb.totalSuccess,
	}
	if state == StateOpen {
		stats.OpenUntil = cb.openUntil
	}
	return stats
}

// CircuitBreakerStats holds statistics about a circuit breaker
type CircuitBreakerStats struct {
	Name          string    `json:"name"`
	State         string    `json:"state"`
	Open          bool      `json:"open"`
	Failures      uint32    `json:"failures"`
	LastFailure   time.Time `json:"last_failure"`
	OpenUntil     time.Time `json:"open_until"`
	TotalFailures uint64    `json:"total_failures"`
	TotalSuccess  uint64    `json:"total_success"`
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.breaker = cb.newBreaker()
	cb.failures = 0
	cb.openUntil = time.Time{}
}

// CircuitBreakerManager manages multiple circuit breakers
type CircuitBreakerManager struct {
	breakers map[string]*CircuitBreaker
	mutex    sync.RWMutex
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager() *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate gets an existing circuit breaker or creates a new one
func (cbm *CircuitBreakerManager) GetOrCreate(name string, config CircuitBreakerConfig) *CircuitBreaker {
	cbm.mutex.RLock()
	if breaker, exists := cbm.breakers[name]; exists {
		cbm.mutex.RUnlock()
		return breaker
	}
	cbm.mutex.RUnlock()

	cbm.mutex.Lock()
	defer cbm.mutex.Unlock()

	if breaker, exists := cbm.breakers[name]; exists {
		return breaker
	}

	breaker := NewCircuitBreaker(name, config)
	cbm.breakers[name] = breaker
	return breaker
}

// Get gets an existing circuit breaker
func (cbm *CircuitBreakerManager) Get(name string) (*CircuitBreaker, bool) {
	cbm.mutex.RLock()
	defer cbm.mutex.RUnlock()
	breaker, exists := cbm.breakers[name]
	return breaker, exists
}

// GetStats returns statistics for all circuit breakers, sorted by name
func (cbm *CircuitBreakerManager) GetStats() []CircuitBreakerStats {
	cbm.mutex.RLock()
	breakers := make([]*CircuitBreaker, 0, len(cbm.breakers))
	for _, b := range cbm.breakers {
		breakers = append(breakers, b)
	}
	cbm.mutex.RUnlock()

	stats := make([]CircuitBreakerStats, 0, len(breakers))
	for _, b := range breakers {
		stats = append(stats, b.GetStats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// GetOpenCircuits returns a list of open circuit breaker names
func (cbm *CircuitBreakerManager) GetOpenCircuits() []string {
	var open []string
	for _, s := range cbm.GetStats() {
		if s.Open {
			open = append(open, s.Name)
		}
	}
	return open
}

// HasOpenCircuits returns true if any circuit breakers are open
func (cbm *CircuitBreakerManager) HasOpenCircuits() bool {
	return len(cbm.GetOpenCircuits()) > 0
}
