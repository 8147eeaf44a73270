package safety

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles calls per key (one token bucket per broker)
type RateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewRateLimiter creates a rate limiter whose buckets default to rps/burst
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limit := rate.Limit(rl.rps)
	if rl.rps <= 0 {
		limit = rate.Inf
	}
	limiter = rate.NewLimiter(limit, rl.burst)
	rl.limiters[key] = limiter
	return limiter
}

// Configure sets a dedicated rate for one key; rps <= 0 disables throttling for it
func (rl *RateLimiter) Configure(key string, rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiters[key] = rate.NewLimiter(limit, burst)
}

// Allow checks if an operation for key is allowed right now
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// Wait blocks until an operation for key is allowed or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.limiter(key).Wait(ctx)
}

// RateLimiterStats holds statistics about one bucket
type RateLimiterStats struct {
	Key             string  `json:"key"`
	RPS             float64 `json:"rps"`
	Burst           int     `json:"burst"`
	TokensAvailable float64 `json:"tokens_available"`
}

// GetStats returns current statistics for every bucket, sorted by key
func (rl *RateLimiter) GetStats() []RateLimiterStats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	stats := make([]RateLimiterStats, 0, len(rl.limiters))
	for key, limiter := range rl.limiters {
		stats = append(stats, RateLimiterStats{
			Key:             key,
			RPS:             float64(limiter.Limit()),
			Burst:           limiter.Burst(),
			TokensAvailable: limiter.Tokens(),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}
