package mcpserver

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/isdmx/luabox/metrics"
)

// RateLimiter throttles tool calls by request rate and by the number of
// executions in flight.
type RateLimiter struct {
	limiter       *rate.Limiter
	maxConcurrent int
	mu            sync.Mutex
	current       int
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst and at most maxConcurrent executions at once.
func NewRateLimiter(rps float64, burst, maxConcurrent int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter:       rate.NewLimiter(rate.Limit(rps), burst),
		maxConcurrent: maxConcurrent,
	}
}

// Acquire reserves an execution slot. Callers that get true must call Release.
func (rl *RateLimiter) Acquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.current >= rl.maxConcurrent {
		metrics.RateLimitHits.Inc()
		return false
	}
	if !rl.limiter.Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}
	rl.current++
	return true
}

// Release frees a slot taken by Acquire.
func (rl *RateLimiter) Release() {
	rl.mu.Lock()
	if rl.current > 0 {
		rl.current--
	}
	rl.mu.Unlock()
}

// InFlight returns the number of executions holding a slot.
func (rl *RateLimiter) InFlight() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.current
}
