// Package ratelimit implements the process-wide gate for outbound Torn API
// calls: a token bucket with continuous refill, a minimum-interval floor
// between consecutive grants, and a cooldown window applied after the server
// signals rate limiting. One Limiter instance is shared by every worker.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for limiter operations.
var (
	limiterGrantsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_limiter_grants_total",
		Help: "Total number of calls granted by the rate limiter",
	})

	limiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "torn_limiter_wait_seconds",
		Help:    "Time callers spent waiting for a limiter grant",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	limiterPenaltiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_limiter_penalties_total",
		Help: "Total number of cooldown penalties applied to the limiter",
	})

	limiterCooldownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "torn_limiter_cooldown_seconds",
		Help: "Remaining cooldown window in seconds (0 when no cooldown is active)",
	})
)

// Limiter is a thread-safe token bucket shared across all fetch workers.
//
// Capacity refills continuously at capacity/period tokens per second. Each
// granted call consumes one token and records the call time so the
// minimum-interval floor applies globally, not per caller. Penalize opens a
// cooldown window that dominates token availability until it elapses.
type Limiter struct {
	mu          sync.Mutex
	capacity    float64
	period      time.Duration
	minInterval time.Duration

	tokens        float64
	lastRefill    time.Time
	lastCall      time.Time
	cooldownUntil time.Time

	logger zerolog.Logger
}

// State is a point-in-time diagnostic view of the limiter.
type State struct {
	Tokens            float64
	Capacity          float64
	Period            time.Duration
	MinInterval       time.Duration
	CooldownRemaining time.Duration
}

// New creates a Limiter allowing maxCalls per period with a minimum interval
// between consecutive grants. minInterval may be zero.
func New(maxCalls int, period, minInterval time.Duration) (*Limiter, error) {
	if maxCalls <= 0 {
		return nil, fmt.Errorf("max calls must be > 0 (got %d)", maxCalls)
	}
	if period <= 0 {
		return nil, fmt.Errorf("period must be > 0 (got %s)", period)
	}
	if minInterval < 0 {
		minInterval = 0
	}

	return &Limiter{
		capacity:    float64(maxCalls),
		period:      period,
		minInterval: minInterval,
		tokens:      float64(maxCalls),
		lastRefill:  time.Now(),
		logger:      log.With().Str("component", "ratelimit").Logger(),
	}, nil
}

// Acquire blocks until a call slot is granted or ctx is cancelled.
// Returns true when a token was consumed, false on cancellation (no token
// is consumed in that case). The wait sleeps outside the internal lock so
// concurrent callers are only serialized during the cheap state check.
func (l *Limiter) Acquire(ctx context.Context) bool {
	start := time.Now()
	for {
		if ctx.Err() != nil {
			return false
		}

		wait, granted := l.tryAcquire(time.Now())
		if granted {
			limiterGrantsTotal.Inc()
			limiterWaitSeconds.Observe(time.Since(start).Seconds())
			return true
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// tryAcquire performs one locked state check. It either consumes a token and
// returns granted=true, or returns the duration the caller should sleep
// before re-checking.
func (l *Limiter) tryAcquire(now time.Time) (wait time.Duration, granted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// An active cooldown dominates token availability.
	if now.Before(l.cooldownUntil) {
		return l.cooldownUntil.Sub(now), false
	}
	limiterCooldownSeconds.Set(0)

	l.refill(now)

	if l.tokens >= 1.0 {
		sinceLast := now.Sub(l.lastCall)
		if l.minInterval > 0 && !l.lastCall.IsZero() && sinceLast < l.minInterval {
			return l.minInterval - sinceLast, false
		}
		l.tokens -= 1.0
		l.lastCall = now
		return 0, true
	}

	// Time until the next full token refills.
	ratePerSec := l.capacity / l.period.Seconds()
	deficit := 1.0 - l.tokens
	return time.Duration(deficit / ratePerSec * float64(time.Second)), false
}

// refill tops the bucket up by elapsed time, capped at capacity.
// Caller must hold l.mu.
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	ratePerSec := l.capacity / l.period.Seconds()
	l.tokens += elapsed.Seconds() * ratePerSec
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.lastRefill = now
}

// Penalize opens a global cooldown window of at least d. The window only ever
// extends forward: a shorter penalty never shortens an active cooldown.
// All concurrent Acquire callers observe the window, which converts a single
// server-side rate-limit signal into fleet-wide backpressure.
func (l *Limiter) Penalize(d time.Duration) {
	if d <= 0 {
		return
	}
	now := time.Now()

	l.mu.Lock()
	until := now.Add(d)
	if until.After(l.cooldownUntil) {
		l.cooldownUntil = until
	}
	remaining := l.cooldownUntil.Sub(now)
	l.mu.Unlock()

	limiterPenaltiesTotal.Inc()
	limiterCooldownSeconds.Set(remaining.Seconds())

	l.logger.Warn().
		Dur("penalty", d).
		Dur("cooldown_remaining", remaining).
		Msg("Limiter cooldown applied")
}

// SetMinInterval adjusts the global floor between calls.
func (l *Limiter) SetMinInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	l.minInterval = d
	l.mu.Unlock()
}

// Snapshot returns a diagnostic view of the current limiter state.
func (l *Limiter) Snapshot() State {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(now)

	cooldown := l.cooldownUntil.Sub(now)
	if cooldown < 0 {
		cooldown = 0
	}
	return State{
		Tokens:            l.tokens,
		Capacity:          l.capacity,
		Period:            l.period,
		MinInterval:       l.minInterval,
		CooldownRemaining: cooldown,
	}
}
