package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a per-provider token bucket governing outbound calls. It is
// process-wide shared state (spec §4.2): when horizontally scaled, each
// process owns an independent bucket sized to its share; distributed
// limiting is out of scope for the core.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	shapes   map[string]RateLimit
	onReject func(provider string)
}

// NewLimiter creates an empty Limiter. Call Configure for each provider
// before use.
func NewLimiter() *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		shapes:  make(map[string]RateLimit),
	}
}

// OnReject installs a callback invoked every time Acquire fails, for metrics.
func (l *Limiter) OnReject(fn func(provider string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReject = fn
}

// Configure registers (or replaces) the bucket shape for a provider. Tokens
// refill at max_per_minute/60 per second; capacity equals burst.
func (l *Limiter) Configure(providerName string, shape RateLimit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shapes[providerName] = shape
	perSecond := rate.Limit(float64(shape.MaxPerMinute) / 60.0)
	l.buckets[providerName] = rate.NewLimiter(perSecond, shape.Burst)
}

// Acquire takes one token for providerName, blocking at most until the
// caller's deadline (via ctx). On deadline exhaustion it returns a
// *Failure{Code: rate_limited} rather than a generic context error, so the
// Coordinator can branch on FailureCode uniformly.
func (l *Limiter) Acquire(ctx context.Context, providerName string) error {
	l.mu.Lock()
	bucket, ok := l.buckets[providerName]
	onReject := l.onReject
	l.mu.Unlock()

	if !ok {
		// Unconfigured providers are treated as unbounded — a misconfiguration
		// should not silently stall the cascade.
		return nil
	}

	err := bucket.Wait(ctx)
	if err != nil {
		if onReject != nil {
			onReject(providerName)
		}
		return NewFailure(providerName, FailureRateLimited, err)
	}
	return nil
}

// AcquireWithDeadline is a convenience wrapper applying a fixed deadline
// on top of the caller's context, used by the Coordinator's per-call timeout.
func (l *Limiter) AcquireWithDeadline(ctx context.Context, providerName string, deadline time.Duration) error {
	dctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	return l.Acquire(dctx, providerName)
}
