package provider

import (
	"sync"
	"time"
)

// breakerState mirrors the closed/cooldown/open state machine the spec
// names but leaves unshaped (spec §7, supplemented per SPEC_FULL.md).
type breakerState int

const (
	stateHealthy breakerState = iota
	stateCooldown
	stateOpen
)

func (s breakerState) String() string {
	switch s {
	case stateHealthy:
		return "healthy"
	case stateCooldown:
		return "cooldown"
	case stateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a single provider's circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures within Window
	// that trips the breaker into cooldown.
	FailureThreshold int
	// Window bounds how far back consecutive failures are still counted.
	Window time.Duration
	// BaseCooldown is the initial cooldown duration; it doubles with each
	// consecutive cooldown entered, capped at MaxCooldown.
	BaseCooldown time.Duration
	MaxCooldown  time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.BaseCooldown <= 0 {
		c.BaseCooldown = 30 * time.Second
	}
	if c.MaxCooldown <= 0 {
		c.MaxCooldown = 10 * time.Minute
	}
	return c
}

// breaker tracks one provider's health: consecutive failures within a
// window trip it into cooldown; repeated cooldowns without a successful
// probe eventually mark it open (dead). An open breaker reports unavailable
// until RecordSuccess is called for it; there is no other reset.
type breaker struct {
	mu             sync.Mutex
	cfg            BreakerConfig
	state          breakerState
	consecutiveFail int
	windowStart    time.Time
	cooldownUntil  time.Time
	cooldownStreak int
	onStateChange  func(provider string, from, to string)
	name           string
}

func newBreaker(name string, cfg BreakerConfig) *breaker {
	return &breaker{name: name, cfg: cfg.withDefaults(), state: stateHealthy}
}

// IsAvailable reports whether a call should be attempted now.
func (b *breaker) IsAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateHealthy:
		return true
	case stateCooldown:
		if time.Now().After(b.cooldownUntil) {
			// Half-open: every call is let through (not only a single
			// probe) until a recorded result settles the state.
			return true
		}
		return false
	default: // stateOpen
		return false
	}
}

// RecordSuccess clears failure streaks and returns the breaker to healthy.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	b.consecutiveFail = 0
	b.cooldownStreak = 0
	b.state = stateHealthy
	b.notify(from, stateHealthy)
}

// RecordFailure advances the failure streak and may trip the breaker.
func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.windowStart.IsZero() || now.Sub(b.windowStart) > b.cfg.Window {
		b.windowStart = now
		b.consecutiveFail = 0
	}
	b.consecutiveFail++

	from := b.state

	if b.state == stateCooldown && now.Before(b.cooldownUntil) {
		// Failed while already waiting out cooldown — nothing new to decide.
		return
	}

	if b.consecutiveFail >= b.cfg.FailureThreshold {
		b.cooldownStreak++
		backoff := b.cfg.BaseCooldown << uint(minInt(b.cooldownStreak-1, 20))
		if backoff > b.cfg.MaxCooldown || backoff <= 0 {
			backoff = b.cfg.MaxCooldown
		}
		b.cooldownUntil = now.Add(backoff)

		if b.cooldownStreak >= 3 {
			b.state = stateOpen
		} else {
			b.state = stateCooldown
		}
		b.notify(from, b.state)
	}
}

func (b *breaker) notify(from, to breakerState) {
	if b.onStateChange != nil && from != to {
		b.onStateChange(b.name, from.String(), to.String())
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Breakers holds one breaker per provider, keyed by provider name.
type Breakers struct {
	mu       sync.Mutex
	entries  map[string]*breaker
	cfg      BreakerConfig
	onChange func(provider, fromState, toState string)
}

// NewBreakers creates a Breakers set sharing one configuration across all
// registered providers.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{entries: make(map[string]*breaker), cfg: cfg}
}

// OnStateChange installs a callback for circuit transitions, used to drive
// CircuitBreakerStateChangesTotal.
func (bs *Breakers) OnStateChange(fn func(provider, fromState, toState string)) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.onChange = fn
}

func (bs *Breakers) get(providerName string) *breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.entries[providerName]
	if !ok {
		b = newBreaker(providerName, bs.cfg)
		bs.entries[providerName] = b
	}
	b.onStateChange = bs.onChange
	return b
}

// IsAvailable reports whether providerName's circuit permits a call.
func (bs *Breakers) IsAvailable(providerName string) bool {
	return bs.get(providerName).IsAvailable()
}

// RecordSuccess reports a successful call to providerName.
func (bs *Breakers) RecordSuccess(providerName string) {
	bs.get(providerName).RecordSuccess()
}

// RecordFailure reports a failed call to providerName, retryable or not.
func (bs *Breakers) RecordFailure(providerName string) {
	bs.get(providerName).RecordFailure()
}
