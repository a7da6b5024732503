// Package provider defines the uniform contract every external enrichment
// service adapts to, plus the shared rate limiter and circuit breaker that
// govern calls to them.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Capability is one of the two data types a provider can discover.
type Capability string

const (
	CapabilityEmail Capability = "email"
	CapabilityPhone Capability = "phone"
)

// FailureCode is the taxonomy surfaced by adapters (spec §4.1).
type FailureCode string

const (
	FailureRateLimited       FailureCode = "rate_limited"
	FailureUnauthorized      FailureCode = "unauthorized"
	FailureNotFound          FailureCode = "not_found"
	FailureTransientNetwork  FailureCode = "transient_network"
	FailureInvalidResponse   FailureCode = "invalid_response"
	FailureQuotaExhausted    FailureCode = "quota_exhausted_at_provider"
)

// Failure is a typed adapter error. The Coordinator branches on Code, never
// on string matching or type assertions against provider-specific errors.
type Failure struct {
	Code     FailureCode
	Provider string
	Err      error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Provider, f.Code, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Provider, f.Code)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure builds a Failure for the given provider/code pair.
func NewFailure(provider string, code FailureCode, err error) *Failure {
	return &Failure{Code: code, Provider: provider, Err: err}
}

// IsRetryable reports whether the failure is one the adapter's HTTP client
// already backed off and retried internally (spec §4.1: rate_limited and
// transient_network only), and so one the Coordinator should treat as
// capacity exhaustion rather than a charge-worthy attempt.
func IsRetryable(err error) bool {
	var f *Failure
	if !errors.As(err, &f) {
		return false
	}
	return f.Code == FailureRateLimited || f.Code == FailureTransientNetwork
}

// CodeOf extracts the FailureCode from err, or "" if err isn't a *Failure.
func CodeOf(err error) FailureCode {
	var f *Failure
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

// Contact is the canonical, normalized input to a lookup.
type Contact struct {
	FirstName     string
	LastName      string
	Position      string
	Company       string
	CompanyDomain string
	ProfileURL    string
	Location      string
}

// Result is the canonical, normalized output of a lookup.
type Result struct {
	Email      string
	Phone      string
	Confidence float64
	Provider   string
	Raw        []byte
}

// RateLimit describes a provider's configured token bucket shape.
type RateLimit struct {
	MaxPerMinute int
	Burst        int
}

// Adapter is the uniform capability every provider implements (spec §4.1).
type Adapter interface {
	// Name is the provider's identifier, used as the cascade order key and
	// the rate limiter/circuit breaker bucket key.
	Name() string
	// Lookup performs a single-contact enrichment call.
	Lookup(ctx context.Context, c Contact) (Result, error)
	// Cost is the static per-call credit price.
	Cost() float64
	// Capabilities reports which data types this provider can discover.
	Capabilities() []Capability
	// RateLimit reports this provider's configured token bucket shape.
	RateLimit() RateLimit
}
