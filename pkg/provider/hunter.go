package provider

import (
	"context"
	"fmt"
	"time"
)

// Hunter adapts the Hunter.io email-finder API.
type Hunter struct {
	client    *httpClient
	cost      float64
	rateLimit RateLimit
}

// NewHunter constructs a Hunter adapter.
func NewHunter(apiKey string, cost float64, rateLimit RateLimit, callTimeout time.Duration) *Hunter {
	return &Hunter{
		client:    newHTTPClient("https://api.hunter.io/v2", apiKey, callTimeout),
		cost:      cost,
		rateLimit: rateLimit,
	}
}

func (p *Hunter) Name() string               { return "hunter" }
func (p *Hunter) Cost() float64              { return p.cost }
func (p *Hunter) Capabilities() []Capability { return []Capability{CapabilityEmail} }
func (p *Hunter) RateLimit() RateLimit       { return p.rateLimit }

type hunterResponse struct {
	Data struct {
		Email string  `json:"email"`
		Score float64 `json:"score"`
	} `json:"data"`
}

// Lookup calls Hunter's email-finder endpoint.
func (p *Hunter) Lookup(ctx context.Context, c Contact) (Result, error) {
	path := fmt.Sprintf("/email-finder?domain=%s&first_name=%s&last_name=%s",
		domainOrCompany(c), c.FirstName, c.LastName)

	var resp hunterResponse
	if err := p.client.do(ctx, p.Name(), "GET", path, nil, &resp); err != nil {
		return Result{}, err
	}

	if resp.Data.Email == "" {
		return Result{}, NewFailure(p.Name(), FailureNotFound, nil)
	}

	return Result{Email: resp.Data.Email, Confidence: resp.Data.Score / 100.0, Provider: p.Name()}, nil
}
