package provider

import (
	"context"
	"time"
)

// Icypeas adapts the Icypeas email-discovery API to the Adapter contract.
// It is the cheapest provider in the default cascade order.
type Icypeas struct {
	client    *httpClient
	cost      float64
	rateLimit RateLimit
}

// NewIcypeas constructs an Icypeas adapter.
func NewIcypeas(apiKey string, cost float64, rateLimit RateLimit, callTimeout time.Duration) *Icypeas {
	return &Icypeas{
		client:    newHTTPClient("https://api.icypeas.com/v2", apiKey, callTimeout),
		cost:      cost,
		rateLimit: rateLimit,
	}
}

func (p *Icypeas) Name() string                  { return "icypeas" }
func (p *Icypeas) Cost() float64                 { return p.cost }
func (p *Icypeas) Capabilities() []Capability    { return []Capability{CapabilityEmail} }
func (p *Icypeas) RateLimit() RateLimit          { return p.rateLimit }

type icypeasRequest struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Domain    string `json:"domainOrCompany"`
}

type icypeasResponse struct {
	Email      string  `json:"email"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
}

// Lookup calls Icypeas for an email match.
func (p *Icypeas) Lookup(ctx context.Context, c Contact) (Result, error) {
	req := icypeasRequest{FirstName: c.FirstName, LastName: c.LastName, Domain: domainOrCompany(c)}

	var resp icypeasResponse
	if err := p.client.do(ctx, p.Name(), "POST", "/search", req, &resp); err != nil {
		return Result{}, err
	}

	if resp.Status == "not_found" || resp.Email == "" {
		return Result{}, NewFailure(p.Name(), FailureNotFound, nil)
	}

	return Result{Email: resp.Email, Confidence: resp.Confidence, Provider: p.Name()}, nil
}

func domainOrCompany(c Contact) string {
	if c.CompanyDomain != "" {
		return c.CompanyDomain
	}
	return c.Company
}
