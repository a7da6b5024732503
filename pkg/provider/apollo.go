package provider

import (
	"context"
	"time"
)

// Apollo adapts the Apollo.io people-enrichment API. It is typically the
// most expensive provider in the cascade and can return both email and
// phone.
type Apollo struct {
	client    *httpClient
	cost      float64
	rateLimit RateLimit
}

// NewApollo constructs an Apollo adapter.
func NewApollo(apiKey string, cost float64, rateLimit RateLimit, callTimeout time.Duration) *Apollo {
	return &Apollo{
		client:    newHTTPClient("https://api.apollo.io/v1", apiKey, callTimeout),
		cost:      cost,
		rateLimit: rateLimit,
	}
}

func (p *Apollo) Name() string              { return "apollo" }
func (p *Apollo) Cost() float64             { return p.cost }
func (p *Apollo) Capabilities() []Capability { return []Capability{CapabilityEmail, CapabilityPhone} }
func (p *Apollo) RateLimit() RateLimit      { return p.rateLimit }

type apolloRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	DomainName string `json:"domain"`
}

type apolloResponse struct {
	Person struct {
		Email            string  `json:"email"`
		PhoneNumber      string  `json:"sanitized_phone"`
		EmailConfidence  float64 `json:"email_confidence"`
	} `json:"person"`
}

// Lookup calls Apollo's people match endpoint.
func (p *Apollo) Lookup(ctx context.Context, c Contact) (Result, error) {
	req := apolloRequest{FirstName: c.FirstName, LastName: c.LastName, DomainName: domainOrCompany(c)}

	var resp apolloResponse
	if err := p.client.do(ctx, p.Name(), "POST", "/people/match", req, &resp); err != nil {
		return Result{}, err
	}

	if resp.Person.Email == "" && resp.Person.PhoneNumber == "" {
		return Result{}, NewFailure(p.Name(), FailureNotFound, nil)
	}

	return Result{
		Email:      resp.Person.Email,
		Phone:      resp.Person.PhoneNumber,
		Confidence: resp.Person.EmailConfidence,
		Provider:   p.Name(),
	}, nil
}
