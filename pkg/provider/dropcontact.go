package provider

import (
	"context"
	"time"
)

// Dropcontact adapts the Dropcontact API, which can return both email and
// phone in a single call.
type Dropcontact struct {
	client    *httpClient
	cost      float64
	rateLimit RateLimit
}

// NewDropcontact constructs a Dropcontact adapter.
func NewDropcontact(apiKey string, cost float64, rateLimit RateLimit, callTimeout time.Duration) *Dropcontact {
	return &Dropcontact{
		client:    newHTTPClient("https://api.dropcontact.io/v1", apiKey, callTimeout),
		cost:      cost,
		rateLimit: rateLimit,
	}
}

func (p *Dropcontact) Name() string               { return "dropcontact" }
func (p *Dropcontact) Cost() float64               { return p.cost }
func (p *Dropcontact) Capabilities() []Capability  { return []Capability{CapabilityEmail, CapabilityPhone} }
func (p *Dropcontact) RateLimit() RateLimit        { return p.rateLimit }

type dropcontactRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
}

type dropcontactResponse struct {
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	QualScore  float64 `json:"qualification_score"`
}

// Lookup calls Dropcontact for an email and/or phone match.
func (p *Dropcontact) Lookup(ctx context.Context, c Contact) (Result, error) {
	req := dropcontactRequest{FirstName: c.FirstName, LastName: c.LastName, Company: c.Company}

	var resp dropcontactResponse
	if err := p.client.do(ctx, p.Name(), "POST", "/enrich", req, &resp); err != nil {
		return Result{}, err
	}

	if resp.Email == "" && resp.Phone == "" {
		return Result{}, NewFailure(p.Name(), FailureNotFound, nil)
	}

	return Result{
		Email:      resp.Email,
		Phone:      resp.Phone,
		Confidence: resp.QualScore,
		Provider:   p.Name(),
	}, nil
}
