package provider

import (
	"context"
	"time"
)

// HLR adapts an optional Home Location Register lookup provider (spec §4.6).
// It obeys the same Adapter contract as the lead-discovery providers even
// though it only ever confirms a phone number already known to the contact:
// its Lookup always reports not_found, and confirmation goes through Confirm.
type HLR struct {
	client    *httpClient
	cost      float64
	rateLimit RateLimit
}

// NewHLR constructs an HLR adapter.
func NewHLR(apiKey string, cost float64, rateLimit RateLimit, callTimeout time.Duration) *HLR {
	return &HLR{
		client:    newHTTPClient("https://api.hlr-lookups.com/v2", apiKey, callTimeout),
		cost:      cost,
		rateLimit: rateLimit,
	}
}

func (p *HLR) Name() string              { return "hlr" }
func (p *HLR) Cost() float64             { return p.cost }
func (p *HLR) Capabilities() []Capability { return []Capability{CapabilityPhone} }
func (p *HLR) RateLimit() RateLimit      { return p.rateLimit }

type hlrRequest struct {
	MSISDN string `json:"msisdn"`
}

type hlrResponse struct {
	Status      string `json:"status"`
	NetworkType string `json:"network_type"` // mobile, landline, voip
	Reachable   bool   `json:"reachable"`
}

// Lookup always reports not_found: HLR has no name/company search
// capability, only phone confirmation. It exists solely to satisfy the
// Adapter interface; verify.PhoneVerifier calls Confirm directly once a
// phone number has been discovered by another provider.
func (p *HLR) Lookup(ctx context.Context, c Contact) (Result, error) {
	return Result{}, NewFailure(p.Name(), FailureNotFound, nil)
}

// Confirm performs the actual HLR probe against a phone number already
// discovered by another provider.
func (p *HLR) Confirm(ctx context.Context, e164Phone string) (networkType string, reachable bool, err error) {
	var resp hlrResponse
	if reqErr := p.client.do(ctx, p.Name(), "POST", "/lookup", hlrRequest{MSISDN: e164Phone}, &resp); reqErr != nil {
		return "", false, reqErr
	}
	return resp.NetworkType, resp.Reachable, nil
}
