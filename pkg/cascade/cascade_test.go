package cascade

import (
	"testing"

	"github.com/captely/core/internal/db"
	"github.com/captely/core/pkg/provider"
)

func TestCandidateAbsorbPrefersHigherConfidencePerField(t *testing.T) {
	var cand candidate
	cand.absorb(provider.Result{Email: "a@acme.com", Confidence: 0.6}, "icypeas")
	cand.absorb(provider.Result{Phone: "+33612345678", Confidence: 0.8}, "hunter")
	cand.absorb(provider.Result{Email: "b@acme.com", Confidence: 0.5}, "dropcontact")

	if cand.email != "a@acme.com" {
		t.Errorf("expected higher-confidence email to win, got %q", cand.email)
	}
	if cand.phone != "+33612345678" {
		t.Errorf("expected phone from hunter, got %q", cand.phone)
	}
	if cand.bestConfidence != 0.8 {
		t.Errorf("expected best confidence 0.8, got %f", cand.bestConfidence)
	}
}

func TestCandidateAbsorbTieBrokenByProviderOrder(t *testing.T) {
	var cand candidate
	cand.absorb(provider.Result{Email: "a@acme.com", Confidence: 0.7}, "icypeas")
	cand.absorb(provider.Result{Email: "b@acme.com", Confidence: 0.7}, "apollo")

	if cand.email != "a@acme.com" || cand.emailProvider != "icypeas" {
		t.Errorf("expected first-seen provider to win a tie, got %q from %q", cand.email, cand.emailProvider)
	}
}

func TestDecideOutcomeEnrichedWhenEmailOrPhonePresent(t *testing.T) {
	co := &Coordinator{}
	contact := db.Contact{Company: "Acme"}
	cand := candidate{email: "alice@acme.com", emailProvider: "icypeas", bestConfidence: 0.95, totalCost: 0.1}

	got := co.decideOutcome(contact, cand)
	if got.EnrichmentStatus != db.ContactEnriched {
		t.Errorf("expected enriched, got %v", got.EnrichmentStatus)
	}
	if got.Email == nil || *got.Email != "alice@acme.com" {
		t.Errorf("expected email to be set")
	}
	if got.CreditsConsumed != 0.1 {
		t.Errorf("expected credits_consumed 0.1, got %f", got.CreditsConsumed)
	}
}

func TestDecideOutcomeNotFoundWhenNothingAboveThreshold(t *testing.T) {
	co := &Coordinator{}
	got := co.decideOutcome(db.Contact{}, candidate{attempted: 2, hardFailures: 0})
	if got.EnrichmentStatus != db.ContactNotFound {
		t.Errorf("expected not_found, got %v", got.EnrichmentStatus)
	}
}

func TestDecideOutcomeFailedWhenEveryProviderHardFails(t *testing.T) {
	co := &Coordinator{}
	got := co.decideOutcome(db.Contact{}, candidate{attempted: 3, hardFailures: 3})
	if got.EnrichmentStatus != db.ContactFailed {
		t.Errorf("expected failed, got %v", got.EnrichmentStatus)
	}
	if got.FailureReason == nil || *got.FailureReason != "provider_unavailable" {
		t.Errorf("expected provider_unavailable failure reason, got %v", got.FailureReason)
	}
}

func TestLeadScoreFullyVerifiedContactScoresMax(t *testing.T) {
	co := &Coordinator{cfg: Config{TauStop: 0.9}}
	emailVerified := true
	phoneVerified := true
	position := "CTO"
	email := "alice@acme.com"
	phone := "+33612345678"
	contact := db.Contact{
		Company: "Acme", Position: &position,
		Email: &email, EmailVerified: &emailVerified,
		Phone: &phone, PhoneVerified: &phoneVerified,
	}
	score := co.leadScore(contact, candidate{bestConfidence: 0.95})
	if score != 100 {
		t.Errorf("expected max lead score 100, got %d", score)
	}
}

func TestLeadScoreUnverifiedEmailOnlyContact(t *testing.T) {
	co := &Coordinator{cfg: Config{TauStop: 0.9}}
	email := "alice@acme.com"
	contact := db.Contact{Email: &email}
	score := co.leadScore(contact, candidate{bestConfidence: 0.5})
	if score != 25 {
		t.Errorf("expected lead score 25 for unverified email only, got %d", score)
	}
}

func TestCountryHintFromCompanyDomainTLD(t *testing.T) {
	domain := "acme.fr"
	got := countryHint(db.Contact{CompanyDomain: &domain})
	if got != "FR" {
		t.Errorf("expected FR from .fr TLD, got %q", got)
	}
}

func TestCountryHintFallsBackToLocation(t *testing.T) {
	location := "us"
	got := countryHint(db.Contact{Location: &location})
	if got != "US" {
		t.Errorf("expected location fallback, got %q", got)
	}
}

