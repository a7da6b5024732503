// Package cascade implements the per-contact Cascade Coordinator (spec §4.3):
// consult the cache, precheck quotas, walk the configured provider order,
// decide an outcome, run verification, and persist. It is the state machine
// the Job Manager's worker pool invokes once per contact: a tiered,
// threshold-driven walk that stops as soon as confidence clears the bar
// instead of always running every provider.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/captely/core/internal/db"
	"github.com/captely/core/pkg/cache"
	"github.com/captely/core/pkg/ledger"
	"github.com/captely/core/pkg/normalize"
	"github.com/captely/core/pkg/provider"
	"github.com/captely/core/pkg/verify"
)

// Notifier delivers cascade-level events to an external collaborator (spec
// §6). JobProgress/JobCompleted are the Job Manager's responsibility; the
// Coordinator only ever raises LowCredit, since it is the only component that
// observes a balance immediately after consumption.
type Notifier interface {
	LowCredit(ctx context.Context, userID uuid.UUID, remaining float64)
}

// Config tunes the Coordinator's thresholds and deadlines (spec §6 cascade.*,
// verification.*, quota.* keys).
type Config struct {
	TauMin              float64
	TauStop             float64
	ContactDeadline     time.Duration
	ProviderCallTimeout time.Duration
	EnrichmentUnitPrice float64
	Quotas              ledger.Quotas
	LowCreditThreshold  float64
}

// Coordinator wires together every leaf component the cascade depends on:
// provider set, rate limiter, circuit breakers, cache, ledger, and the
// verification pipelines. It holds no process-wide singleton state of its
// own — everything it touches is injected, per the Engine pattern in
// SPEC_FULL.md's DESIGN NOTES.
type Coordinator struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	cfg    Config

	providers *provider.Set
	limiter   *provider.Limiter
	breakers  *provider.Breakers

	cacheStore    *cache.Store
	ledger        *ledger.Ledger
	emailVerifier *verify.EmailVerifier
	phoneVerifier *verify.PhoneVerifier

	notifier Notifier

	enrichmentsTotal *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	cascadeDuration  prometheus.Histogram
}

// New constructs a Coordinator. notifier, enrichmentsTotal, providerCalls,
// and cascadeDuration may be nil (tests and some deployments forgo metrics
// and notification).
func New(
	pool *pgxpool.Pool,
	logger *slog.Logger,
	cfg Config,
	providers *provider.Set,
	limiter *provider.Limiter,
	breakers *provider.Breakers,
	cacheStore *cache.Store,
	creditLedger *ledger.Ledger,
	emailVerifier *verify.EmailVerifier,
	phoneVerifier *verify.PhoneVerifier,
	notifier Notifier,
	enrichmentsTotal *prometheus.CounterVec,
	providerCalls *prometheus.CounterVec,
	cascadeDuration prometheus.Histogram,
) *Coordinator {
	return &Coordinator{
		pool: pool, logger: logger, cfg: cfg,
		providers: providers, limiter: limiter, breakers: breakers,
		cacheStore: cacheStore, ledger: creditLedger,
		emailVerifier: emailVerifier, phoneVerifier: phoneVerifier,
		notifier: notifier,
		enrichmentsTotal: enrichmentsTotal, providerCalls: providerCalls, cascadeDuration: cascadeDuration,
	}
}

// candidate accumulates the cascade walk's best-so-far email and phone,
// independently, per spec §4.3 step 4 ("per-field: highest confidence wins;
// ties broken by provider order").
type candidate struct {
	email           string
	emailConfidence float64
	emailProvider   string

	phone           string
	phoneConfidence float64
	phoneProvider   string

	bestConfidence float64
	totalCost      float64

	attempted    int
	hardFailures int
}

func (c *candidate) absorb(r provider.Result, providerName string) {
	if r.Email != "" && r.Confidence > c.emailConfidence {
		c.email = r.Email
		c.emailConfidence = r.Confidence
		c.emailProvider = providerName
	}
	if r.Phone != "" && r.Confidence > c.phoneConfidence {
		c.phone = r.Phone
		c.phoneConfidence = r.Confidence
		c.phoneProvider = providerName
	}
	if r.Confidence > c.bestConfidence {
		c.bestConfidence = r.Confidence
	}
}

// Process runs the full cascade for one contact and returns its final state.
// The caller (pkg/job's worker) is responsible for skipping contacts already
// in a terminal enrichment_status, per the restart-resumption idempotency
// rule in spec §4.7.
func (co *Coordinator) Process(ctx context.Context, job db.Job, contact db.Contact) (db.Contact, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, co.cfg.ContactDeadline)
	defer cancel()

	fingerprint := normalize.Fingerprint(contact.FirstName, contact.LastName, contact.Company)
	var profileFingerprint string
	if contact.ProfileURL != nil && *contact.ProfileURL != "" {
		profileFingerprint = normalize.ProfileFingerprint(*contact.ProfileURL)
	}

	if updated, hit, err := co.consultCache(ctx, job.Owner, contact, fingerprint, profileFingerprint); err != nil {
		return contact, err
	} else if hit {
		co.finish(job, updated, start)
		return updated, nil
	}

	ok, reason, err := co.ledger.PrecheckQuotas(ctx, job.Owner, co.cfg.Quotas, co.providers.MaxCost())
	if err != nil {
		return contact, fmt.Errorf("prechecking quotas: %w", err)
	}
	if !ok {
		updated := contact
		updated.EnrichmentStatus = db.ContactFailed
		reasonStr := string(reason)
		updated.FailureReason = &reasonStr
		if err := co.persist(ctx, &updated); err != nil {
			return contact, err
		}
		co.finish(job, updated, start)
		return updated, nil
	}

	cand, err := co.walkCascade(ctx, job.Owner, contact)
	if err != nil {
		return contact, err
	}

	updated := co.decideOutcome(contact, cand)
	co.postProcess(ctx, &updated, cand)

	if err := co.persist(ctx, &updated); err != nil {
		return contact, err
	}

	if updated.EnrichmentStatus == db.ContactEnriched {
		if err := co.recordFirstSeen(ctx, job.Owner, updated, fingerprint, profileFingerprint, cand); err != nil {
			co.logger.Error("recording cache entry after fresh enrichment", "error", err, "contact_id", updated.ID)
		}
	}

	co.finish(job, updated, start)
	return updated, nil
}

// consultCache implements spec §4.3 step 1. A user-duplicate hit is free; a
// global hit at or above τ_min charges the normal enrichment price and is
// attributed to cache_global rather than any provider.
func (co *Coordinator) consultCache(ctx context.Context, userID uuid.UUID, contact db.Contact, fingerprint, profileFingerprint string) (db.Contact, bool, error) {
	lookup, err := co.cacheStore.Lookup(ctx, co.pool, userID, fingerprint)
	if err != nil {
		return contact, false, fmt.Errorf("cache lookup: %w", err)
	}
	matched := fingerprint
	if !lookup.Hit && profileFingerprint != "" {
		lookup, err = co.cacheStore.Lookup(ctx, co.pool, userID, profileFingerprint)
		if err != nil {
			return contact, false, fmt.Errorf("cache lookup by profile fingerprint: %w", err)
		}
		matched = profileFingerprint
	}
	if !lookup.Hit {
		return contact, false, nil
	}
	if !lookup.UserDuplicate && lookup.Confidence < co.cfg.TauMin {
		// A stale or low-confidence global entry is not authoritative enough
		// to short-circuit; fall through to the cascade.
		return contact, false, nil
	}

	updated := contact
	if lookup.Email != "" {
		updated.Email = &lookup.Email
	}
	if lookup.Phone != "" {
		updated.Phone = &lookup.Phone
	}
	updated.EnrichmentStatus = db.ContactEnriched
	confidence := lookup.Confidence
	updated.EnrichmentScore = &confidence

	cost := 0.0
	providerLabel := "cache_user_duplicate"
	var details map[string]any
	if !lookup.UserDuplicate {
		cost = co.cfg.EnrichmentUnitPrice
		providerLabel = "cache_global"
		saved := 0.0
		if src, ok := co.providers.Get(lookup.SourceProvider); ok {
			saved = src.Cost()
		}
		details = map[string]any{"api_cost_saved": saved, "source_provider": lookup.SourceProvider}
	}
	updated.EnrichmentProvider = &providerLabel

	chargeResult, err := co.ledger.Charge(ctx, co.cfg.Quotas, ledger.ChargeParams{
		UserID: userID, ContactID: &updated.ID, Provider: &providerLabel,
		Operation: db.OpEnrichment, Cost: cost, Details: details,
	})
	if err != nil {
		return contact, false, fmt.Errorf("charging cache hit: %w", err)
	}
	if !chargeResult.Accepted {
		updated.EnrichmentStatus = db.ContactFailed
		reason := string(chargeResult.Reason)
		updated.FailureReason = &reason
		if err := co.persist(ctx, &updated); err != nil {
			return contact, false, err
		}
		return updated, true, nil
	}
	updated.CreditsConsumed += cost

	if !lookup.UserDuplicate {
		if err := co.cacheStore.RecordUserDuplicate(ctx, co.pool, userID, updated.ID, matched); err != nil {
			co.logger.Warn("recording user contact history after global cache hit", "error", err, "contact_id", updated.ID)
		}
	}

	co.postProcess(ctx, &updated, candidate{bestConfidence: lookup.Confidence})

	if err := co.persist(ctx, &updated); err != nil {
		return contact, false, err
	}
	return updated, true, nil
}

// walkCascade implements spec §4.3 step 3: iterate providers cheapest-first,
// skipping those over their per-user monthly cap or circuit-open, acquiring
// a rate limiter token, calling Lookup, and charging on an accepted result.
func (co *Coordinator) walkCascade(ctx context.Context, userID uuid.UUID, contact db.Contact) (candidate, error) {
	var cand candidate

	qs, err := co.ledger.QuotaState(ctx, userID)
	if err != nil {
		return cand, fmt.Errorf("reading quota state for cascade walk: %w", err)
	}

	for _, adapter := range co.providers.Ordered() {
		if ctx.Err() != nil {
			break
		}

		name := adapter.Name()

		if co.cfg.Quotas.PerProviderMonth > 0 && qs.PerProviderMonthConsumed[name]+adapter.Cost() > co.cfg.Quotas.PerProviderMonth {
			continue
		}
		if !co.breakers.IsAvailable(name) {
			continue
		}

		cand.attempted++
		// Retry-with-backoff on rate_limited/transient_network responses happens
		// inside the adapter, up to its provider-specific cap (spec §4.1). A
		// rate limiter rejection in callProvider is returned without a retry.
		// The Coordinator itself never retries a provider call.
		result, callErr := co.callProvider(ctx, adapter, contact)

		if callErr != nil {
			code := provider.CodeOf(callErr)
			co.observeProviderCall(name, "failure")

			if code == provider.FailureNotFound {
				co.breakers.RecordSuccess(name)
				co.recordProviderResult(ctx, contact.ID, name, nil, 0)
				continue
			}

			co.breakers.RecordFailure(name)
			cand.hardFailures++
			co.recordProviderResult(ctx, contact.ID, name, nil, 0)

			// A retryable failure (rate_limited, transient_network) is recorded
			// by the breaker, not the ledger: no provider work was actually
			// consumed.
			if !provider.IsRetryable(callErr) {
				if recErr := co.ledger.RecordFailedAttempt(ctx, userID, contact.ID, name, db.OpEnrichment); recErr != nil {
					co.logger.Error("recording failed provider attempt", "error", recErr, "provider", name)
				}
			}
			continue
		}

		co.breakers.RecordSuccess(name)
		co.observeProviderCall(name, "success")
		co.recordProviderResult(ctx, contact.ID, name, &result, result.Confidence)

		if result.Confidence < co.cfg.TauMin {
			continue
		}

		chargeResult, err := co.ledger.Charge(ctx, co.cfg.Quotas, ledger.ChargeParams{
			UserID: userID, ContactID: &contact.ID, Provider: &name,
			Operation: db.OpEnrichment, Cost: adapter.Cost(),
		})
		if err != nil {
			return cand, fmt.Errorf("charging provider call: %w", err)
		}
		if !chargeResult.Accepted {
			// Quota was exhausted by a concurrent charge between precheck and
			// now; stop walking rather than accumulate further debt.
			break
		}

		cand.absorb(result, name)
		cand.totalCost += adapter.Cost()

		if result.Confidence >= co.cfg.TauStop {
			break
		}
	}

	return cand, nil
}

// callProvider acquires a rate limiter token and invokes the adapter under a
// per-call deadline (spec §4.2, §5).
func (co *Coordinator) callProvider(ctx context.Context, adapter provider.Adapter, contact db.Contact) (provider.Result, error) {
	name := adapter.Name()
	if err := co.limiter.AcquireWithDeadline(ctx, name, co.cfg.ProviderCallTimeout); err != nil {
		return provider.Result{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, co.cfg.ProviderCallTimeout)
	defer cancel()

	normalized := provider.Contact{
		FirstName: normalize.Name(contact.FirstName),
		LastName:  normalize.Name(contact.LastName),
		Company:   normalize.Company(contact.Company),
	}
	if contact.Position != nil {
		normalized.Position = *contact.Position
	}
	if contact.CompanyDomain != nil {
		normalized.CompanyDomain = *contact.CompanyDomain
	}
	if contact.ProfileURL != nil {
		normalized.ProfileURL = normalize.ProfileURL(*contact.ProfileURL)
	}
	if contact.Location != nil {
		normalized.Location = *contact.Location
	}

	return adapter.Lookup(callCtx, normalized)
}

func (co *Coordinator) recordProviderResult(ctx context.Context, contactID uuid.UUID, providerName string, result *provider.Result, confidence float64) {
	q := db.New(co.pool)
	params := db.InsertProviderResultParams{ID: uuid.New(), ContactID: contactID, Provider: providerName, Confidence: confidence}
	if result != nil {
		if result.Email != "" {
			email := result.Email
			params.Email = &email
		}
		if result.Phone != "" {
			phone := result.Phone
			params.Phone = &phone
		}
		params.RawPayload = result.Raw
	}
	if _, err := q.InsertProviderResult(ctx, params); err != nil {
		co.logger.Error("recording provider result", "error", err, "provider", providerName, "contact_id", contactID)
	}
}

// decideOutcome implements spec §4.3 step 4.
func (co *Coordinator) decideOutcome(contact db.Contact, cand candidate) db.Contact {
	updated := contact
	updated.CreditsConsumed += cand.totalCost

	switch {
	case cand.email != "" || cand.phone != "":
		updated.EnrichmentStatus = db.ContactEnriched
		score := cand.bestConfidence
		updated.EnrichmentScore = &score

		var chosenProvider string
		if cand.email != "" {
			updated.Email = &cand.email
			chosenProvider = cand.emailProvider
		}
		if cand.phone != "" {
			updated.Phone = &cand.phone
			if chosenProvider == "" {
				chosenProvider = cand.phoneProvider
			}
		}
		updated.EnrichmentProvider = &chosenProvider

	case cand.attempted > 0 && cand.hardFailures == cand.attempted:
		updated.EnrichmentStatus = db.ContactFailed
		reason := "provider_unavailable"
		updated.FailureReason = &reason

	default:
		updated.EnrichmentStatus = db.ContactNotFound
	}

	return updated
}

// postProcess implements spec §4.3 step 5: verification, phone
// classification, lead score, and email reliability.
func (co *Coordinator) postProcess(ctx context.Context, contact *db.Contact, cand candidate) {
	if contact.Email != nil && *contact.Email != "" {
		res := co.emailVerifier.Verify(ctx, *contact.Email)
		verified := res.Verified
		contact.EmailVerified = &verified
		score := res.Score
		contact.EmailVerificationScore = &score
		contact.EmailVerificationLevel = int32(res.Level)
		disposable := res.IsDisposable
		contact.IsDisposable = &disposable
		roleBased := res.IsRoleBased
		contact.IsRoleBased = &roleBased
		catchall := res.IsCatchall
		contact.IsCatchall = &catchall
		reliability := string(res.Reliability)
		contact.EmailReliability = &reliability
	} else {
		reliability := string(verify.ReliabilityNoEmail)
		contact.EmailReliability = &reliability
	}

	if contact.Phone != nil && *contact.Phone != "" {
		hint := countryHint(*contact)
		res := co.phoneVerifier.Verify(ctx, *contact.Phone, hint)
		if res.E164 != "" {
			e164 := res.E164
			contact.Phone = &e164
		}
		phoneType := db.PhoneType(res.Type)
		contact.PhoneType = &phoneType
		country := res.Country
		contact.PhoneCountry = &country
		verified := res.Verified
		contact.PhoneVerified = &verified
	}

	score := co.leadScore(*contact, cand)
	contact.LeadScore = &score
}

// leadScore resolves spec §9's open question on lead-score weighting with a
// fixed, deterministic formula: presence and verification of each channel
// dominate, with smaller credit for profile completeness and a
// high-confidence cascade result. A contact scores 100 only when email and
// phone are both present and verified, company and position are set, and the
// cascade confidence reached TauStop.
func (co *Coordinator) leadScore(contact db.Contact, cand candidate) int32 {
	var score float64
	if contact.Email != nil && *contact.Email != "" {
		score += 25
	}
	if contact.EmailVerified != nil && *contact.EmailVerified {
		score += 25
	}
	if contact.Phone != nil && *contact.Phone != "" {
		score += 15
	}
	if contact.PhoneVerified != nil && *contact.PhoneVerified {
		score += 15
	}
	if contact.Company != "" && contact.Position != nil && *contact.Position != "" {
		score += 10
	}
	if cand.bestConfidence >= co.cfg.TauStop {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return int32(score)
}

func (co *Coordinator) persist(ctx context.Context, contact *db.Contact) error {
	q := db.New(co.pool)
	if err := q.UpdateContactEnrichment(ctx, *contact); err != nil {
		return fmt.Errorf("persisting contact: %w", err)
	}
	return nil
}

// recordFirstSeen persists global cache and user-history rows for a freshly
// enriched contact (spec §4.3 step 6). Both the name/company fingerprint and
// the LinkedIn profile fingerprint (when present) contribute an independent
// cache entry, per spec §3.
func (co *Coordinator) recordFirstSeen(ctx context.Context, userID uuid.UUID, contact db.Contact, fingerprint, profileFingerprint string, cand candidate) error {
	email, phone := "", ""
	if contact.Email != nil {
		email = *contact.Email
	}
	if contact.Phone != nil {
		phone = *contact.Phone
	}
	sourceProvider := ""
	if contact.EnrichmentProvider != nil {
		sourceProvider = *contact.EnrichmentProvider
	}

	if err := co.cacheStore.RecordFirstSeen(ctx, co.pool, userID, contact.ID, fingerprint, email, phone, cand.bestConfidence, sourceProvider); err != nil {
		return err
	}
	if profileFingerprint != "" {
		if err := co.cacheStore.RecordFirstSeen(ctx, co.pool, userID, contact.ID, profileFingerprint, email, phone, cand.bestConfidence, sourceProvider); err != nil {
			return err
		}
	}
	return nil
}

// finish increments the job's completed counter, records cascade duration,
// and raises LowCredit when the user's post-consumption balance falls below
// the configured threshold (spec §6 LowCredit event).
func (co *Coordinator) finish(job db.Job, contact db.Contact, start time.Time) {
	q := db.New(co.pool)
	if err := q.IncrementJobCompleted(context.Background(), job.ID); err != nil {
		co.logger.Error("incrementing job progress", "error", err, "job_id", job.ID)
	}

	if co.cascadeDuration != nil {
		co.cascadeDuration.Observe(time.Since(start).Seconds())
	}
	if co.enrichmentsTotal != nil {
		co.enrichmentsTotal.WithLabelValues(string(contact.EnrichmentStatus)).Inc()
	}

	if co.notifier != nil {
		if _, _, remaining, err := co.ledger.Balance(context.Background(), job.Owner); err == nil {
			if remaining < co.cfg.LowCreditThreshold {
				co.notifier.LowCredit(context.Background(), job.Owner, remaining)
			}
		}
	}
}

func (co *Coordinator) observeProviderCall(providerName, outcome string) {
	if co.providerCalls == nil {
		return
	}
	co.providerCalls.WithLabelValues(providerName, outcome).Inc()
}

// countryHint derives a phone-parsing country hint from the contact's
// company domain TLD or, failing that, its location field (spec §4.6).
func countryHint(contact db.Contact) string {
	if contact.CompanyDomain != nil {
		if idx := strings.LastIndex(*contact.CompanyDomain, "."); idx != -1 && idx+1 < len(*contact.CompanyDomain) {
			if hint, ok := tldCountryHints[strings.ToLower((*contact.CompanyDomain)[idx+1:])]; ok {
				return hint
			}
		}
	}
	if contact.Location != nil && *contact.Location != "" {
		return strings.ToUpper(*contact.Location)
	}
	return ""
}

var tldCountryHints = map[string]string{
	"fr": "FR",
	"uk": "GB",
	"co.uk": "GB",
	"de": "DE",
	"us": "US",
}
