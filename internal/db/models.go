package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a Job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobPartial   JobState = "partial"
)

// JobOrigin records which boundary created a Job.
type JobOrigin string

const (
	OriginCSV       JobOrigin = "csv"
	OriginAPI       JobOrigin = "api"
	OriginExtension JobOrigin = "extension"
)

// EnrichmentStatus is the terminal (or pending) state of a Contact.
type EnrichmentStatus string

const (
	ContactPending  EnrichmentStatus = "pending"
	ContactEnriched EnrichmentStatus = "enriched"
	ContactNotFound EnrichmentStatus = "not_found"
	ContactFailed   EnrichmentStatus = "failed"
)

// PhoneType classifies a verified phone number.
type PhoneType string

const (
	PhoneMobile   PhoneType = "mobile"
	PhoneLandline PhoneType = "landline"
	PhoneVoIP     PhoneType = "voip"
	PhoneUnknown  PhoneType = "unknown"
)

// LedgerOperation enumerates credit ledger entry kinds.
type LedgerOperation string

const (
	OpEnrichment  LedgerOperation = "enrichment"
	OpVerification LedgerOperation = "verification"
	OpTopup       LedgerOperation = "topup"
	OpRefund      LedgerOperation = "refund"
	OpCacheHit    LedgerOperation = "cache_hit"
)

// Job is the persisted row for jobs(...).
type Job struct {
	ID          uuid.UUID
	Owner       uuid.UUID
	State       JobState
	Total       int32
	Completed   int32
	Origin      JobOrigin
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Contact is the persisted row for contacts(...).
type Contact struct {
	ID                     uuid.UUID
	JobID                  uuid.UUID
	FirstName              string
	LastName               string
	Position               *string
	Company                string
	CompanyDomain          *string
	ProfileURL             *string
	Location               *string
	Industry               *string
	Email                  *string
	Phone                  *string
	EnrichmentStatus       EnrichmentStatus
	EnrichmentProvider     *string
	EnrichmentScore        *float64
	EmailVerified          *bool
	EmailVerificationScore *float64
	EmailVerificationLevel int32
	IsDisposable           *bool
	IsRoleBased            *bool
	IsCatchall             *bool
	PhoneType              *PhoneType
	PhoneCountry           *string
	PhoneVerified          *bool
	LeadScore              *int32
	EmailReliability       *string
	FailureReason          *string
	CreditsConsumed        float64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ProviderResult is the persisted row for provider_results(...). Append-only.
type ProviderResult struct {
	ID            uuid.UUID
	ContactID     uuid.UUID
	Provider      string
	Email         *string
	Phone         *string
	Confidence    float64
	EmailVerified bool
	PhoneVerified bool
	RawPayload    json.RawMessage
	CreatedAt     time.Time
}

// LedgerEntry is the persisted row for credit_ledger(...). Append-only.
type LedgerEntry struct {
	ID        uuid.UUID
	Seq       int64
	UserID    uuid.UUID
	ContactID *uuid.UUID
	Provider  *string
	Operation LedgerOperation
	Cost      float64
	Success   bool
	Details   json.RawMessage
	CreatedAt time.Time
}

// CreditBalance is the persisted row for credit_balance(...). One per user.
type CreditBalance struct {
	UserID         uuid.UUID
	TotalCredits   float64
	UsedCredits    float64
	ExpiredCredits float64
	UpdatedAt      time.Time
}

// QuotaState is a derived, recomputable projection over the ledger.
type QuotaState struct {
	UserID                    uuid.UUID
	TodayConsumed             float64
	MonthConsumed             float64
	PerProviderMonthConsumed  map[string]float64
}

// GlobalCacheEntry is the persisted row for global_cache(...).
type GlobalCacheEntry struct {
	Fingerprint    string
	Email          *string
	Phone          *string
	Confidence     float64
	SourceProvider string
	LastRefreshed  time.Time
	HitCount       int64
}

// UserContactHistory is the persisted row for user_contact_history(...).
type UserContactHistory struct {
	UserID          uuid.UUID
	Fingerprint     string
	ContactID       uuid.UUID
	FirstEnrichedAt time.Time
}

// AuditLogEntry is the persisted row for audit_log(...). Append-only.
type AuditLogEntry struct {
	ID        uuid.UUID
	Owner     uuid.UUID
	JobID     *uuid.UUID
	Action    string
	Detail    json.RawMessage
	CreatedAt time.Time
}

// Subscription is the billing-layer-owned plan the core only reads from.
type Subscription struct {
	UserID                 uuid.UUID
	Plan                   string
	DailyQuota             *int
	MonthlyQuota           *int
	PerProviderMonthlyQuota *int
	PricePerEnrichment     float64
}
