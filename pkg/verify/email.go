// Package verify implements the email verification pipeline (spec §4.5) and
// phone classification (spec §4.6). L1 through L3 always run, whatever the
// earlier levels found; L4 (SMTP) runs only when it is enabled and L3 found
// a mail host.
package verify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"regexp"
	"strings"
	"time"
)

// Reliability is the categorical summary of an email's verification score.
type Reliability string

const (
	ReliabilityExcellent Reliability = "excellent"
	ReliabilityGood      Reliability = "good"
	ReliabilityFair      Reliability = "fair"
	ReliabilityPoor      Reliability = "poor"
	ReliabilityUnknown   Reliability = "unknown"
	ReliabilityNoEmail   Reliability = "no_email"
)

// EmailResult carries every flag and score the pipeline produces.
type EmailResult struct {
	Score         float64
	Verified      bool
	IsDisposable  bool
	IsRoleBased   bool
	IsCatchall    bool
	Level         int
	Reliability   Reliability
}

var localPartRe = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+$`)

// roleLocalParts are local-parts that identify a shared mailbox rather than
// a person.
var roleLocalParts = map[string]bool{
	"info": true, "contact": true, "support": true, "sales": true, "admin": true,
	"hello": true, "team": true, "office": true, "help": true, "billing": true,
}

// EmailVerifier runs the escalating L1-L4 checks. SMTP (L4) is optional and
// gated by smtpEnabled, which the engine takes from VerificationSMTPEnabled
// (on by default).
type EmailVerifier struct {
	disposableDomains map[string]bool
	smtpEnabled       bool
	smtpProbeFrom     string
	resolver          Resolver
}

// Resolver is the subset of net.Resolver the pipeline depends on, so tests
// can substitute a fake without touching the network.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// NewEmailVerifier creates an EmailVerifier. disposableDomains is a set of
// known throwaway-email domains.
func NewEmailVerifier(disposableDomains map[string]bool, smtpEnabled bool, smtpProbeFrom string, resolver Resolver) *EmailVerifier {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &EmailVerifier{
		disposableDomains: disposableDomains,
		smtpEnabled:       smtpEnabled,
		smtpProbeFrom:     smtpProbeFrom,
		resolver:          resolver,
	}
}

// Verify runs L1 through L4 (if enabled) against email and returns the
// composite result. A domain-only address (no local part) is treated as
// inconclusive and not verified, per spec §9.
func (v *EmailVerifier) Verify(ctx context.Context, email string) EmailResult {
	if email == "" {
		return EmailResult{Reliability: ReliabilityNoEmail}
	}

	local, domain, ok := splitEmail(email)
	if !ok || local == "" {
		return EmailResult{Reliability: ReliabilityNoEmail}
	}

	var result EmailResult
	var score float64

	// L1: syntax.
	syntaxOK := v.l1Syntax(local, domain)
	result.IsDisposable = v.disposableDomains[strings.ToLower(domain)]
	result.IsRoleBased = roleLocalParts[strings.ToLower(local)]
	result.Level = 1
	if syntaxOK {
		score += 0.2
	}

	// L2: domain existence.
	if v.l2DomainExists(ctx, domain) {
		score += 0.2
		result.Level = 2
	}

	// L3: MX resolution.
	mxRecords, mxOK := v.l3MX(ctx, domain)
	if mxOK {
		score += 0.3
		result.Level = 3
	}

	// L4: SMTP probe (optional) — also where catch-all detection happens,
	// since both require the same connection to the mail server.
	if v.smtpEnabled && mxOK {
		verdict, catchall := v.l4SMTP(mxRecords, email)
		result.IsCatchall = catchall
		switch verdict {
		case smtpPositive:
			score += 0.3
			result.Level = 4
		case smtpNegative:
			result.Level = 4
		case smtpInconclusive:
			// Treated as neutral per spec §4.5: 4xx is inconclusive, not negative.
		}
	}

	result.Score = score
	result.Verified = score >= 0.7 && !result.IsDisposable
	result.Reliability = reliabilityFor(score, result.IsCatchall)
	return result
}

func reliabilityFor(score float64, catchall bool) Reliability {
	var tier Reliability
	switch {
	case score >= 0.9:
		tier = ReliabilityExcellent
	case score >= 0.7:
		tier = ReliabilityGood
	case score >= 0.5:
		tier = ReliabilityFair
	default:
		tier = ReliabilityPoor
	}

	// Catch-all unconditionally caps reliability at fair (spec §4.5): it
	// never upgrades a poor score, only downgrades excellent/good.
	if catchall && (tier == ReliabilityExcellent || tier == ReliabilityGood) {
		return ReliabilityFair
	}
	return tier
}

func splitEmail(email string) (local, domain string, ok bool) {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", "", false
	}
	return email[:at], email[at+1:], true
}

func (v *EmailVerifier) l1Syntax(local, domain string) bool {
	if len(local) == 0 || len(local) > 64 || len(domain) == 0 || len(domain) > 255 {
		return false
	}
	if !localPartRe.MatchString(local) {
		return false
	}
	return strings.Contains(domain, ".")
}

func (v *EmailVerifier) l2DomainExists(ctx context.Context, domain string) bool {
	addrs, err := v.resolver.LookupHost(ctx, domain)
	return err == nil && len(addrs) > 0
}

func (v *EmailVerifier) l3MX(ctx context.Context, domain string) (mxs []*net.MX, ok bool) {
	mxs, err := v.resolver.LookupMX(ctx, domain)
	if err != nil || len(mxs) == 0 {
		// RFC fallback: no MX, use A/AAAA instead.
		return nil, v.l2DomainExists(ctx, domain)
	}
	return mxs, true
}

type smtpVerdict int

const (
	smtpInconclusive smtpVerdict = iota
	smtpPositive
	smtpNegative
)

// l4SMTP connects to the domain's highest-priority MX and issues MAIL
// FROM/RCPT TO without DATA (spec §4.5). Catch-all detection probes a
// random local-part on the same connection: if the server accepts it too,
// the domain accepts anything and reliability is capped at fair. Many
// servers grey-list; a 4xx response is inconclusive, never negative.
func (v *EmailVerifier) l4SMTP(mxs []*net.MX, email string) (verdict smtpVerdict, catchall bool) {
	if len(mxs) == 0 {
		return smtpInconclusive, false
	}

	host := strings.TrimSuffix(mxs[0].Host, ".")
	addr := fmt.Sprintf("%s:25", host)

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return smtpInconclusive, false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(8 * time.Second))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return smtpInconclusive, false
	}
	defer client.Close()

	if err := client.Mail(v.smtpProbeFrom); err != nil {
		return smtpInconclusive, false
	}

	verdict = probeRecipient(client, email)

	domain := email[strings.LastIndex(email, "@")+1:]
	randomAddr := "nonexistent-" + randomToken() + "@" + domain
	catchallVerdict := probeRecipient(client, randomAddr)
	catchall = catchallVerdict == smtpPositive

	return verdict, catchall
}

func probeRecipient(client *smtp.Client, addr string) smtpVerdict {
	err := client.Rcpt(addr)
	if err == nil {
		return smtpPositive
	}
	if textErr, ok := smtpStatusCode(err); ok {
		if textErr == 550 {
			return smtpNegative
		}
		if textErr >= 400 && textErr < 500 {
			return smtpInconclusive
		}
	}
	return smtpInconclusive
}

func smtpStatusCode(err error) (int, bool) {
	var code int
	if _, scanErr := fmt.Sscanf(err.Error(), "%d", &code); scanErr == nil {
		return code, true
	}
	return 0, false
}

func randomToken() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
