package verify

import (
	"context"
	"regexp"
	"strings"
)

// PhoneType classifies a verified phone number (spec §4.6).
type PhoneType string

const (
	PhoneMobile   PhoneType = "mobile"
	PhoneLandline PhoneType = "landline"
	PhoneVoIP     PhoneType = "voip"
	PhoneUnknown  PhoneType = "unknown"
)

// numberingPlan is a locally embedded, deterministic table mapping a
// country's E.164 calling code plus national-number prefix ranges to a
// PhoneType. This is necessarily a partial table (a handful of common
// markets); no library in the example corpus provides numbering-plan data,
// so it is carried as a Go table rather than an external dependency
// (documented as a stdlib-justified component in DESIGN.md).
type planEntry struct {
	prefix string
	typ    PhoneType
}

var numberingPlans = map[string][]planEntry{
	"33": { // France
		{prefix: "6", typ: PhoneMobile},
		{prefix: "7", typ: PhoneMobile},
		{prefix: "1", typ: PhoneLandline},
		{prefix: "9", typ: PhoneVoIP},
	},
	"44": { // United Kingdom
		{prefix: "7", typ: PhoneMobile},
		{prefix: "1", typ: PhoneLandline},
		{prefix: "2", typ: PhoneLandline},
		{prefix: "3", typ: PhoneVoIP},
	},
	"1": { // US/Canada — NANP does not distinguish mobile/landline by prefix.
		{prefix: "", typ: PhoneUnknown},
	},
	"49": { // Germany
		{prefix: "15", typ: PhoneMobile},
		{prefix: "16", typ: PhoneMobile},
		{prefix: "17", typ: PhoneMobile},
		{prefix: "30", typ: PhoneLandline},
	},
}

var e164Re = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// PhoneResult carries the outcome of phone parsing and classification.
type PhoneResult struct {
	E164     string
	Type     PhoneType
	Country  string
	Verified bool
}

// HLRConfirmer is the optional pluggable provider contract for phone
// confirmation beyond local numbering-plan validation (spec §4.6).
type HLRConfirmer interface {
	Confirm(ctx context.Context, e164Phone string) (networkType string, reachable bool, err error)
}

// PhoneVerifier parses and classifies phone numbers against the embedded
// numbering plan, optionally confirming via an HLR provider.
type PhoneVerifier struct {
	hlr HLRConfirmer
}

// NewPhoneVerifier creates a PhoneVerifier. hlr may be nil, in which case
// phone_verified reflects parse/plan validation only.
func NewPhoneVerifier(hlr HLRConfirmer) *PhoneVerifier {
	return &PhoneVerifier{hlr: hlr}
}

// Verify parses raw using countryHint (derived from company domain TLD or
// contact location upstream) and classifies it. parsing succeeds and the
// number is allocated in the numbering plan ⇒ phone_verified=true.
func (v *PhoneVerifier) Verify(ctx context.Context, raw, countryHint string) PhoneResult {
	e164, callingCode, ok := toE164(raw, countryHint)
	if !ok {
		return PhoneResult{Type: PhoneUnknown}
	}

	national := strings.TrimPrefix(e164, "+"+callingCode)
	typ, inPlan := classify(callingCode, national)

	result := PhoneResult{
		E164:    e164,
		Type:    typ,
		Country: countryHint,
		// Allocated in the numbering plan ⇒ verified, independent of whether
		// that plan lets us further classify the line type (NANP doesn't).
		Verified: inPlan,
	}

	if v.hlr != nil {
		if networkType, reachable, err := v.hlr.Confirm(ctx, e164); err == nil {
			result.Verified = reachable
			if mapped := PhoneType(strings.ToLower(networkType)); isKnownType(mapped) {
				result.Type = mapped
			}
		}
	}

	return result
}

func isKnownType(t PhoneType) bool {
	switch t {
	case PhoneMobile, PhoneLandline, PhoneVoIP:
		return true
	default:
		return false
	}
}

// toE164 normalizes raw into E.164 form. If raw already starts with '+' it
// is validated as-is; otherwise countryHint's calling code is prefixed.
func toE164(raw, countryHint string) (e164, callingCode string, ok bool) {
	digits := keepDigitsAndPlus(raw)
	if strings.HasPrefix(digits, "+") {
		if !e164Re.MatchString(digits) {
			return "", "", false
		}
		cc := callingCodeFor(countryHint)
		return digits, cc, true
	}

	cc := callingCodeFor(countryHint)
	if cc == "" {
		return "", "", false
	}
	candidate := "+" + cc + strings.TrimPrefix(digits, "0")
	if !e164Re.MatchString(candidate) {
		return "", "", false
	}
	return candidate, cc, true
}

func keepDigitsAndPlus(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var countryCallingCodes = map[string]string{
	"FR": "33", "GB": "44", "UK": "44", "US": "1", "CA": "1", "DE": "49",
}

func callingCodeFor(countryHint string) string {
	return countryCallingCodes[strings.ToUpper(countryHint)]
}

// classify looks up national against callingCode's numbering plan, returning
// the best-matching line type and whether the number is allocated at all.
// NANP (callingCode "1") matches every number unconditionally but can never
// resolve a type, since it doesn't distinguish mobile/landline by prefix —
// that's plan membership without type classification, not a failed lookup.
func classify(callingCode, national string) (typ PhoneType, inPlan bool) {
	plan, ok := numberingPlans[callingCode]
	if !ok {
		return PhoneUnknown, false
	}
	best := PhoneUnknown
	bestLen := -1
	matched := false
	for _, entry := range plan {
		if strings.HasPrefix(national, entry.prefix) && len(entry.prefix) > bestLen {
			best = entry.typ
			bestLen = len(entry.prefix)
			matched = true
		}
	}
	return best, matched
}
