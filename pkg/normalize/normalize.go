// Package normalize canonicalizes contact identifying fields for matching
// and fingerprinting, without mutating the values stored for display.
package normalize

import (
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Name case-folds and trims a person or company name for matching purposes.
// The caller's original casing is stored; this is only used to compute
// equivalence.
func Name(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// Company normalizes a company name to a canonical form: case-folded,
// whitespace-collapsed, and stripped of common legal suffixes so that
// "Acme Inc." and "ACME" converge on the same fingerprint.
func Company(s string) string {
	n := Name(s)
	for _, suffix := range []string{" inc", " inc.", " llc", " ltd", " ltd.", " corp", " corp.", " co", " co.", " sa", " gmbh"} {
		n = strings.TrimSuffix(n, suffix)
	}
	return strings.TrimSpace(n)
}

// ProfileURL canonicalizes a LinkedIn profile URL: lower-cased host, forced
// https scheme, no trailing slash, no query string.
func ProfileURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSuffix(raw, "/"))
	}
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Fingerprint computes the deterministic cache key for a contact from its
// normalized first name, last name, and company (spec §3). A LinkedIn
// profile URL is not an input here; ProfileFingerprint gives it its own,
// independent fingerprint.
func Fingerprint(firstName, lastName, company string) string {
	data := strings.Join([]string{Name(firstName), Name(lastName), Company(company)}, "|")
	return hashHex(data)
}

// ProfileFingerprint computes the fingerprint contributed by a canonicalized
// LinkedIn profile URL, independent of the name/company fingerprint.
func ProfileFingerprint(profileURL string) string {
	return hashHex("profile|" + ProfileURL(profileURL))
}

func hashHex(s string) string {
	h := blake2b.Sum256([]byte(s))
	return hex.EncodeToString(h[:16])
}
