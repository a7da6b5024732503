package normalize

import "testing"

func TestNameRoundTrip(t *testing.T) {
	cases := []string{"Alice", "  ALICE  Martin ", "bob"}
	for _, c := range cases {
		once := Name(c)
		twice := Name(once)
		if once != twice {
			t.Errorf("Name(%q) not idempotent: %q != %q", c, once, twice)
		}
	}
}

func TestCompanyStripsLegalSuffix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ACME Inc.", "acme"},
		{"Acme LLC", "acme"},
		{"Globex Corp", "globex"},
	}
	for _, tt := range tests {
		if got := Company(tt.in); got != tt.want {
			t.Errorf("Company(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	f1 := Fingerprint("Alice", "Martin", "ACME")
	f2 := Fingerprint(" alice ", "MARTIN", "acme inc.")
	if f1 != f2 {
		t.Errorf("expected equal fingerprints for equivalent inputs, got %q != %q", f1, f2)
	}
}

func TestProfileURLCanonicalization(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://LinkedIn.com/in/alice/", "https://linkedin.com/in/alice"},
		{"https://linkedin.com/in/alice?trk=abc", "https://linkedin.com/in/alice"},
	}
	for _, tt := range tests {
		if got := ProfileURL(tt.in); got != tt.want {
			t.Errorf("ProfileURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
