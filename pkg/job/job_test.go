package job

import (
	"testing"
)

func TestContactInputValidRequiresNameAndCompanyOrProfileURL(t *testing.T) {
	tests := []struct {
		name  string
		input ContactInput
		want  bool
	}{
		{
			name:  "full name and company",
			input: ContactInput{FirstName: "Alice", LastName: "Doe", Company: "Acme"},
			want:  true,
		},
		{
			name:  "profile url alone",
			input: ContactInput{ProfileURL: strPtr("https://linkedin.com/in/alice")},
			want:  true,
		},
		{
			name:  "missing company and profile url",
			input: ContactInput{FirstName: "Alice", LastName: "Doe"},
			want:  false,
		},
		{
			name:  "nothing at all",
			input: ContactInput{},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.input.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func strPtr(s string) *string { return &s }
