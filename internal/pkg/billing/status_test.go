package billing

import "testing"

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"active", "active"},
		{"ACTIVE", "active"},
		{"  Past_Due ", "past_due"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeStatus(tt.in); got != tt.want {
			t.Fatalf("NormalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidSubscriptionStatus(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"active", true},
		{"trialing", true},
		{"past_due", true},
		{"canceled", true},
		{"incomplete", true},
		{"incomplete_expired", true},
		{"paused", true},
		{"Active", true},
		{" trialing \n", true},
		{"cancelled", false},
		{"unpaid", false},
		{"hyperdrive", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidSubscriptionStatus(tt.in); got != tt.want {
			t.Fatalf("ValidSubscriptionStatus(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
