package linking

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signon/signon/internal/providers"
)

func TestVerifyEmail(t *testing.T) {
	cases := []struct {
		name     string
		provider string
		raw      map[string]any
		want     EmailVerification
	}{
		{"github always verified", "github", nil, EmailVerified},
		{"github verified even with odd claims", "github", map[string]any{"verified": false}, EmailVerified},
		{"discord verified", "discord", map[string]any{"verified": true}, EmailVerified},
		{"discord unverified", "discord", map[string]any{"verified": false}, EmailUnverified},
		{"discord missing flag", "discord", map[string]any{}, EmailUnverified},
		{"google verified", "google", map[string]any{"email_verified": true}, EmailVerified},
		{"google unverified", "google", map[string]any{"email_verified": false}, EmailUnverified},
		{"unknown provider", "myspace", map[string]any{"verified": true}, VerificationUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &providers.Profile{Email: "a@example.com", Raw: tc.raw}
			require.Equal(t, tc.want, VerifyEmail(tc.provider, p))
		})
	}
}
