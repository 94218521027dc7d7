package linking

import "github.com/signon/signon/internal/providers"

// EmailVerification is the three-valued outcome of the provider email check.
type EmailVerification int

const (
	// EmailVerified: the provider vouches for the address.
	EmailVerified EmailVerification = iota
	// EmailUnverified: a known provider reported the address as unverified.
	EmailUnverified
	// VerificationUnavailable: no check exists for this provider.
	VerificationUnavailable
)

// verificationChecks maps a provider name to its email-verification
// predicate over the raw profile claims. GitHub only ever reports confirmed
// addresses; discord and google carry an explicit flag.
var verificationChecks = map[string]func(p *providers.Profile) bool{
	"github": func(*providers.Profile) bool { return true },
	"discord": func(p *providers.Profile) bool {
		v, _ := p.Raw["verified"].(bool)
		return v
	},
	"google": func(p *providers.Profile) bool {
		v, _ := p.Raw["email_verified"].(bool)
		return v
	},
}

// VerifyEmail evaluates the provider-specific check once and reports whether
// the profile email is verified, unverified, or unverifiable.
func VerifyEmail(provider string, p *providers.Profile) EmailVerification {
	check, ok := verificationChecks[provider]
	if !ok {
		return VerificationUnavailable
	}
	if check(p) {
		return EmailVerified
	}
	return EmailUnverified
}
