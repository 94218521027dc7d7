package providers

import (
	"context"

	"golang.org/x/oauth2"
)

// Profile is the normalized set of claims a provider reports about the user.
// Raw keeps the provider-specific fields (e.g. discord's "verified", google's
// "email_verified") so downstream policy can apply per-provider checks.
type Profile struct {
	Subject   string // provider-scoped stable user id
	Email     string
	Name      string
	AvatarURL string
	Raw       map[string]any
}

// Provider is the contract for an external OAuth identity provider.
// Implementations report identity facts only; they make no sign-in decisions
// and never touch the account store.
type Provider interface {
	// Name returns the provider identifier (e.g. "github").
	Name() string

	// AuthCodeURL returns the provider authorization URL for the given
	// anti-CSRF state.
	AuthCodeURL(state string) string

	// Exchange trades the authorization code for tokens and fetches the
	// normalized profile.
	Exchange(ctx context.Context, code string) (*Profile, *oauth2.Token, error)
}
