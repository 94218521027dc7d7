package linking

import (
	"context"
	"time"

	"github.com/signon/signon/internal/accounts"
	"github.com/signon/signon/internal/models"
	"github.com/signon/signon/internal/providers"
	"github.com/signon/signon/internal/sessions"
	"github.com/signon/signon/pkg/logger"
)

// Human-readable messages carried by redirect decisions. Newlines separate
// display lines for the linking page.
const (
	msgUnverifiedEmail = "This provider reported your email address as unverified.\nVerify it with the provider, then try signing in again."
	msgNoVerification  = "Your email address could not be verified by this sign-in method.\nPlease sign in with a provider that verifies your email."
	msgAlreadyLinked   = "This account is already linked to another user."
)

// Attempt is everything one OAuth callback brings to the policy: the
// credential, the provider-reported profile, the tentative user the HTTP
// layer matched or synthesized for the profile email, and the requester's
// current session (nil when unauthenticated). Passing these explicitly keeps
// Decide free of ambient request state.
type Attempt struct {
	Provider          string
	ProviderAccountID string
	AccessToken       string
	RefreshToken      string
	TokenExpiresAt    *time.Time

	Profile       *providers.Profile
	CandidateUser *models.User
	Session       *sessions.Session
}

func (a *Attempt) account() *models.Account {
	return &models.Account{
		Provider:          a.Provider,
		ProviderAccountID: a.ProviderAccountID,
		AccessToken:       a.AccessToken,
		RefreshToken:      a.RefreshToken,
		TokenExpiresAt:    a.TokenExpiresAt,
	}
}

// Policy decides, for each sign-in attempt, whether to create a session,
// merge with an existing user, or bounce to the linking page. Reads and
// writes go through the account store; sessions are read-only input.
type Policy struct {
	store accounts.Store
}

func NewPolicy(store accounts.Store) *Policy {
	return &Policy{store: store}
}

// Decide runs the link-decision steps in fixed order. The cross-user
// ownership check comes first: it is a security gate and must precede the
// unauthenticated/authenticated branching.
func (p *Policy) Decide(ctx context.Context, att *Attempt) Decision {
	existingAccount, err := p.store.FindAccountByProviderID(ctx, att.Provider, att.ProviderAccountID)
	if err != nil {
		logger.Errorf("linking: account lookup failed for %s/%s: %v", att.Provider, att.ProviderAccountID, err)
		return Deny()
	}

	// A credential already owned by a different user can never be claimed.
	if existingAccount != nil && existingAccount.UserID != att.CandidateUser.ID {
		return Deny()
	}

	existingUser, err := p.store.FindUserByEmail(ctx, att.Profile.Email)
	if err != nil {
		logger.Errorf("linking: user lookup failed for %s: %v", att.Profile.Email, err)
		return Deny()
	}

	if att.Session == nil {
		// plain sign-in: gate on the provider's email verification
		switch VerifyEmail(att.Provider, att.Profile) {
		case EmailVerified:
			if u, ok := p.verifyAndUpsert(ctx, att, existingUser, existingAccount); ok {
				return Allow(u)
			}
			return Deny()
		case EmailUnverified:
			return RedirectWith(ReasonUnverifiedEmail, msgUnverifiedEmail)
		default:
			return RedirectWith(ReasonNoVerification, msgNoVerification)
		}
	}

	// Authenticated requester linking a new provider to their account.
	if existingAccount == nil {
		return Allow(att.CandidateUser)
	}
	// Only reachable when the account already belongs to the requester (the
	// cross-user case was denied above); a benign relink, bounced with the
	// historical message.
	return RedirectWith(ReasonAlreadyLinked, msgAlreadyLinked)
}

// verifyAndUpsert reconciles a verified sign-in with the account store.
// Persistence failures are downgraded to a denied attempt, never propagated.
func (p *Policy) verifyAndUpsert(ctx context.Context, att *Attempt, existingUser *models.User, existingAccount *models.Account) (*models.User, bool) {
	switch {
	case existingUser != nil && !existingUser.Verified():
		now := time.Now().UTC()
		u, err := p.store.UpdateUser(ctx, existingUser.ID, accounts.UserUpdate{EmailVerified: &now})
		if err != nil {
			logger.Errorf("linking: failed to mark %s verified: %v", existingUser.ID, err)
			return nil, false
		}
		return u, true

	case existingUser == nil && existingAccount == nil:
		now := time.Now().UTC()
		u := &models.User{
			ID:            att.CandidateUser.ID,
			Email:         att.Profile.Email,
			Name:          att.Profile.Name,
			AvatarURL:     att.Profile.AvatarURL,
			EmailVerified: &now,
		}
		created, err := p.store.CreateUserWithAccount(ctx, u, att.account())
		if err != nil {
			logger.Errorf("linking: failed to create user+account for %s: %v", att.Profile.Email, err)
			return nil, false
		}
		return created, true

	case existingUser != nil:
		// already verified, nothing to reconcile
		return existingUser, true

	default:
		// account row without a matching user: inconsistent, deny
		logger.Warnf("linking: inconsistent state for %s/%s (account without user)", att.Provider, att.ProviderAccountID)
		return nil, false
	}
}
