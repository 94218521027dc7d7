package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/signon/signon/internal/accounts"
	"github.com/signon/signon/internal/avatars"
	"github.com/signon/signon/internal/config"
	"github.com/signon/signon/internal/linking"
	"github.com/signon/signon/internal/models"
	"github.com/signon/signon/internal/providers"
	"github.com/signon/signon/internal/sessions"
	"github.com/signon/signon/pkg/logger"
	"github.com/signon/signon/pkg/metrics"
)

const (
	stateCookie   = "signon_state"
	stateCookieAge = 600 // seconds
	errorPath     = "/auth/error"
)

// AuthHandler drives the OAuth sign-in flow: it sends the browser to the
// provider, receives the callback, asks the link policy for a decision and
// enforces it (session creation, account linking, or a redirect).
type AuthHandler struct {
	cfg         *config.Config
	store       accounts.Store
	sessionsSvc *sessions.Service
	registry    *providers.Registry
	policy      *linking.Policy
	avatarsSvc  *avatars.Service // optional, may be nil
}

func NewAuthHandler(cfg *config.Config, store accounts.Store, s *sessions.Service, reg *providers.Registry, pol *linking.Policy, av *avatars.Service) *AuthHandler {
	return &AuthHandler{cfg: cfg, store: store, sessionsSvc: s, registry: reg, policy: pol, avatarsSvc: av}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.GET("/signin/:provider", h.SignIn)
	a.GET("/callback/:provider", h.Callback)
	a.POST("/logout", h.Logout)
	a.GET("/linkaccount", h.LinkAccount)
	a.GET("/error", h.SignInError)
}

// SignIn redirects the browser to the provider's authorization page with a
// fresh anti-CSRF state bound to a short-lived cookie.
func (h *AuthHandler) SignIn(c *gin.Context) {
	p, err := h.registry.Get(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate state"})
		return
	}
	state := hex.EncodeToString(b)
	c.SetCookie(stateCookie, state, stateCookieAge, "/", h.cfg.Session.CookieDomain, h.cfg.Session.Secure, true)
	c.Redirect(http.StatusFound, p.AuthCodeURL(state))
}

// Callback handles the provider redirect: code exchange, link decision,
// enforcement.
func (h *AuthHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	providerName := c.Param("provider")

	p, err := h.registry.Get(providerName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if e := c.Query("error"); e != "" {
		logger.Warnf("callback: provider %s returned error=%s", providerName, e)
		c.Redirect(http.StatusFound, errorPath)
		return
	}

	// anti-CSRF state check against the cookie set by SignIn
	wantState, err := c.Cookie(stateCookie)
	c.SetCookie(stateCookie, "", -1, "/", h.cfg.Session.CookieDomain, h.cfg.Session.Secure, true)
	if err != nil || wantState == "" || c.Query("state") != wantState {
		logger.Warnf("callback: state mismatch for provider %s", providerName)
		c.Redirect(http.StatusFound, errorPath)
		return
	}

	profile, token, err := p.Exchange(ctx, c.Query("code"))
	if err != nil {
		logger.Errorf("callback: exchange failed for %s: %v", providerName, err)
		c.Redirect(http.StatusFound, errorPath)
		return
	}

	sess := h.currentSession(c)

	candidate, err := h.candidateUser(ctx, sess, providerName, profile)
	if err != nil {
		logger.Errorf("callback: candidate lookup failed: %v", err)
		c.Redirect(http.StatusFound, errorPath)
		return
	}

	att := &linking.Attempt{
		Provider:          providerName,
		ProviderAccountID: profile.Subject,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		Profile:           profile,
		CandidateUser:     candidate,
		Session:           sess,
	}
	if !token.Expiry.IsZero() {
		exp := token.Expiry.UTC()
		att.TokenExpiresAt = &exp
	}

	d := h.policy.Decide(ctx, att)
	metrics.SignInDecisions.WithLabelValues(providerName, d.Outcome.String()).Inc()

	switch d.Outcome {
	case linking.OutcomeRedirect:
		c.Redirect(http.StatusFound, d.RedirectURL())
	case linking.OutcomeAllow:
		if sess != nil {
			h.finishLink(c, d.User, att)
		} else {
			h.finishSignIn(c, d.User, att)
		}
	default:
		c.Redirect(http.StatusFound, errorPath)
	}
}

// finishSignIn links the credential when it is new and opens a session.
func (h *AuthHandler) finishSignIn(c *gin.Context, u *models.User, att *linking.Attempt) {
	ctx := c.Request.Context()

	if err := h.ensureLinked(ctx, u, att); err != nil {
		logger.Errorf("sign-in: linking %s/%s failed: %v", att.Provider, att.ProviderAccountID, err)
		c.Redirect(http.StatusFound, errorPath)
		return
	}

	tok, err := h.sessionsSvc.Create(ctx, u.ID, h.cfg.Session.TTL)
	if err != nil {
		logger.Errorf("sign-in: failed to create session for %s: %v", u.ID, err)
		c.Redirect(http.StatusFound, errorPath)
		return
	}
	c.SetCookie(h.cfg.Session.CookieName, tok, int(h.cfg.Session.TTL.Seconds()), "/", h.cfg.Session.CookieDomain, h.cfg.Session.Secure, true)

	h.mirrorAvatar(u)

	c.Redirect(http.StatusFound, h.cfg.Server.SignInTarget)
}

// finishLink attaches the new provider credential to the signed-in user.
func (h *AuthHandler) finishLink(c *gin.Context, u *models.User, att *linking.Attempt) {
	acct := &models.Account{
		UserID:            u.ID,
		Provider:          att.Provider,
		ProviderAccountID: att.ProviderAccountID,
		AccessToken:       att.AccessToken,
		RefreshToken:      att.RefreshToken,
		TokenExpiresAt:    att.TokenExpiresAt,
	}
	if _, err := h.store.CreateAccount(c.Request.Context(), acct); err != nil {
		if errors.Is(err, accounts.ErrDuplicate) {
			// lost a race against a concurrent link of the same credential
			c.Redirect(http.StatusFound, linking.RedirectWith(linking.ReasonAlreadyLinked, "This account is already linked to another user.").RedirectURL())
			return
		}
		logger.Errorf("link: failed to create account %s/%s: %v", att.Provider, att.ProviderAccountID, err)
		c.Redirect(http.StatusFound, errorPath)
		return
	}
	c.Redirect(http.StatusFound, linking.MessageURL("Account linked."))
}

// ensureLinked creates the account row for a verified sign-in when the
// credential is not linked yet. verifyAndUpsert already created it for brand
// new users; the existing-user-new-provider path links here.
func (h *AuthHandler) ensureLinked(ctx context.Context, u *models.User, att *linking.Attempt) error {
	existing, err := h.store.FindAccountByProviderID(ctx, att.Provider, att.ProviderAccountID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	acct := &models.Account{
		UserID:            u.ID,
		Provider:          att.Provider,
		ProviderAccountID: att.ProviderAccountID,
		AccessToken:       att.AccessToken,
		RefreshToken:      att.RefreshToken,
		TokenExpiresAt:    att.TokenExpiresAt,
	}
	if _, err := h.store.CreateAccount(ctx, acct); err != nil && !errors.Is(err, accounts.ErrDuplicate) {
		return err
	}
	return nil
}

// currentSession resolves the requester's session, if any. Lookup failures
// are treated as "no session" for decisioning but logged.
func (h *AuthHandler) currentSession(c *gin.Context) *sessions.Session {
	tok, err := c.Cookie(h.cfg.Session.CookieName)
	if err != nil || tok == "" {
		return nil
	}
	sess, err := h.sessionsSvc.Validate(c.Request.Context(), tok)
	if err != nil {
		logger.Warnf("callback: session lookup failed: %v", err)
		return nil
	}
	return sess
}

// candidateUser picks the tentative user for this attempt: the signed-in user
// when a session exists, else the credential owner, else the user matching
// the profile email, else a synthesized record with a fresh id.
func (h *AuthHandler) candidateUser(ctx context.Context, sess *sessions.Session, provider string, profile *providers.Profile) (*models.User, error) {
	if sess != nil {
		u, err := h.store.FindUserByID(ctx, sess.UserID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, errors.New("session user no longer exists")
		}
		return u, nil
	}
	if acct, err := h.store.FindAccountByProviderID(ctx, provider, profile.Subject); err != nil {
		return nil, err
	} else if acct != nil {
		if u, err := h.store.FindUserByID(ctx, acct.UserID); err != nil {
			return nil, err
		} else if u != nil {
			return u, nil
		}
	}
	if u, err := h.store.FindUserByEmail(ctx, profile.Email); err != nil {
		return nil, err
	} else if u != nil {
		return u, nil
	}
	return &models.User{
		ID:        uuid.NewString(),
		Email:     profile.Email,
		Name:      profile.Name,
		AvatarURL: profile.AvatarURL,
	}, nil
}

// mirrorAvatar kicks off the best-effort avatar copy; sign-in never waits on it.
func (h *AuthHandler) mirrorAvatar(u *models.User) {
	if h.avatarsSvc == nil || u.AvatarURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := h.avatarsSvc.Mirror(ctx, u.ID, u.AvatarURL); err != nil {
			logger.Warnf("avatar mirror failed for %s: %v", u.ID, err)
		}
	}()
}

// Logout deletes the current session and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	tok, err := c.Cookie(h.cfg.Session.CookieName)
	if err == nil && tok != "" {
		if err := h.sessionsSvc.Delete(c.Request.Context(), tok); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
			return
		}
	}
	c.SetCookie(h.cfg.Session.CookieName, "", -1, "/", h.cfg.Session.CookieDomain, h.cfg.Session.Secure, true)
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}

// LinkAccount renders the linking page payload; the message text is
// newline-delimited and returned both raw and as display lines.
func (h *AuthHandler) LinkAccount(c *gin.Context) {
	resp := gin.H{}
	if e := c.Query("error"); e != "" {
		resp["error"] = e
		resp["lines"] = strings.Split(e, "\n")
	}
	if m := c.Query("message"); m != "" {
		resp["message"] = m
		resp["lines"] = strings.Split(m, "\n")
	}
	c.JSON(http.StatusOK, resp)
}

// SignInError is the generic failure page for denied or failed attempts.
func (h *AuthHandler) SignInError(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"error": "Sign-in failed. Please try again."})
}
