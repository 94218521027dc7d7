package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/signon/signon/internal/accounts"
	"github.com/signon/signon/internal/config"
	"github.com/signon/signon/internal/linking"
	"github.com/signon/signon/internal/models"
	"github.com/signon/signon/internal/providers"
	"github.com/signon/signon/internal/sessions"
)

// stubProvider returns canned exchange results so callback flows can be
// exercised without a real OAuth dance.
type stubProvider struct {
	name    string
	profile *providers.Profile
	token   *oauth2.Token
	err     error
}

func (s *stubProvider) Name() string                  { return s.name }
func (s *stubProvider) AuthCodeURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}
func (s *stubProvider) Exchange(ctx context.Context, code string) (*providers.Profile, *oauth2.Token, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.profile, s.token, nil
}

type memSessionsRepo struct {
	store map[string]*sessions.Session
}

func (f *memSessionsRepo) Create(ctx context.Context, s *sessions.Session) error {
	if f.store == nil {
		f.store = map[string]*sessions.Session{}
	}
	f.store[s.Token] = s
	return nil
}
func (f *memSessionsRepo) GetByToken(ctx context.Context, token string) (*sessions.Session, error) {
	return f.store[token], nil
}
func (f *memSessionsRepo) DeleteByToken(ctx context.Context, token string) error {
	delete(f.store, token)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{SignInTarget: "/app"},
		Session: config.SessionConfig{
			TTL:        time.Hour,
			CookieName: "signon_session",
		},
	}
}

type authFixture struct {
	router  *gin.Engine
	store   *accounts.MemoryStore
	repo    *memSessionsRepo
	svc     *sessions.Service
	handler *AuthHandler
}

func newAuthFixture(t *testing.T, provs ...providers.Provider) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := accounts.NewMemoryStore()
	repo := &memSessionsRepo{store: map[string]*sessions.Session{}}
	svc := sessions.NewService(repo)
	reg := providers.NewRegistry(provs...)
	pol := linking.NewPolicy(store)
	h := NewAuthHandler(testConfig(), store, svc, reg, pol, nil)

	r := gin.New()
	h.Register(r.Group("/"))
	return &authFixture{router: r, store: store, repo: repo, svc: svc, handler: h}
}

// callback issues a GET to the callback endpoint with a matching state cookie.
func (f *authFixture) callback(provider string, extraCookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/callback/"+provider+"?state=s1&code=c1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})
	for _, ck := range extraCookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func sessionCookieFrom(t *testing.T, w *httptest.ResponseRecorder, name string) string {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name && ck.Value != "" {
			return ck.Value
		}
	}
	return ""
}

func TestSignIn_RedirectsToProvider(t *testing.T) {
	f := newAuthFixture(t, &stubProvider{name: "github"})

	req := httptest.NewRequest(http.MethodGet, "/auth/signin/github", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	loc := w.Header().Get("Location")
	require.Contains(t, loc, "https://provider.example/authorize?state=")

	// state cookie must match the state in the redirect URL
	state := strings.TrimPrefix(loc, "https://provider.example/authorize?state=")
	require.Equal(t, state, sessionCookieFrom(t, w, stateCookie))
}

func TestSignIn_UnknownProvider(t *testing.T) {
	f := newAuthFixture(t, &stubProvider{name: "github"})

	req := httptest.NewRequest(http.MethodGet, "/auth/signin/gitlab", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCallback_GitHubCreatesUserAndSession(t *testing.T) {
	f := newAuthFixture(t, &stubProvider{
		name:    "github",
		profile: &providers.Profile{Subject: "777", Email: "octo@example.com", Name: "Octo"},
		token:   &oauth2.Token{AccessToken: "at"},
	})

	w := f.callback("github")

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/app", w.Header().Get("Location"))

	tok := sessionCookieFrom(t, w, "signon_session")
	require.NotEmpty(t, tok)
	sess, err := f.svc.Validate(context.Background(), tok)
	require.NoError(t, err)
	require.NotNil(t, sess)

	u, err := f.store.FindUserByEmail(context.Background(), "octo@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.True(t, u.Verified())
	require.Equal(t, sess.UserID, u.ID)

	a, err := f.store.FindAccountByProviderID(context.Background(), "github", "777")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, u.ID, a.UserID)
}

func TestCallback_RepeatSignInReusesUser(t *testing.T) {
	f := newAuthFixture(t, &stubProvider{
		name:    "github",
		profile: &providers.Profile{Subject: "777", Email: "octo@example.com"},
		token:   &oauth2.Token{AccessToken: "at"},
	})

	w1 := f.callback("github")
	require.Equal(t, "/app", w1.Header().Get("Location"))
	u1, _ := f.store.FindUserByEmail(context.Background(), "octo@example.com")

	w2 := f.callback("github")
	require.Equal(t, "/app", w2.Header().Get("Location"))
	u2, _ := f.store.FindUserByEmail(context.Background(), "octo@example.com")

	require.Equal(t, u1.ID, u2.ID)
	all, err := f.store.FindAccountsByUser(context.Background(), u1.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestCallback_DiscordUnverifiedRedirects(t *testing.T) {
	f := newAuthFixture(t, &stubProvider{
		name: "discord",
		profile: &providers.Profile{
			Subject: "d1", Email: "d@example.com",
			Raw: map[string]any{"verified": false},
		},
		token: &oauth2.Token{AccessToken: "at"},
	})

	w := f.callback("discord")

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, linking.LinkAccountPath, loc.Path)
	require.Contains(t, loc.Query().Get("error"), "unverified")

	// no user or session gets created
	u, _ := f.store.FindUserByEmail(context.Background(), "d@example.com")
	require.Nil(t, u)
	require.Empty(t, sessionCookieFrom(t, w, "signon_session"))
}

func TestCallback_StateMismatch(t *testing.T) {
	f := newAuthFixture(t, &stubProvider{
		name:    "github",
		profile: &providers.Profile{Subject: "777", Email: "octo@example.com"},
		token:   &oauth2.Token{AccessToken: "at"},
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback/github?state=bogus&code=c1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, errorPath, w.Header().Get("Location"))
}

func TestCallback_ProviderError(t *testing.T) {
	f := newAuthFixture(t, &stubProvider{name: "github"})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback/github?error=access_denied", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, errorPath, w.Header().Get("Location"))
}

func TestCallback_CrossUserCredentialDenied(t *testing.T) {
	f := newAuthFixture(t, &stubProvider{
		name:    "github",
		profile: &providers.Profile{Subject: "777", Email: "intruder@example.com"},
		token:   &oauth2.Token{AccessToken: "at"},
	})

	// credential already owned by someone else
	owner, err := f.store.CreateUser(context.Background(), &models.User{Email: "owner@example.com"})
	require.NoError(t, err)
	_, err = f.store.CreateAccount(context.Background(), &models.Account{
		UserID: owner.ID, Provider: "github", ProviderAccountID: "777",
	})
	require.NoError(t, err)

	// signed-in requester with a different user id
	requester, err := f.store.CreateUser(context.Background(), &models.User{Email: "intruder@example.com"})
	require.NoError(t, err)
	tok, err := f.svc.Create(context.Background(), requester.ID, time.Hour)
	require.NoError(t, err)

	w := f.callback("github", &http.Cookie{Name: "signon_session", Value: tok})

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, errorPath, w.Header().Get("Location"))
}

func TestCallback_AuthenticatedLinkSucceeds(t *testing.T) {
	f := newAuthFixture(t, &stubProvider{
		name: "discord",
		profile: &providers.Profile{
			Subject: "d9", Email: "linker@example.com",
			Raw: map[string]any{"verified": true},
		},
		token: &oauth2.Token{AccessToken: "at"},
	})

	u, err := f.store.CreateUser(context.Background(), &models.User{Email: "linker@example.com"})
	require.NoError(t, err)
	tok, err := f.svc.Create(context.Background(), u.ID, time.Hour)
	require.NoError(t, err)

	w := f.callback("discord", &http.Cookie{Name: "signon_session", Value: tok})

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, linking.LinkAccountPath, loc.Path)
	require.Equal(t, "Account linked.", loc.Query().Get("message"))

	a, err := f.store.FindAccountByProviderID(context.Background(), "discord", "d9")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, u.ID, a.UserID)
}

func TestCallback_RelinkOwnAccountBounces(t *testing.T) {
	f := newAuthFixture(t, &stubProvider{
		name:    "github",
		profile: &providers.Profile{Subject: "777", Email: "self@example.com"},
		token:   &oauth2.Token{AccessToken: "at"},
	})

	u, err := f.store.CreateUser(context.Background(), &models.User{Email: "self@example.com"})
	require.NoError(t, err)
	_, err = f.store.CreateAccount(context.Background(), &models.Account{
		UserID: u.ID, Provider: "github", ProviderAccountID: "777",
	})
	require.NoError(t, err)
	tok, err := f.svc.Create(context.Background(), u.ID, time.Hour)
	require.NoError(t, err)

	w := f.callback("github", &http.Cookie{Name: "signon_session", Value: tok})

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, linking.LinkAccountPath, loc.Path)
	require.Contains(t, loc.Query().Get("error"), "already linked")
}

func TestLogout(t *testing.T) {
	f := newAuthFixture(t)
	tok, err := f.svc.Create(context.Background(), "u1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "signon_session", Value: tok})
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	sess, err := f.svc.Validate(context.Background(), tok)
	require.NoError(t, err)
	require.Nil(t, sess)
}

func TestLinkAccount_SplitsMessageLines(t *testing.T) {
	f := newAuthFixture(t)

	msg := url.QueryEscape("line one\nline two")
	req := httptest.NewRequest(http.MethodGet, "/auth/linkaccount?error="+msg, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "line one")
	require.Contains(t, w.Body.String(), "line two")
}
