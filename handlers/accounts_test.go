package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/signon/signon/internal/accounts"
	"github.com/signon/signon/internal/models"
	"github.com/signon/signon/internal/sessions"
	"github.com/signon/signon/pkg/middleware"
)

func newAccountsRouter(store accounts.Store, svc *sessions.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1", middleware.SessionAuth(svc, "signon_session"))
	NewAccountsHandler(store, nil).Register(api)
	return r
}

func TestMe_ReturnsProfile(t *testing.T) {
	store := accounts.NewMemoryStore()
	repo := &memSessionsRepo{store: map[string]*sessions.Session{}}
	svc := sessions.NewService(repo)

	u, err := store.CreateUser(context.Background(), &models.User{Email: "me@example.com", Name: "Me"})
	require.NoError(t, err)
	tok, err := svc.Create(context.Background(), u.ID, time.Hour)
	require.NoError(t, err)

	r := newAccountsRouter(store, svc)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: "signon_session", Value: tok})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "me@example.com")
	// tokens must never appear in API responses
	require.NotContains(t, w.Body.String(), "accessToken")
}

func TestMe_RequiresSession(t *testing.T) {
	store := accounts.NewMemoryStore()
	svc := sessions.NewService(&memSessionsRepo{store: map[string]*sessions.Session{}})

	r := newAccountsRouter(store, svc)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMyAccounts_ListsLinkedProviders(t *testing.T) {
	store := accounts.NewMemoryStore()
	repo := &memSessionsRepo{store: map[string]*sessions.Session{}}
	svc := sessions.NewService(repo)

	u, err := store.CreateUser(context.Background(), &models.User{Email: "multi@example.com"})
	require.NoError(t, err)
	for _, p := range []string{"github", "discord"} {
		_, err := store.CreateAccount(context.Background(), &models.Account{
			UserID: u.ID, Provider: p, ProviderAccountID: p + "-1", AccessToken: "secret-" + p,
		})
		require.NoError(t, err)
	}
	tok, err := svc.Create(context.Background(), u.ID, time.Hour)
	require.NoError(t, err)

	r := newAccountsRouter(store, svc)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/accounts", nil)
	req.AddCookie(&http.Cookie{Name: "signon_session", Value: tok})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"count":2`)
	require.Contains(t, w.Body.String(), "github")
	require.Contains(t, w.Body.String(), "discord")
	require.NotContains(t, w.Body.String(), "secret-")
}
