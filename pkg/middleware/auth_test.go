package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/signon/signon/internal/sessions"
)

// fake session repo
type fakeSessionsRepo struct {
	store map[string]*sessions.Session
}

func (f *fakeSessionsRepo) Create(ctx context.Context, s *sessions.Session) error {
	if f.store == nil {
		f.store = map[string]*sessions.Session{}
	}
	f.store[s.Token] = s
	return nil
}
func (f *fakeSessionsRepo) GetByToken(ctx context.Context, token string) (*sessions.Session, error) {
	s, ok := f.store[token]
	if !ok {
		return nil, nil
	}
	return s, nil
}
func (f *fakeSessionsRepo) DeleteByToken(ctx context.Context, token string) error {
	delete(f.store, token)
	return nil
}

const testCookie = "signon_session"

func TestSessionAuth_NoCookie(t *testing.T) {
	svc := sessions.NewService(&fakeSessionsRepo{})
	g := gin.New()
	g.GET("/", SessionAuth(svc, testCookie), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)

	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestSessionAuth_UnknownToken(t *testing.T) {
	svc := sessions.NewService(&fakeSessionsRepo{store: map[string]*sessions.Session{}})
	g := gin.New()
	g.GET("/", SessionAuth(svc, testCookie), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "nope"})
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)

	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestSessionAuth_ValidSession(t *testing.T) {
	repo := &fakeSessionsRepo{}
	svc := sessions.NewService(repo)
	tok, err := svc.Create(context.Background(), "user-1", time.Hour)
	require.NoError(t, err)

	g := gin.New()
	g.GET("/", SessionAuth(svc, testCookie), func(c *gin.Context) {
		uid, ok := c.Get(CtxUserID)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"userId": uid})
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: tok})
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Body.String(), "user-1")
}

func TestSessionAuth_ExpiredSession(t *testing.T) {
	repo := &fakeSessionsRepo{}
	_ = repo.Create(context.Background(), &sessions.Session{
		Token:     "old",
		UserID:    "user-2",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	})
	svc := sessions.NewService(repo)

	g := gin.New()
	g.GET("/", SessionAuth(svc, testCookie), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "old"})
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)

	require.Equal(t, http.StatusUnauthorized, rw.Code)
}
