package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/signon/signon/internal/sessions"
)

// Context keys set by SessionAuth for downstream handlers.
const (
	CtxSession = "session"
	CtxUserID  = "userID"
)

// SessionAuth returns a Gin middleware that resolves the session cookie via
// the session service. Requests without a valid, unexpired session are
// rejected with 401.
func SessionAuth(svc *sessions.Service, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := c.Cookie(cookieName)
		if err != nil || tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			return
		}
		sess, err := svc.Validate(c.Request.Context(), tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			return
		}
		if sess == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		c.Set(CtxSession, sess)
		c.Set(CtxUserID, sess.UserID)
		c.Next()
	}
}
