package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signon/signon/internal/accounts"
	"github.com/signon/signon/internal/avatars"
	"github.com/signon/signon/pkg/logger"
	"github.com/signon/signon/pkg/middleware"
)

const avatarURLExpiry = 15 * time.Minute

// AccountsHandler serves the signed-in user's profile and linked accounts.
type AccountsHandler struct {
	store      accounts.Store
	avatarsSvc *avatars.Service // optional, may be nil
}

func NewAccountsHandler(store accounts.Store, av *avatars.Service) *AccountsHandler {
	return &AccountsHandler{store: store, avatarsSvc: av}
}

// Register mounts the routes on an already-authenticated group.
func (h *AccountsHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/me", h.Me)
	rg.GET("/me/accounts", h.MyAccounts)
}

// Me returns the current user's profile. When the avatar mirror is configured
// a presigned URL for the mirrored image is included.
func (h *AccountsHandler) Me(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserID)

	u, err := h.store.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("me: user lookup failed for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	resp := gin.H{"user": u}
	if h.avatarsSvc != nil {
		if signed, err := h.avatarsSvc.ProfileURL(c.Request.Context(), u.ID, avatarURLExpiry); err == nil {
			resp["avatarUrl"] = signed
		}
	}
	c.JSON(http.StatusOK, resp)
}

// MyAccounts lists the provider credentials linked to the current user.
// Token fields never serialize.
func (h *AccountsHandler) MyAccounts(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserID)

	list, err := h.store.FindAccountsByUser(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("accounts: list failed for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load accounts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": list, "count": len(list)})
}
