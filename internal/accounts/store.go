package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/signon/signon/internal/models"
)

var (
	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint (users.email or accounts(provider, provider_account_id)).
	ErrDuplicate = errors.New("accounts: duplicate record")
)

// UserUpdate lists the mutable user fields. Nil fields are left untouched.
type UserUpdate struct {
	Name          *string
	AvatarURL     *string
	EmailVerified *time.Time
}

// Store is the persistence contract for users and their linked provider
// accounts. Lookups return (nil, nil) when no record matches. Uniqueness of
// (provider, providerAccountId) and of user email is enforced by the backing
// storage, not by callers; the application-level existence checks in the
// sign-in policy are an early exit, not the correctness boundary.
type Store interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindAccountByProviderID(ctx context.Context, provider, providerAccountID string) (*models.Account, error)
	FindAccountsByUser(ctx context.Context, userID string) ([]*models.Account, error)

	CreateUser(ctx context.Context, u *models.User) (*models.User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error)
	CreateAccount(ctx context.Context, a *models.Account) (*models.Account, error)

	// CreateUserWithAccount creates the user and its first linked account as
	// one atomic unit: either both rows exist afterwards or neither does.
	CreateUserWithAccount(ctx context.Context, u *models.User, a *models.Account) (*models.User, error)
}
