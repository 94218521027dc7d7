package models

import "time"

// User is the identity record owned by this service. A user is created on the
// first verified sign-in and accumulates linked provider accounts over time.
// EmailVerified is nil until some provider vouches for the address.
type User struct {
	ID            string     `bson:"_id,omitempty" json:"id"`
	Email         string     `bson:"email" json:"email"`
	Name          string     `bson:"name,omitempty" json:"name,omitempty"`
	AvatarURL     string     `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	EmailVerified *time.Time `bson:"emailVerified,omitempty" json:"emailVerified,omitempty"`
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// Verified reports whether the user's email has been verified.
func (u *User) Verified() bool {
	return u != nil && u.EmailVerified != nil
}

// Account binds one (provider, providerAccountId) credential to exactly one
// user. The pair is unique across the whole store; the storage layer enforces
// that, not the application.
type Account struct {
	ID                string     `bson:"_id,omitempty" json:"id"`
	UserID            string     `bson:"userId" json:"userId"`
	Provider          string     `bson:"provider" json:"provider"`
	ProviderAccountID string     `bson:"providerAccountId" json:"providerAccountId"`
	AccessToken       string     `bson:"accessToken,omitempty" json:"-"`
	RefreshToken      string     `bson:"refreshToken,omitempty" json:"-"`
	TokenExpiresAt    *time.Time `bson:"tokenExpiresAt,omitempty" json:"-"`
	CreatedAt         time.Time  `bson:"createdAt" json:"createdAt"`
}
