package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/signon/signon/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             uuid PRIMARY KEY,
	email          text NOT NULL UNIQUE,
	name           text NOT NULL DEFAULT '',
	avatar_url     text NOT NULL DEFAULT '',
	email_verified timestamptz,
	created_at     timestamptz NOT NULL,
	updated_at     timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id                  uuid PRIMARY KEY,
	user_id             uuid NOT NULL REFERENCES users(id),
	provider            text NOT NULL,
	provider_account_id text NOT NULL,
	access_token        text NOT NULL DEFAULT '',
	refresh_token       text NOT NULL DEFAULT '',
	token_expires_at    timestamptz,
	created_at          timestamptz NOT NULL,
	UNIQUE (provider, provider_account_id)
);
`

// PostgresStore implements Store on top of a Postgres database. The schema's
// unique constraints are what actually guarantee the one-account-per-credential
// invariant under concurrent sign-ins.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the users/accounts schema. Idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("accounts migrate: %w", err)
	}
	return nil
}

const userColumns = "id, email, name, avatar_url, email_verified, created_at, updated_at"

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
	return scanUser(row)
}

const accountColumns = "id, user_id, provider, provider_account_id, access_token, refresh_token, token_expires_at, created_at"

func (s *PostgresStore) FindAccountByProviderID(ctx context.Context, provider, providerAccountID string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE provider = $1 AND provider_account_id = $2",
		provider, providerAccountID)
	var a models.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Provider, &a.ProviderAccountID, &a.AccessToken, &a.RefreshToken, &a.TokenExpiresAt, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) FindAccountsByUser(ctx context.Context, userID string) ([]*models.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = $1 ORDER BY created_at", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Provider, &a.ProviderAccountID, &a.AccessToken, &a.RefreshToken, &a.TokenExpiresAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	prepareUser(u)
	if err := insertUser(ctx, s.db, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		UPDATE users SET
			name           = COALESCE($2, name),
			avatar_url     = COALESCE($3, avatar_url),
			email_verified = COALESCE($4, email_verified),
			updated_at     = $5
		WHERE id = $1
		RETURNING `+userColumns,
		id, upd.Name, upd.AvatarURL, upd.EmailVerified, now)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("accounts: user %s not found", id)
	}
	return u, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *models.Account) (*models.Account, error) {
	prepareAccount(a)
	if err := insertAccount(ctx, s.db, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PostgresStore) CreateUserWithAccount(ctx context.Context, u *models.User, a *models.Account) (*models.User, error) {
	prepareUser(u)
	a.UserID = u.ID
	prepareAccount(a)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	if err := insertUser(ctx, tx, u); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := insertAccount(ctx, tx, a); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return u, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func prepareUser(u *models.User) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
}

func prepareAccount(a *models.Account) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
}

func insertUser(ctx context.Context, db execer, u *models.User) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, avatar_url, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Name, u.AvatarURL, u.EmailVerified, u.CreatedAt, u.UpdatedAt)
	return wrapPQ(err)
}

func insertAccount(ctx context.Context, db execer, a *models.Account) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, provider, provider_account_id, access_token, refresh_token, token_expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UserID, a.Provider, a.ProviderAccountID, a.AccessToken, a.RefreshToken, a.TokenExpiresAt, a.CreatedAt)
	return wrapPQ(err)
}

// wrapPQ maps unique-constraint violations to ErrDuplicate.
func wrapPQ(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
