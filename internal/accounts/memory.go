package accounts

import (
	"context"
	"fmt"
	"sync"

	"github.com/signon/signon/internal/models"
)

// MemoryStore is an in-memory Store used by unit tests. It enforces the same
// uniqueness rules as the real backends under a single mutex, which makes it
// usable for concurrency tests as well.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*models.User    // keyed by id
	byEmail  map[string]string          // email -> user id
	accounts map[string]*models.Account // keyed by provider|providerAccountID

	// FailAccountInsert forces the next account insert to fail; used by
	// tests exercising the atomicity of CreateUserWithAccount.
	FailAccountInsert bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*models.User),
		byEmail:  make(map[string]string),
		accounts: make(map[string]*models.Account),
	}
}

func accountKey(provider, providerAccountID string) string {
	return provider + "|" + providerAccountID
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byEmail[email]; ok {
		cp := *s.users[id]
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) FindAccountByProviderID(ctx context.Context, provider, providerAccountID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[accountKey(provider, providerAccountID)]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) FindAccountsByUser(ctx context.Context, userID string) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(u)
}

func (s *MemoryStore) createUserLocked(u *models.User) (*models.User, error) {
	prepareUser(u)
	if _, exists := s.byEmail[u.Email]; exists {
		return nil, ErrDuplicate
	}
	cp := *u
	s.users[cp.ID] = &cp
	s.byEmail[cp.Email] = cp.ID
	return u, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("accounts: user %s not found", id)
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	if upd.EmailVerified != nil {
		t := *upd.EmailVerified
		u.EmailVerified = &t
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, a *models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createAccountLocked(a)
}

func (s *MemoryStore) createAccountLocked(a *models.Account) (*models.Account, error) {
	if s.FailAccountInsert {
		return nil, fmt.Errorf("accounts: forced insert failure")
	}
	prepareAccount(a)
	key := accountKey(a.Provider, a.ProviderAccountID)
	if _, exists := s.accounts[key]; exists {
		return nil, ErrDuplicate
	}
	cp := *a
	s.accounts[key] = &cp
	return a, nil
}

func (s *MemoryStore) CreateUserWithAccount(ctx context.Context, u *models.User, a *models.Account) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created, err := s.createUserLocked(u)
	if err != nil {
		return nil, err
	}
	a.UserID = created.ID
	if _, err := s.createAccountLocked(a); err != nil {
		delete(s.users, created.ID)
		delete(s.byEmail, created.Email)
		return nil, err
	}
	return created, nil
}
