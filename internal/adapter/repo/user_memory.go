package repo

import (
	"context"
	"strings"
	"sync"
	"time"

	"careercatalyst/internal/domain"
)

// MemoryUserRepository is the in-process account store used when
// STORE_DRIVER=memory.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]domain.User)}
}

func (m *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.ErrDuplicateAccount
		}
	}
	stored := *user
	stored.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt
	m.users[stored.ID] = stored
	return nil
}

func (m *MemoryUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (m *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.TrimSpace(email)
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryUserRepository) MarkVerified(ctx context.Context, token string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	for id, u := range m.users {
		if u.VerifyToken == token {
			u.Verified = true
			u.VerifyToken = ""
			u.UpdatedAt = time.Now().UTC()
			m.users[id] = u
			return &u, nil
		}
	}
	return nil, domain.ErrInvalidToken
}

func (m *MemoryUserRepository) SetResetToken(ctx context.Context, userID, token string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.ResetToken = token
	u.ResetExpires = &expires
	u.UpdatedAt = time.Now().UTC()
	m.users[userID] = u
	return nil
}

func (m *MemoryUserRepository) ResetPassword(ctx context.Context, token, passwordHash string, now time.Time) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	for id, u := range m.users {
		if u.ResetToken != token {
			continue
		}
		if u.ResetExpires == nil || !now.Before(*u.ResetExpires) {
			return nil, domain.ErrInvalidToken
		}
		u.PasswordHash = passwordHash
		u.ResetToken = ""
		u.ResetExpires = nil
		u.Verified = true
		u.UpdatedAt = now
		m.users[id] = u
		return &u, nil
	}
	return nil, domain.ErrInvalidToken
}

var _ domain.UserRepository = (*MemoryUserRepository)(nil)

// Count returns the number of stored accounts.
func (m *MemoryUserRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}
