package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pinpoint/internal/app/models"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-process account store used by tests and by the
// memory backend. Point adjustments are serialized by the mutex.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]*models.Account)}
}

func (r *MemoryRepository) GetByToken(_ context.Context, token string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, acct := range r.accounts {
		if acct.Token == token {
			copied := *acct
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("account for token not found: %w", models.ErrNotFound)
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, acct := range r.accounts {
		if acct.Email == email {
			copied := *acct
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("account with email %s not found: %w", email, models.ErrNotFound)
}

func (r *MemoryRepository) ExistsIDToken(_ context.Context, id, token string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	return ok && acct.Token == token, nil
}

func (r *MemoryRepository) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, acct := range r.accounts {
		if acct.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) Create(_ context.Context, acct *models.Account) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == acct.Email {
			return "", fmt.Errorf("email already registered: %w", models.ErrConflict)
		}
	}
	stored := *acct
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.CreatedAt = time.Now()
	r.accounts[stored.ID] = &stored
	return stored.ID, nil
}

func (r *MemoryRepository) UpdateToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("account %s not found: %w", id, models.ErrNotFound)
	}
	acct.Token = token
	return nil
}

func (r *MemoryRepository) AdjustPoints(_ context.Context, id string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("account %s not found: %w", id, models.ErrNotFound)
	}
	acct.Points += delta
	return nil
}
