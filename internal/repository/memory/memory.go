// Package memory provides an in-process AccountRepository for development
// and tests. State is lost on restart.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/Starbugstone/chat/internal/domain"
	"github.com/Starbugstone/chat/internal/repository"
	"github.com/Starbugstone/chat/internal/token"
)

// Repository keeps accounts in maps guarded by a single mutex.
type Repository struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Account
	byEmail  map[string]string
	byDigest map[string]string
}

var _ repository.AccountRepository = (*Repository)(nil)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{
		byID:     make(map[string]*domain.Account),
		byEmail:  make(map[string]string),
		byDigest: make(map[string]string),
	}
}

// CreateAccount stores a copy of account. The email check and insert happen
// under one lock.
func (r *Repository) CreateAccount(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return repository.ErrInvalidArgument
	}
	email := domain.NormalizeEmail(account.Email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[email]; exists {
		return repository.ErrDuplicateEmail
	}
	if _, exists := r.byID[account.ID]; exists {
		return repository.ErrInvalidArgument
	}
	stored := clone(account)
	stored.Email = email
	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID
	if stored.VerificationTokenHash != "" {
		r.byDigest[stored.VerificationTokenHash] = stored.ID
	}
	account.Email = email
	return nil
}

// GetAccountByID returns a copy of the account with id.
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(acct), nil
}

// GetAccountByEmail returns a copy of the account holding email.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(r.byID[id]), nil
}

// GetAccountByVerificationToken returns the account whose outstanding token
// has the given digest.
func (r *Repository) GetAccountByVerificationToken(ctx context.Context, digest string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if digest == "" {
		return nil, repository.ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byDigest[digest]
	if !ok {
		return nil, repository.ErrNotFound
	}
	acct := r.byID[id]
	if acct == nil || !token.Equal(acct.VerificationTokenHash, digest) {
		return nil, repository.ErrNotFound
	}
	return clone(acct), nil
}

// SaveAccount replaces the stored state of an existing account.
func (r *Repository) SaveAccount(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if account == nil {
		return repository.ErrInvalidArgument
	}
	if account.TokenBalance < 0 {
		return repository.ErrInvalidArgument
	}
	if (account.VerificationTokenHash == "") != (account.VerificationExpiresAt == nil) {
		return repository.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[account.ID]
	if !ok {
		return repository.ErrNotFound
	}
	email := domain.NormalizeEmail(account.Email)
	if owner, taken := r.byEmail[email]; taken && owner != account.ID {
		return repository.ErrDuplicateEmail
	}
	delete(r.byEmail, current.Email)
	if current.VerificationTokenHash != "" {
		delete(r.byDigest, current.VerificationTokenHash)
	}
	stored := clone(account)
	stored.Email = email
	stored.CreatedAt = current.CreatedAt
	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID
	if stored.VerificationTokenHash != "" {
		r.byDigest[stored.VerificationTokenHash] = stored.ID
	}
	return nil
}

// Len reports the number of stored accounts.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func clone(a *domain.Account) *domain.Account {
	c := *a
	c.PasswordHash = slices.Clone(a.PasswordHash)
	c.Roles = slices.Clone(a.Roles)
	if a.VerificationExpiresAt != nil {
		t := *a.VerificationExpiresAt
		c.VerificationExpiresAt = &t
	}
	if a.LastActiveAt != nil {
		t := *a.LastActiveAt
		c.LastActiveAt = &t
	}
	return &c
}
