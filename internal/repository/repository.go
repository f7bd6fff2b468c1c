package repository

import (
	"context"

	"github.com/Starbugstone/chat/internal/domain"
)

// AccountRepository persists accounts. Implementations enforce email
// uniqueness atomically: of two concurrent CreateAccount calls for the same
// email exactly one succeeds and the other returns ErrDuplicateEmail.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccountByID(ctx context.Context, id string) (*domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	// GetAccountByVerificationToken looks an account up by token digest.
	GetAccountByVerificationToken(ctx context.Context, digest string) (*domain.Account, error)
	// SaveAccount writes every mutable field of an existing account in one step.
	SaveAccount(ctx context.Context, account *domain.Account) error
}
