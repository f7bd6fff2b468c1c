package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Starbugstone/chat/internal/domain"
	"github.com/Starbugstone/chat/internal/repository"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"

	emailUniqueIndex = "accounts_email_lower_key"
)

const accountColumns = `id, email, password_hash, date_of_birth, roles, token_balance, is_active,
	is_email_verified, email_verification_token_hash, email_verification_expires_at, created_at, last_active_at`

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var _ repository.AccountRepository = (*Repository)(nil)

// CreateAccount inserts an account. The unique index on lower(email)
// decides concurrent registrations for the same address.
func (r *Repository) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return repository.ErrInvalidArgument
	}
	const query = `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	email := domain.NormalizeEmail(account.Email)
	_, err := r.pool.Exec(ctx, query,
		account.ID,
		email,
		account.PasswordHash,
		account.DateOfBirth.UTC(),
		rolesOrEmpty(account.Roles),
		account.TokenBalance,
		account.IsActive,
		account.IsEmailVerified,
		nullString(account.VerificationTokenHash),
		utcPtr(account.VerificationExpiresAt),
		account.CreatedAt.UTC(),
		utcPtr(account.LastActiveAt),
	)
	if err != nil {
		return mapWriteError(err)
	}
	account.Email = email
	return nil
}

// GetAccountByID fetches an account by identifier.
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id::text = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, strings.TrimSpace(id)))
}

// GetAccountByEmail fetches an account by email, case-insensitively.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, domain.NormalizeEmail(email)))
}

// GetAccountByVerificationToken fetches the account holding the token digest.
func (r *Repository) GetAccountByVerificationToken(ctx context.Context, digest string) (*domain.Account, error) {
	if digest == "" {
		return nil, repository.ErrNotFound
	}
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE email_verification_token_hash = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, digest))
}

// SaveAccount updates every mutable column in a single statement.
func (r *Repository) SaveAccount(ctx context.Context, account *domain.Account) error {
	if account == nil {
		return repository.ErrInvalidArgument
	}
	const query = `UPDATE accounts
		SET email = $2,
			password_hash = $3,
			roles = $4,
			token_balance = $5,
			is_active = $6,
			is_email_verified = $7,
			email_verification_token_hash = $8,
			email_verification_expires_at = $9,
			last_active_at = $10
		WHERE id::text = $1`
	email := domain.NormalizeEmail(account.Email)
	tag, err := r.pool.Exec(ctx, query,
		account.ID,
		email,
		account.PasswordHash,
		rolesOrEmpty(account.Roles),
		account.TokenBalance,
		account.IsActive,
		account.IsEmailVerified,
		nullString(account.VerificationTokenHash),
		utcPtr(account.VerificationExpiresAt),
		utcPtr(account.LastActiveAt),
	)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	account.Email = email
	return nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a         domain.Account
		tokenHash *string
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.DateOfBirth,
		&a.Roles,
		&a.TokenBalance,
		&a.IsActive,
		&a.IsEmailVerified,
		&tokenHash,
		&a.VerificationExpiresAt,
		&a.CreatedAt,
		&a.LastActiveAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if tokenHash != nil {
		a.VerificationTokenHash = strings.TrimSpace(*tokenHash)
	}
	return &a, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == emailUniqueIndex {
				return repository.ErrDuplicateEmail
			}
			return fmt.Errorf("%w: %s", repository.ErrInvalidArgument, pgErr.ConstraintName)
		case pgCheckViolation:
			return fmt.Errorf("%w: %s", repository.ErrInvalidArgument, pgErr.ConstraintName)
		}
	}
	return err
}

func nullString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func rolesOrEmpty(roles []string) []string {
	if roles == nil {
		return []string{}
	}
	return roles
}
