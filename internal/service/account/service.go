package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Starbugstone/chat/internal/domain"
	"github.com/Starbugstone/chat/internal/notify"
	"github.com/Starbugstone/chat/internal/policy"
	"github.com/Starbugstone/chat/internal/repository"
	"github.com/Starbugstone/chat/internal/token"
	"github.com/Starbugstone/chat/pkg/config"
)

const defaultNotifyTimeout = 10 * time.Second

// PasswordHasher produces one-way password hashes.
type PasswordHasher interface {
	Hash(plain string) ([]byte, error)
}

// Service runs the registration and email verification workflows.
type Service struct {
	accounts      repository.AccountRepository
	hasher        PasswordHasher
	notifier      notify.Notifier
	policy        policy.Policy
	issuer        token.Issuer
	notifyTimeout time.Duration
	logger        *slog.Logger
	metrics       *metrics
	now           func() time.Time
	newID         func() string
}

// New constructs a Service. A nil notifier disables verification emails.
func New(accounts repository.AccountRepository, hasher PasswordHasher, notifier notify.Notifier, logger *slog.Logger, cfg config.APIConfig) Service {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return Service{
		accounts: accounts,
		hasher:   hasher,
		notifier: notifier,
		policy: policy.Policy{
			MinPasswordLength:     cfg.PasswordMinLength,
			RequireLetterAndDigit: cfg.PasswordRequireLetterDigit,
			MinAgeYears:           cfg.MinAgeYears,
		},
		issuer:        token.NewIssuer(cfg.VerificationTokenTTL),
		notifyTimeout: timeout,
		logger:        logger,
		metrics:       defaultMetrics(),
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// RegisterInput carries a registration request. A zero At means now.
type RegisterInput struct {
	Email       string
	Password    string
	DateOfBirth time.Time
	At          time.Time
}

// Registration is the result of a successful registration. Token is the
// plaintext verification token; only its digest is stored.
type Registration struct {
	Account   *domain.Account
	Token     string
	ExpiresAt time.Time
}

// Register creates an unverified account and sends its verification link.
// Checks run in a fixed order: presence, uniqueness, email format,
// password strength, age.
func (s Service) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	if missing := missingFields(in); len(missing) > 0 {
		s.metrics.registration("missing_field")
		return nil, fieldError(ErrMissingField, missing...)
	}
	at := s.at(in.At)
	email := domain.NormalizeEmail(in.Email)

	if _, err := s.accounts.GetAccountByEmail(ctx, email); err == nil {
		s.metrics.registration("email_exists")
		return nil, fieldError(ErrEmailExists, "email")
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.metrics.registration("error")
		return nil, fmt.Errorf("lookup account by email: %w", err)
	}

	if err := s.policy.ValidateEmail(email); err != nil {
		s.metrics.registration("invalid")
		return nil, fieldError(err, "email")
	}
	if err := s.policy.ValidatePassword(in.Password); err != nil {
		s.metrics.registration("invalid")
		return nil, fieldError(err, "password")
	}
	if err := s.policy.ValidateAge(in.DateOfBirth, at); err != nil {
		s.metrics.registration("invalid")
		return nil, fieldError(err, "dateOfBirth")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.metrics.registration("error")
		return nil, fmt.Errorf("hash password: %w", err)
	}
	issued, err := s.issuer.Issue(at)
	if err != nil {
		s.metrics.registration("error")
		return nil, err
	}

	expires := issued.ExpiresAt
	acct := &domain.Account{
		ID:                    s.newID(),
		Email:                 email,
		PasswordHash:          hash,
		DateOfBirth:           dateOnly(in.DateOfBirth),
		Roles:                 []string{},
		IsActive:              true,
		VerificationTokenHash: issued.Digest,
		VerificationExpiresAt: &expires,
		CreatedAt:             at.UTC(),
	}
	if err := s.accounts.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.metrics.registration("email_exists")
			return nil, fieldError(ErrEmailExists, "email")
		}
		s.metrics.registration("error")
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.metrics.registration("created")
	s.logger.Info("account registered", "account_id", acct.ID)

	s.sendVerification(ctx, notify.Message{
		AccountID: acct.ID,
		Email:     acct.Email,
		Token:     issued.Value,
		ExpiresAt: issued.ExpiresAt,
	})

	return &Registration{Account: acct, Token: issued.Value, ExpiresAt: issued.ExpiresAt}, nil
}

// sendVerification delivers the verification link. Failures are logged and
// counted; the account stays registered and no retry is scheduled.
func (s Service) sendVerification(ctx context.Context, msg notify.Message) {
	if s.notifier == nil {
		s.metrics.notification("skipped")
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.SendVerification(sendCtx, msg); err != nil {
		s.metrics.notification("failed")
		s.logger.Warn("verification notification failed", "account_id", msg.AccountID, "error", err)
		return
	}
	s.metrics.notification("sent")
}

// VerifyInput carries a verification request. A zero At means now.
type VerifyInput struct {
	Token string
	At    time.Time
}

// Verify consumes a verification token and marks its account verified.
// An expired token is left in place.
func (s Service) Verify(ctx context.Context, in VerifyInput) (*domain.Account, error) {
	raw := strings.TrimSpace(in.Token)
	if raw == "" {
		s.metrics.verification("missing_token")
		return nil, ErrMissingToken
	}
	at := s.at(in.At)

	acct, err := s.accounts.GetAccountByVerificationToken(ctx, token.Digest(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.verification("invalid_token")
			return nil, ErrInvalidToken
		}
		s.metrics.verification("error")
		return nil, fmt.Errorf("lookup verification token: %w", err)
	}
	if !acct.HasPendingVerification() {
		s.metrics.verification("invalid_token")
		return nil, ErrInvalidToken
	}
	if acct.VerificationExpired(at) {
		s.metrics.verification("expired")
		return nil, ErrTokenExpired
	}

	acct.MarkEmailVerified()
	if err := s.accounts.SaveAccount(ctx, acct); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.verification("invalid_token")
			return nil, ErrInvalidToken
		}
		s.metrics.verification("error")
		return nil, fmt.Errorf("save verified account: %w", err)
	}
	s.metrics.verification("verified")
	s.logger.Info("email verified", "account_id", acct.ID)
	return acct, nil
}

// Current loads the account identified by accountID.
func (s Service) Current(ctx context.Context, accountID string) (*domain.Account, error) {
	id := strings.TrimSpace(accountID)
	if id == "" {
		return nil, ErrNotAuthenticated
	}
	acct, err := s.accounts.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("load current account: %w", err)
	}
	return acct, nil
}

// TokenTTL reports how long issued verification tokens remain valid.
func (s Service) TokenTTL() time.Duration {
	return s.issuer.TTL()
}

func (s Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.now().UTC()
	}
	return t.UTC()
}

func missingFields(in RegisterInput) []string {
	var missing []string
	if strings.TrimSpace(in.Email) == "" {
		missing = append(missing, "email")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if in.DateOfBirth.IsZero() {
		missing = append(missing, "dateOfBirth")
	}
	return missing
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
