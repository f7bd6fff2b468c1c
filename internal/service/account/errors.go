package account

import (
	"errors"
	"strings"

	"github.com/Starbugstone/chat/internal/policy"
)

var (
	// ErrMissingField indicates a required registration field was absent.
	ErrMissingField = errors.New("account: missing required field")
	// ErrEmailExists indicates the email is already registered.
	ErrEmailExists = errors.New("account: email already registered")
	// ErrInvalidEmail indicates the email failed the syntax check.
	ErrInvalidEmail = policy.ErrInvalidEmail
	// ErrWeakPassword indicates the password failed the strength rule.
	ErrWeakPassword = policy.ErrWeakPassword
	// ErrUnderage indicates the registrant is below the minimum age.
	ErrUnderage = policy.ErrUnderage
	// ErrMissingToken indicates no verification token was supplied.
	ErrMissingToken = errors.New("account: verification token required")
	// ErrInvalidToken indicates no account holds the supplied token.
	ErrInvalidToken = errors.New("account: invalid verification token")
	// ErrTokenExpired indicates the verification token is past its expiry.
	ErrTokenExpired = errors.New("account: verification token expired")
	// ErrNotAuthenticated indicates no current account could be resolved.
	ErrNotAuthenticated = errors.New("account: not authenticated")
)

// FieldError attaches the offending input fields to a business error.
type FieldError struct {
	Fields []string
	Err    error
}

func (e *FieldError) Error() string {
	return e.Err.Error() + ": " + strings.Join(e.Fields, ", ")
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldError(err error, fields ...string) error {
	return &FieldError{Fields: fields, Err: err}
}
