// Package policy holds the credential and eligibility rules applied at
// registration. Every function is pure: no I/O, no clock reads.
package policy

import (
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidEmail      = errors.New("policy: invalid email format")
	ErrWeakPassword      = errors.New("policy: password too weak")
	ErrUnderage          = errors.New("policy: below minimum age")
	ErrInvalidDateFormat = errors.New("policy: invalid date format")
)

const (
	DefaultMinPasswordLength = 8
	DefaultMinAgeYears       = 18
	// MaxEmailLength matches the width of the accounts.email column.
	MaxEmailLength = 180
	dateLayout     = "2006-01-02"
)

var validate = validator.New()

// Policy configures the credential rules.
type Policy struct {
	MinPasswordLength     int
	RequireLetterAndDigit bool
	MinAgeYears           int
}

// Default returns the baseline policy: 8 character passwords, age 18.
func Default() Policy {
	return Policy{MinPasswordLength: DefaultMinPasswordLength, MinAgeYears: DefaultMinAgeYears}
}

// ValidateEmail performs a syntactic check; deliverability is not verified.
func (p Policy) ValidateEmail(candidate string) error {
	email := strings.TrimSpace(candidate)
	if email == "" || len(email) > MaxEmailLength {
		return ErrInvalidEmail
	}
	if err := validate.Var(email, "email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword enforces the length floor and, when enabled, the
// letter-and-digit composition rule.
func (p Policy) ValidatePassword(candidate string) error {
	minLen := p.MinPasswordLength
	if minLen <= 0 {
		minLen = DefaultMinPasswordLength
	}
	if utf8.RuneCountInString(candidate) < minLen {
		return ErrWeakPassword
	}
	if p.RequireLetterAndDigit {
		var letter, digit bool
		for _, r := range candidate {
			switch {
			case unicode.IsLetter(r):
				letter = true
			case unicode.IsDigit(r):
				digit = true
			}
		}
		if !letter || !digit {
			return ErrWeakPassword
		}
	}
	return nil
}

// ValidateAge checks that dob gives an age of at least MinAgeYears at asOf.
// A zero or future date of birth fails as underage.
func (p Policy) ValidateAge(dob, asOf time.Time) error {
	minAge := p.MinAgeYears
	if minAge <= 0 {
		minAge = DefaultMinAgeYears
	}
	if dob.IsZero() {
		return ErrUnderage
	}
	if Age(dob, asOf) < minAge {
		return ErrUnderage
	}
	return nil
}

// Age returns the number of whole calendar years between dob and asOf, or
// -1 when dob lies after asOf. Both are compared as UTC calendar dates.
func Age(dob, asOf time.Time) int {
	by, bm, bd := dob.UTC().Date()
	ay, am, ad := asOf.UTC().Date()
	if by > ay || (by == ay && (bm > am || (bm == am && bd > ad))) {
		return -1
	}
	age := ay - by
	if am < bm || (am == bm && ad < bd) {
		age--
	}
	return age
}

// ParseDateOfBirth accepts YYYY-MM-DD or an RFC 3339 timestamp and returns
// the date at UTC midnight.
func ParseDateOfBirth(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidDateFormat
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, ErrInvalidDateFormat
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
