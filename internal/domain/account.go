package domain

import (
	"slices"
	"strings"
	"time"
)

// Role names recognised by the platform.
const (
	RoleUser         = "ROLE_USER"
	RoleAdmin        = "ROLE_ADMIN"
	RoleIDVerified   = "ROLE_ID_VERIFIED"
	RoleHasTokens    = "ROLE_HAS_TOKENS"
	RoleEarlyAdopter = "ROLE_EARLY_ADOPTER"
)

// Account represents a registered platform user.
type Account struct {
	ID              string
	Email           string
	PasswordHash    []byte
	DateOfBirth     time.Time
	Roles           []string
	TokenBalance    int64
	IsActive        bool
	IsEmailVerified bool
	// VerificationTokenHash is the SHA-256 digest of the outstanding
	// verification token. It is set together with VerificationExpiresAt.
	VerificationTokenHash string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	LastActiveAt          *time.Time
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EffectiveRoles returns the stored roles plus RoleUser, de-duplicated and sorted.
func (a *Account) EffectiveRoles() []string {
	roles := make([]string, 0, len(a.Roles)+1)
	roles = append(roles, RoleUser)
	for _, role := range a.Roles {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	slices.Sort(roles)
	return slices.Compact(roles)
}

// HasRole reports whether the account holds role, including the implicit RoleUser.
func (a *Account) HasRole(role string) bool {
	return slices.Contains(a.EffectiveRoles(), role)
}

func (a *Account) IsAdmin() bool        { return a.HasRole(RoleAdmin) }
func (a *Account) IsIDVerified() bool   { return a.HasRole(RoleIDVerified) }
func (a *Account) HasTokens() bool      { return a.HasRole(RoleHasTokens) }
func (a *Account) IsEarlyAdopter() bool { return a.HasRole(RoleEarlyAdopter) }

// HasPendingVerification reports whether a verification token is outstanding.
func (a *Account) HasPendingVerification() bool {
	return a.VerificationTokenHash != "" && a.VerificationExpiresAt != nil
}

// VerificationExpired reports whether the outstanding token expired at now.
func (a *Account) VerificationExpired(now time.Time) bool {
	if a.VerificationExpiresAt == nil {
		return true
	}
	return now.After(*a.VerificationExpiresAt)
}

// MarkEmailVerified flips the verified flag and clears the token fields.
func (a *Account) MarkEmailVerified() {
	a.IsEmailVerified = true
	a.VerificationTokenHash = ""
	a.VerificationExpiresAt = nil
}
