// Package token issues email verification tokens.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

const (
	// Size is the number of random bytes behind each token.
	Size = 32
	// DefaultTTL is how long a verification token stays valid.
	DefaultTTL = 24 * time.Hour
)

// Token is a freshly issued verification token. Value is only ever handed
// to the notifier and, in debug setups, the caller; stores keep Digest.
type Token struct {
	Value     string
	Digest    string
	ExpiresAt time.Time
}

// Issuer produces verification tokens with a fixed time-to-live.
type Issuer struct {
	ttl     time.Duration
	entropy io.Reader
}

// NewIssuer returns an Issuer reading from crypto/rand. A non-positive ttl
// falls back to DefaultTTL.
func NewIssuer(ttl time.Duration) Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Issuer{ttl: ttl, entropy: rand.Reader}
}

// TTL reports the configured lifetime.
func (i Issuer) TTL() time.Duration { return i.ttl }

// Issue creates a token expiring ttl after now.
func (i Issuer) Issue(now time.Time) (Token, error) {
	src := i.entropy
	if src == nil {
		src = rand.Reader
	}
	ttl := i.ttl
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	buf := make([]byte, Size)
	if _, err := io.ReadFull(src, buf); err != nil {
		return Token{}, fmt.Errorf("generate verification token: %w", err)
	}
	value := hex.EncodeToString(buf)
	return Token{Value: value, Digest: Digest(value), ExpiresAt: now.Add(ttl).UTC()}, nil
}

// Digest returns the hex SHA-256 of a token value. Lookups go through the
// digest so the presented value is hashed before it meets stored data.
func Digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
