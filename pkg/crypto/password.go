package crypto

import "golang.org/x/crypto/bcrypt"

// ComparePassword compares plaintext to hashed secret.
func ComparePassword(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}

// Bcrypt hashes passwords with a configurable cost. The zero value uses
// bcrypt.DefaultCost.
type Bcrypt struct {
	Cost int
}

// Hash returns the bcrypt hash of plain.
func (b Bcrypt) Hash(plain string) ([]byte, error) {
	cost := b.Cost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(plain), cost)
}

// Compare reports whether plain matches hash.
func (b Bcrypt) Compare(hash []byte, plain string) error {
	return ComparePassword(hash, plain)
}
