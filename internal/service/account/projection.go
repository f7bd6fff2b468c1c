package account

import (
	"time"

	"github.com/Starbugstone/chat/internal/domain"
)

// View is the client-safe projection of an account. It never carries the
// password hash or verification token.
type View struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Roles           []string   `json:"roles"`
	TokenBalance    int64      `json:"tokenBalance"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	IsActive        bool       `json:"isActive"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastActiveAt    *time.Time `json:"lastActiveAt"`
}

// CreatedView is the reduced projection returned right after registration.
type CreatedView struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Project builds the full View of a.
func Project(a *domain.Account) View {
	v := View{
		ID:              a.ID,
		Email:           a.Email,
		Roles:           a.EffectiveRoles(),
		TokenBalance:    a.TokenBalance,
		IsEmailVerified: a.IsEmailVerified,
		IsActive:        a.IsActive,
		CreatedAt:       a.CreatedAt.UTC(),
	}
	if a.LastActiveAt != nil {
		t := a.LastActiveAt.UTC()
		v.LastActiveAt = &t
	}
	return v
}

// ProjectCreated builds the CreatedView of a.
func ProjectCreated(a *domain.Account) CreatedView {
	return CreatedView{
		ID:              a.ID,
		Email:           a.Email,
		IsEmailVerified: a.IsEmailVerified,
		CreatedAt:       a.CreatedAt.UTC(),
	}
}
