package account

import (
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/Starbugstone/chat/internal/domain"
)

func sensitiveAccount() *domain.Account {
	expires := time.Date(2025, time.March, 11, 9, 30, 0, 0, time.UTC)
	return &domain.Account{
		ID:                    "acct-1",
		Email:                 "a@example.com",
		PasswordHash:          []byte("$2a$10$secret"),
		Roles:                 []string{domain.RoleEarlyAdopter},
		TokenBalance:          7,
		IsActive:              true,
		VerificationTokenHash: "digest",
		VerificationExpiresAt: &expires,
		CreatedAt:             time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC),
	}
}

func jsonKeys(t *testing.T, v any) []string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func TestProjectExposesOnlySafeFields(t *testing.T) {
	view := Project(sensitiveAccount())
	want := []string{"createdAt", "email", "id", "isActive", "isEmailVerified", "lastActiveAt", "roles", "tokenBalance"}
	if got := jsonKeys(t, view); !slices.Equal(got, want) {
		t.Fatalf("unexpected keys: %v", got)
	}
	if !slices.Equal(view.Roles, []string{domain.RoleEarlyAdopter, domain.RoleUser}) {
		t.Fatalf("unexpected roles: %v", view.Roles)
	}
	if view.TokenBalance != 7 || view.LastActiveAt != nil {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestProjectCreatedSubset(t *testing.T) {
	view := ProjectCreated(sensitiveAccount())
	want := []string{"createdAt", "email", "id", "isEmailVerified"}
	if got := jsonKeys(t, view); !slices.Equal(got, want) {
		t.Fatalf("unexpected keys: %v", got)
	}
}

func TestProjectCopiesLastActive(t *testing.T) {
	acct := sensitiveAccount()
	seen := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	acct.LastActiveAt = &seen
	view := Project(acct)
	if view.LastActiveAt == nil || !view.LastActiveAt.Equal(seen) {
		t.Fatalf("expected lastActiveAt, got %v", view.LastActiveAt)
	}
	if view.LastActiveAt == acct.LastActiveAt {
		t.Fatalf("projection must not alias account state")
	}
}
