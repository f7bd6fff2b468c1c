package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Starbugstone/chat/internal/domain"
	"github.com/Starbugstone/chat/internal/notify"
	"github.com/Starbugstone/chat/internal/repository/memory"
	"github.com/Starbugstone/chat/internal/service/account"
	"github.com/Starbugstone/chat/pkg/config"
	"github.com/Starbugstone/chat/pkg/crypto"
	jwtpkg "github.com/Starbugstone/chat/pkg/jwt"
)

const testSecret = "test-secret"

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type notifierStub struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (n *notifierStub) SendVerification(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *notifierStub) last(t *testing.T) notify.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		t.Fatalf("expected a verification message")
	}
	return n.messages[len(n.messages)-1]
}

type testEnv struct {
	router   *Router
	repo     *memory.Repository
	notifier *notifierStub
}

func newTestEnv(t *testing.T, cfg config.APIConfig) testEnv {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testSecret
	}
	repo := memory.New()
	notifier := &notifierStub{}
	svc := account.New(repo, crypto.Bcrypt{Cost: 4}, notifier, newLogger(), cfg)
	router := NewRouter(newLogger(), svc, nil, cfg, nil)
	t.Cleanup(router.Close)
	return testEnv{router: router, repo: repo, notifier: notifier}
}

func (e testEnv) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var payload struct {
		Error errorBody `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	if payload.Error.Timestamp == "" {
		t.Fatalf("expected timestamp in error body: %s", rec.Body.String())
	}
	return payload.Error
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) errorBody {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, rec.Code, rec.Body.String())
	}
	body := decodeErrorBody(t, rec)
	if body.Code != code {
		t.Fatalf("expected code %s, got %s", code, body.Code)
	}
	return body
}

const validRegistration = `{"email":"a@example.com","password":"longenough1","dateOfBirth":"2000-01-01"}`

func TestRegisterVerifyRoundTrip(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{ExposeVerificationToken: true})

	rec := env.do(t, http.MethodPost, "/api/auth/register", validRegistration, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var reg struct {
		Message               string              `json:"message"`
		User                  account.CreatedView `json:"user"`
		VerificationExpiresAt time.Time           `json:"verificationExpiresAt"`
		VerificationToken     string              `json:"verificationToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reg); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if reg.User.Email != "a@example.com" || reg.User.IsEmailVerified || reg.User.ID == "" {
		t.Fatalf("unexpected user: %+v", reg.User)
	}
	if len(reg.VerificationToken) != 64 {
		t.Fatalf("expected exposed 64 character token, got %q", reg.VerificationToken)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("response must not mention the password: %s", rec.Body.String())
	}
	if got := env.notifier.last(t).Token; got != reg.VerificationToken {
		t.Fatalf("notifier token %q differs from exposed token", got)
	}

	rec = env.do(t, http.MethodPost, "/api/auth/verify-email", `{"token":"`+reg.VerificationToken+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var verified struct {
		Message string       `json:"message"`
		User    account.View `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &verified); err != nil {
		t.Fatalf("decode verify response: %v", err)
	}
	if !verified.User.IsEmailVerified || verified.User.ID != reg.User.ID {
		t.Fatalf("expected verified user, got %+v", verified.User)
	}

	rec = env.do(t, http.MethodPost, "/api/auth/verify-email", `{"token":"`+reg.VerificationToken+`"}`, nil)
	expectError(t, rec, http.StatusBadRequest, codeInvalidToken)
}

func TestVerificationTokenHiddenByDefault(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	rec := env.do(t, http.MethodPost, "/api/auth/register", validRegistration, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "verificationToken") {
		t.Fatalf("token must not be exposed: %s", rec.Body.String())
	}

	token := env.notifier.last(t).Token
	rec = env.do(t, http.MethodGet, "/api/auth/verify-email?token="+token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected link verification to succeed, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	if rec := env.do(t, http.MethodPost, "/api/auth/register", validRegistration, nil); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/auth/register", `{"email":"A@Example.com","password":"short","dateOfBirth":"2000-01-01"}`, nil)
	body := expectError(t, rec, http.StatusConflict, codeEmailExists)
	if _, ok := body.Details["email"]; !ok {
		t.Fatalf("expected email details, got %v", body.Details)
	}
	if env.repo.Len() != 1 {
		t.Fatalf("expected a single stored account, got %d", env.repo.Len())
	}
}

func TestRegisterValidationErrors(t *testing.T) {
	underage := time.Now().UTC().AddDate(-10, 0, 0).Format("2006-01-02")
	cases := []struct {
		name   string
		body   string
		status int
		code   string
		fields []string
	}{
		{"empty object", `{}`, http.StatusBadRequest, codeMissingField, []string{"dateOfBirth", "email", "password"}},
		{"missing password", `{"email":"a@example.com","dateOfBirth":"2000-01-01"}`, http.StatusBadRequest, codeMissingField, []string{"password"}},
		{"unknown field", `{"email":"a@example.com","password":"longenough1","dateOfBirth":"2000-01-01","admin":true}`, http.StatusBadRequest, codeValidation, nil},
		{"malformed json", `{"email":`, http.StatusBadRequest, codeValidation, nil},
		{"trailing data", validRegistration + `{}`, http.StatusBadRequest, codeValidation, nil},
		{"bad date", `{"email":"a@example.com","password":"longenough1","dateOfBirth":"01/02/2000"}`, http.StatusBadRequest, codeValidation, []string{"dateOfBirth"}},
		{"invalid email", `{"email":"not-an-email","password":"longenough1","dateOfBirth":"2000-01-01"}`, http.StatusUnprocessableEntity, codeInvalidEmail, []string{"email"}},
		{"weak password", `{"email":"a@example.com","password":"short","dateOfBirth":"2000-01-01"}`, http.StatusUnprocessableEntity, codeWeakPassword, []string{"password"}},
		{"underage", `{"email":"a@example.com","password":"longenough1","dateOfBirth":"` + underage + `"}`, http.StatusUnprocessableEntity, codeUnderage, []string{"dateOfBirth"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, config.APIConfig{})
			rec := env.do(t, http.MethodPost, "/api/auth/register", tc.body, nil)
			body := expectError(t, rec, tc.status, tc.code)
			if tc.fields != nil {
				var got []string
				for field := range body.Details {
					got = append(got, field)
				}
				slices.Sort(got)
				if !slices.Equal(got, tc.fields) {
					t.Fatalf("expected detail fields %v, got %v", tc.fields, got)
				}
			}
			if env.repo.Len() != 0 {
				t.Fatalf("no account must be stored on failure")
			}
		})
	}
}

func TestVerifyErrors(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	expectError(t, env.do(t, http.MethodPost, "/api/auth/verify-email", `{}`, nil), http.StatusBadRequest, codeMissingToken)
	expectError(t, env.do(t, http.MethodGet, "/api/auth/verify-email", "", nil), http.StatusBadRequest, codeMissingToken)
	expectError(t, env.do(t, http.MethodPost, "/api/auth/verify-email", `{"token":"nope"}`, nil), http.StatusBadRequest, codeInvalidToken)
	expectError(t, env.do(t, http.MethodPost, "/api/auth/verify-email", `{"token":1}`, nil), http.StatusBadRequest, codeValidation)
	expectError(t, env.do(t, http.MethodDelete, "/api/auth/verify-email", "", nil), http.StatusMethodNotAllowed, codeMethodNotAllowed)
}

func TestVerifyExpiredToken(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	if rec := env.do(t, http.MethodPost, "/api/auth/register", validRegistration, nil); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	msg := env.notifier.last(t)
	env.router.now = func() time.Time { return msg.ExpiresAt.Add(time.Minute) }

	rec := env.do(t, http.MethodPost, "/api/auth/verify-email", `{"token":"`+msg.Token+`"}`, nil)
	expectError(t, rec, http.StatusBadRequest, codeTokenExpired)

	stored, err := env.repo.GetAccountByID(context.Background(), msg.AccountID)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	if stored.IsEmailVerified || !stored.HasPendingVerification() {
		t.Fatalf("expired attempt must not change the account: %+v", stored)
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	if rec := env.do(t, http.MethodPost, "/api/auth/register", validRegistration, nil); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	accountID := env.notifier.last(t).AccountID

	expectError(t, env.do(t, http.MethodGet, "/api/auth/me", "", nil), http.StatusUnauthorized, codeNotAuthenticated)
	expectError(t, env.do(t, http.MethodGet, "/api/auth/me", "", http.Header{"Authorization": {"Bearer garbage"}}), http.StatusUnauthorized, codeNotAuthenticated)

	ghost, err := jwtpkg.GenerateToken("ghost", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/auth/me", "", http.Header{"Authorization": {"Bearer " + ghost}}), http.StatusUnauthorized, codeNotAuthenticated)

	bearer, err := jwtpkg.GenerateToken(accountID, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	rec := env.do(t, http.MethodGet, "/api/auth/me", "", http.Header{"Authorization": {"Bearer " + bearer}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var payload struct {
		User map[string]any `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode me response: %v", err)
	}
	for _, key := range []string{"id", "email", "roles", "tokenBalance", "isEmailVerified", "isActive", "createdAt", "lastActiveAt"} {
		if _, ok := payload.User[key]; !ok {
			t.Fatalf("expected %q in projection: %v", key, payload.User)
		}
	}
	for _, key := range []string{"passwordHash", "verificationTokenHash", "verificationExpiresAt"} {
		if _, ok := payload.User[key]; ok {
			t.Fatalf("projection leaked %q", key)
		}
	}
	roles, _ := payload.User["roles"].([]any)
	if len(roles) != 1 || roles[0] != domain.RoleUser {
		t.Fatalf("expected implicit ROLE_USER, got %v", payload.User["roles"])
	}
}

func TestRegisterRateLimited(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{RateLimitRegister: 1})
	first := env.do(t, http.MethodPost, "/api/auth/register", validRegistration, nil)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}
	if first.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("expected rate limit headers, got %v", first.Header())
	}
	second := env.do(t, http.MethodPost, "/api/auth/register", `{"email":"b@example.com","password":"longenough1","dateOfBirth":"2000-01-01"}`, nil)
	expectError(t, second, http.StatusTooManyRequests, codeRateLimited)

	verify := env.do(t, http.MethodPost, "/api/auth/verify-email", `{"token":"nope"}`, nil)
	expectError(t, verify, http.StatusBadRequest, codeInvalidToken)
}

type brokenRepo struct{ memory.Repository }

func (*brokenRepo) GetAccountByEmail(context.Context, string) (*domain.Account, error) {
	return nil, errors.New("pq: connection refused on 10.0.0.5")
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	cfg := config.APIConfig{JWTSecret: testSecret}
	svc := account.New(&brokenRepo{}, crypto.Bcrypt{Cost: 4}, nil, newLogger(), cfg)
	router := NewRouter(newLogger(), svc, nil, cfg, nil)
	defer router.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(validRegistration))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	body := expectError(t, rec, http.StatusInternalServerError, codeInternal)
	if strings.Contains(body.Message, "10.0.0.5") {
		t.Fatalf("internal detail leaked: %q", body.Message)
	}
}

func TestHealthz(t *testing.T) {
	cfg := config.APIConfig{JWTSecret: testSecret}
	svc := account.New(memory.New(), crypto.Bcrypt{Cost: 4}, nil, newLogger(), cfg)

	healthy := NewRouter(newLogger(), svc, nil, cfg, func(context.Context) error { return nil })
	defer healthy.Close()
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	down := NewRouter(newLogger(), svc, nil, cfg, func(context.Context) error { return errors.New("db down") })
	defer down.Close()
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"degraded"`)) {
		t.Fatalf("expected degraded status: %s", rec.Body.String())
	}
}

func TestMethodNotAllowedAndNotFound(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	expectError(t, env.do(t, http.MethodGet, "/api/auth/register", "", nil), http.StatusMethodNotAllowed, codeMethodNotAllowed)
	expectError(t, env.do(t, http.MethodGet, "/api/unknown", "", nil), http.StatusNotFound, codeNotFound)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	env.do(t, http.MethodPost, "/api/auth/register", validRegistration, nil)
	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "accounts_api_http_requests_total") {
		t.Fatalf("expected request metrics in output")
	}
}
