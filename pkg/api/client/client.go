package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:4000"

// Client provides typed access to the accounts API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError is the error envelope returned by the API.
type APIError struct {
	Status    int                 `json:"-"`
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Details   map[string][]string `json:"details,omitempty"`
	Timestamp string              `json:"timestamp"`
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
}

// HasCode reports whether err is an APIError carrying code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return errors.New("client is nil")
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return extractError(resp.StatusCode, resp.Body)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(status int, body io.Reader) error {
	apiErr := &APIError{Status: status}
	data, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	payload.Error.Status = status
	return payload.Error
}

// CreatedUser is the account summary returned after registration.
type CreatedUser struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
}

// User is the full account projection.
type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Roles           []string   `json:"roles"`
	TokenBalance    int64      `json:"tokenBalance"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	IsActive        bool       `json:"isActive"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastActiveAt    *time.Time `json:"lastActiveAt"`
}

// RegisterInput is the registration payload. DateOfBirth uses YYYY-MM-DD.
type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DateOfBirth string `json:"dateOfBirth"`
}

// RegisterResponse is returned by Register. VerificationToken is only set
// when the server exposes tokens.
type RegisterResponse struct {
	Message               string      `json:"message"`
	User                  CreatedUser `json:"user"`
	VerificationExpiresAt time.Time   `json:"verificationExpiresAt"`
	VerificationToken     string      `json:"verificationToken,omitempty"`
}

// VerifyResponse is returned by VerifyEmail.
type VerifyResponse struct {
	Message string `json:"message"`
	User    User   `json:"user"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, input RegisterInput) (RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", input, "", &resp); err != nil {
		return RegisterResponse{}, err
	}
	return resp, nil
}

// VerifyEmail consumes a verification token.
func (c *Client) VerifyEmail(ctx context.Context, token string) (VerifyResponse, error) {
	var resp VerifyResponse
	body := map[string]string{"token": token}
	if err := c.do(ctx, http.MethodPost, "/api/auth/verify-email", body, "", &resp); err != nil {
		return VerifyResponse{}, err
	}
	return resp, nil
}

// Me returns the account identified by the bearer token.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, token, &resp); err != nil {
		return User{}, err
	}
	return resp.User, nil
}
