package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Starbugstone/chat/internal/service/account"
)

const maxBodyBytes = 1 << 20

// Error codes returned in the error envelope.
const (
	codeMissingField     = "MISSING_FIELD"
	codeValidation       = "VALIDATION_ERROR"
	codeEmailExists      = "EMAIL_ALREADY_EXISTS"
	codeInvalidEmail     = "INVALID_EMAIL"
	codeWeakPassword     = "WEAK_PASSWORD"
	codeUnderage         = "UNDERAGE"
	codeMissingToken     = "MISSING_TOKEN"
	codeInvalidToken     = "INVALID_TOKEN"
	codeTokenExpired     = "TOKEN_EXPIRED"
	codeNotAuthenticated = "NOT_AUTHENTICATED"
	codeRateLimited      = "RATE_LIMITED"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeNotFound         = "NOT_FOUND"
	codeInternal         = "INTERNAL_ERROR"
)

type errorBody struct {
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Details   map[string][]string `json:"details,omitempty"`
	Timestamp string              `json:"timestamp"`
}

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends the error envelope.
func writeError(w http.ResponseWriter, status int, code, msg string, details map[string][]string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {
			Code:      code,
			Message:   msg,
			Details:   details,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

type serviceError struct {
	target  error
	status  int
	code    string
	message string
}

var serviceErrors = []serviceError{
	{account.ErrMissingField, http.StatusBadRequest, codeMissingField, "Required field is missing"},
	{account.ErrEmailExists, http.StatusConflict, codeEmailExists, "An account with this email already exists"},
	{account.ErrInvalidEmail, http.StatusUnprocessableEntity, codeInvalidEmail, "Email address is not valid"},
	{account.ErrWeakPassword, http.StatusUnprocessableEntity, codeWeakPassword, "Password does not meet the strength requirements"},
	{account.ErrUnderage, http.StatusUnprocessableEntity, codeUnderage, "Minimum age requirement not met"},
	{account.ErrMissingToken, http.StatusBadRequest, codeMissingToken, "Verification token is required"},
	{account.ErrInvalidToken, http.StatusBadRequest, codeInvalidToken, "Invalid verification token"},
	{account.ErrTokenExpired, http.StatusBadRequest, codeTokenExpired, "Verification token has expired"},
	{account.ErrNotAuthenticated, http.StatusUnauthorized, codeNotAuthenticated, "User not authenticated"},
}

// writeServiceError maps workflow errors to the error envelope. Anything
// unrecognised is logged and reported as an internal error.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	for _, se := range serviceErrors {
		if !errors.Is(err, se.target) {
			continue
		}
		var details map[string][]string
		var fe *account.FieldError
		if errors.As(err, &fe) {
			details = make(map[string][]string, len(fe.Fields))
			for _, field := range fe.Fields {
				details[field] = append(details[field], se.message)
			}
		}
		writeError(w, se.status, se.code, se.message, details)
		return
	}
	r.logger.Error("request failed", "path", req.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error", nil)
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body: unexpected trailing data")
	}
	return nil
}
