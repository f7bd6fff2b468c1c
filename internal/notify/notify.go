// Package notify delivers account verification links.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

// VerifyPath is the route that consumes verification tokens.
const VerifyPath = "/api/auth/verify-email"

// VerificationSubject is the subject line of verification emails.
const VerificationSubject = "Please confirm your email"

// Message describes one verification email.
type Message struct {
	AccountID string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Notifier delivers verification messages. Implementations honour ctx.
type Notifier interface {
	SendVerification(ctx context.Context, msg Message) error
}

// VerificationLink builds the absolute link a recipient follows to verify.
func VerificationLink(baseURL, token string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return base + VerifyPath + "?" + url.Values{"token": {token}}.Encode()
}

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body>
  <h2>Confirm your email address</h2>
  <p>Hello {{.Email}},</p>
  <p>Thanks for signing up. Please confirm your email address by following the link below:</p>
  <p><a href="{{.Link}}">Verify my email</a></p>
  <p>This link expires on {{.ExpiresAt}}.</p>
  <p>If you did not create an account, you can ignore this message.</p>
</body>
</html>
`))

// RenderVerification returns the HTML body of a verification email.
func RenderVerification(msg Message, link string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Email     string
		Link      string
		ExpiresAt string
	}{
		Email:     msg.Email,
		Link:      link,
		ExpiresAt: msg.ExpiresAt.UTC().Format(time.RFC1123),
	}
	if err := verificationTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render verification email: %w", err)
	}
	return buf.String(), nil
}
