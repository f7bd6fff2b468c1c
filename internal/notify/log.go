package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes verification links to the log instead of sending mail.
// It is meant for local development when no SMTP relay is configured.
type LogNotifier struct {
	baseURL string
	log     *slog.Logger
}

// NewLog constructs a LogNotifier.
func NewLog(baseURL string, log *slog.Logger) LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return LogNotifier{baseURL: baseURL, log: log}
}

// SendVerification logs the verification link.
func (n LogNotifier) SendVerification(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.log.Info("verification link",
		"account_id", msg.AccountID,
		"email", msg.Email,
		"link", VerificationLink(n.baseURL, msg.Token),
		"expires_at", msg.ExpiresAt,
	)
	return nil
}
