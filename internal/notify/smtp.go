package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier sends verification emails through an SMTP relay.
type SMTPNotifier struct {
	sender  mailSender
	from    string
	baseURL string
	log     *slog.Logger
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	BaseURL  string
}

// NewSMTP constructs an SMTPNotifier.
func NewSMTP(cfg SMTPConfig, log *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("sender address is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &SMTPNotifier{
		sender:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:    cfg.From,
		baseURL: cfg.BaseURL,
		log:     log,
	}, nil
}

// SendVerification renders and sends the verification email. The dial runs
// in the background so ctx bounds how long the caller waits.
func (n *SMTPNotifier) SendVerification(ctx context.Context, msg Message) error {
	if msg.Email == "" || msg.Token == "" {
		return errors.New("verification message requires email and token")
	}
	body, err := RenderVerification(msg, VerificationLink(n.baseURL, msg.Token))
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.Email)
	m.SetHeader("Subject", VerificationSubject)
	m.SetBody("text/html", body)

	done := make(chan error, 1)
	go func() {
		done <- n.sender.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send verification email: %w", err)
		}
		n.log.Debug("verification email sent", "account_id", msg.AccountID)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send verification email: %w", ctx.Err())
	}
}
