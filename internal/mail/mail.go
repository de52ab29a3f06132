// Package mail delivers rendered reports by e-mail.
package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("mail delivery is not configured")

// Message is one outgoing mail.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGrid delivers mail through the SendGrid API.
type SendGrid struct {
	FromName  string
	FromEmail string

	client sendClient
	log    *zap.SugaredLogger
}

// NewSendGrid creates a sender. An empty apiKey yields a sender that always
// fails with ErrNotConfigured.
func NewSendGrid(apiKey, fromName, fromEmail string, logger *zap.SugaredLogger) *SendGrid {
	s := &SendGrid{FromName: fromName, FromEmail: fromEmail, log: logger}
	if apiKey != "" {
		s.client = sendgrid.NewSendClient(apiKey)
	}
	return s
}

// Send delivers msg. Status codes of 400 and above are errors.
func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if s.client == nil {
		return ErrNotConfigured
	}
	if msg.To == "" {
		return errors.New("recipient is required")
	}

	from := sgmail.NewEmail(s.FromName, s.FromEmail)
	to := sgmail.NewEmail(msg.ToName, msg.To)
	message := sgmail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.log.Errorw("failed to send email", "error", err, "to", msg.To)
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		s.log.Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", msg.To)
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}
	s.log.Infow("email sent successfully", "to", msg.To, "subject", msg.Subject)
	return nil
}

var _ Sender = (*SendGrid)(nil)
