// Package mailer abstracts the SMTP delivery of notification emails.
// Template rendering lives elsewhere; a Sender receives a fully-formed
// notification record and is responsible only for getting it out the door.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/kundapp/booking/pkg/models"
)

// Sender delivers a single notification email.
type Sender interface {
	Send(ctx context.Context, record *models.NotificationRecord) error
}

// subjects maps each event type to its email subject line.
var subjects = map[models.NotificationEventType]string{
	models.UserEnrolled:     "You're enrolled",
	models.UserCancelled:    "Your enrollment was cancelled",
	models.SessionCancelled: "Session cancelled",
	models.SessionModified:  "Session details changed",
	models.SessionCompleted: "Session completed",
	models.SessionCreated:   "New session available",
}

// SMTPSender sends mail through a real SMTP endpoint.
type SMTPSender struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

// NewSMTPSender creates a sender for the given SMTP endpoint. auth may be
// nil for unauthenticated relays.
func NewSMTPSender(addr, from string, auth smtp.Auth) *SMTPSender {
	return &SMTPSender{Addr: addr, From: from, Auth: auth}
}

var _ Sender = (*SMTPSender)(nil)

// Send builds a plain-text message from the record and submits it.
func (s *SMTPSender) Send(ctx context.Context, record *models.NotificationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := subjects[record.EventType]
	if subject == "" {
		subject = string(record.EventType)
	}

	body := fmt.Sprintf("Hello %s,\r\n\r\nSession: %s\r\nStarts: %s\r\n",
		record.Recipient.FirstName,
		record.Session.Subject,
		record.Session.StartTime.Format("Mon, 02 Jan 2006 15:04"),
	)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.From, record.Recipient.Email, subject, body)

	if err := smtp.SendMail(s.Addr, s.Auth, s.From, []string{record.Recipient.Email}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", record.Recipient.Email, err)
	}
	return nil
}

// MockSender logs instead of sending. Used in local development, where the
// SMTP endpoint is usually absent.
type MockSender struct {
	Logger *slog.Logger
}

var _ Sender = (*MockSender)(nil)

// Send logs the would-be delivery and succeeds.
func (m *MockSender) Send(ctx context.Context, record *models.NotificationRecord) error {
	if m.Logger != nil {
		m.Logger.Info("mock email delivery",
			slog.String("recipient", record.Recipient.Email),
			slog.String("event_type", string(record.EventType)),
			slog.String("session_id", record.SessionID),
		)
	}
	return nil
}
