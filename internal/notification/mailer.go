package notification

import (
	"context"
	"fmt"

	"ms-storefront/internal/logger"
)

type Attachment struct {
	Name        string
	ContentType string
	Path        string
}

type Message struct {
	To          string
	ToName      string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// LogMailer only logs what would have been sent. Used when no SMTP host is configured.
type LogMailer struct {
	Logger *logger.Logger
}

func (m *LogMailer) Send(ctx context.Context, msg *Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Name)
	}
	m.Logger.Info("NOTIFY", fmt.Sprintf("Mail to %s: %q (attachments: %v)", msg.To, msg.Subject, names))
	m.Logger.Debug("NOTIFY", msg.TextBody)
	return nil
}
