// Package email delivers reminder messages. Postmark and SendGrid are the
// production transports; LogSender is for local development.
package email

import (
	"context"
	"log/slog"
)

type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers a single message. Implementations honor ctx cancellation
// and wrap delivery failures in model.ErrTransport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("email", "to", msg.To, "subject", msg.Subject, "body", msg.TextBody)
	return nil
}
