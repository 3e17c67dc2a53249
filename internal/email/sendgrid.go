package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/dukerupert/cadence/internal/model"
)

const sendgridHost = "https://api.sendgrid.com"

type SendGridClient struct {
	apiKey   string
	fromName string
	fromMail string
	request  rest.Request
}

func NewSendGridClient(apiKey, fromName, fromMail string) *SendGridClient {
	return newSendGridClient(apiKey, fromName, fromMail, sendgridHost)
}

func newSendGridClient(apiKey, fromName, fromMail, host string) *SendGridClient {
	return &SendGridClient{
		apiKey:   apiKey,
		fromName: fromName,
		fromMail: fromMail,
		request:  sendgrid.GetRequest(apiKey, "/v3/mail/send", host),
	}
}

func (s *SendGridClient) Configured() bool {
	return s.apiKey != ""
}

func (s *SendGridClient) Send(ctx context.Context, msg Message) error {
	if !s.Configured() {
		return fmt.Errorf("email client not configured: missing sendgrid api key")
	}

	from := mail.NewEmail(s.fromName, s.fromMail)
	to := mail.NewEmail("", msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.TextBody, msg.HTMLBody)

	// sendgrid.Client stores the body on itself, so each send gets its own.
	client := &sendgrid.Client{Request: s.request}
	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("%w: sendgrid: %v", model.ErrTransport, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: sendgrid API error: status %d", model.ErrTransport, resp.StatusCode)
	}
	return nil
}
