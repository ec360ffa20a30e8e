// Package mail sends email. Use cases depend on the Mail interface; SMTP is
// the only provider.
package mail

import (
	"context"
	"io"
)

type Message struct {
	// From falls back to the configured sender when empty.
	From    string
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	// MessageID becomes the Message-ID header; generated when empty.
	MessageID string
	TextBody  string
	HTMLBody  string
}

type Mail interface {
	io.Closer
	// Send returns the Message-ID the message was sent with.
	Send(ctx context.Context, msg Message) (string, error)
}
