package email

import (
	"context"
	"time"
)

// Message is one outbound email.
type Message struct {
	To       []string
	From     string // falls back to the sender's default
	ReplyTo  string
	Subject  string
	HTML     string
	Text     string
	Category string // provider tag used for delivery analytics
}

// Receipt is the provider's acknowledgement of a send.
type Receipt struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers email through an external provider.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}
