package email

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NoopSender logs sends without delivering them; used in development.
type NoopSender struct{}

// NewNoopSender creates a new NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send logs the message but does not deliver it.
// POST: Returns a synthetic receipt
func (s *NoopSender) Send(_ context.Context, msg Message) (Receipt, error) {
	slog.Info("noop_email_send", "to", msg.To, "subject", msg.Subject, "category", msg.Category)
	return Receipt{MessageID: "noop-" + uuid.NewString(), SentAt: time.Now()}, nil
}

// ErrForcedFailure is returned by a MemorySender set to fail.
var ErrForcedFailure = errors.New("email delivery failed")

// MemorySender keeps sent messages in memory. Fail makes every send return ErrForcedFailure.
type MemorySender struct {
	mu   sync.Mutex
	Fail bool
	sent []Message
}

// Send records msg, or fails when Fail is set.
func (s *MemorySender) Send(_ context.Context, msg Message) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return Receipt{}, ErrForcedFailure
	}
	s.sent = append(s.sent, msg)
	return Receipt{MessageID: "mem-" + uuid.NewString(), SentAt: time.Now()}, nil
}

// Sent returns a copy of the delivered messages.
func (s *MemorySender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}

// SetFail toggles forced failure.
func (s *MemorySender) SetFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fail = fail
}
