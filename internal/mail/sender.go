// Package mail provides the outbound notification sink used for reset-code
// delivery: a Sender interface, an SMTP implementation, and a template
// renderer with simple placeholder substitution.
package mail

import (
	"context"
	"sync"
)

type Sender interface {
	Send(ctx context.Context, sender, recipient, subject, body string) error
}

// Message is a captured outbound email. Used by CaptureSender.
type Message struct {
	Sender    string
	Recipient string
	Subject   string
	Body      string
}

// CaptureSender records messages instead of delivering them. Tests read the
// reset code back out of the captured body.
type CaptureSender struct {
	mu       sync.Mutex
	messages []Message
}

func NewCaptureSender() *CaptureSender {
	return &CaptureSender{}
}

func (s *CaptureSender) Send(_ context.Context, sender, recipient, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{
		Sender:    sender,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
	return nil
}

func (s *CaptureSender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *CaptureSender) Last() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}
