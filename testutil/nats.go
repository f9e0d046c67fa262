package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Message is one recorded publish
type Message struct {
	Subject string
	Data    []byte
}

// MockPublisher records publishes in order instead of sending them to NATS.
// It has the Publish signature of natsclient.Client.
type MockPublisher struct {
	mu       sync.Mutex
	messages []Message
	failWith error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish records a copy of data, or returns the error set by FailWith
func (p *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.messages = append(p.messages, Message{Subject: subject, Data: append([]byte(nil), data...)})
	return nil
}

// FailWith makes every following Publish return err; nil restores recording
func (p *MockPublisher) FailWith(err error) {
	p.mu.Lock()
	p.failWith = err
	p.mu.Unlock()
}

// Messages returns the payloads published on subject, oldest first
func (p *MockPublisher) Messages(subject string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out [][]byte
	for _, m := range p.messages {
		if m.Subject == subject {
			out = append(out, m.Data)
		}
	}
	return out
}

// Count returns how many messages were published on subject
func (p *MockPublisher) Count(subject string) int {
	return len(p.Messages(subject))
}

// WaitForMessage waits until subject has a message and returns the newest
func WaitForMessage(t testing.TB, p *MockPublisher, subject string, timeout time.Duration) []byte {
	t.Helper()
	var last []byte
	require.Eventually(t, func() bool {
		msgs := p.Messages(subject)
		if len(msgs) == 0 {
			return false
		}
		last = msgs[len(msgs)-1]
		return true
	}, timeout, 5*time.Millisecond, "no message on %s", subject)
	return last
}
