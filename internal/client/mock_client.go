package client

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

type SentMessage struct {
	PhoneNumber string
	Message     string
	MessageID   string
}

// MockClient is a deterministic in-process gateway. It never touches the
// network; failures are configured per phone number.
type MockClient struct {
	mu       sync.Mutex
	notReady bool
	failures map[string]error
	sent     []SentMessage
	onSend   func(phoneNumber string)
}

func NewMockClient() *MockClient {
	return &MockClient{failures: make(map[string]error)}
}

func (m *MockClient) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notReady = !ready
}

// FailFor makes every send to phoneNumber return err.
func (m *MockClient) FailFor(phoneNumber string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = errors.New("send failed")
	}
	m.failures[phoneNumber] = err
}

// OnSend registers a hook invoked after each send attempt.
func (m *MockClient) OnSend(fn func(phoneNumber string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSend = fn
}

func (m *MockClient) Send(ctx context.Context, phoneNumber, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	hook := m.onSend
	var (
		id  string
		err error
	)
	switch {
	case m.notReady:
		err = ErrNotReady
	case m.failures[phoneNumber] != nil:
		err = m.failures[phoneNumber]
	default:
		id = uuid.NewString()
		m.sent = append(m.sent, SentMessage{PhoneNumber: phoneNumber, Message: message, MessageID: id})
	}
	m.mu.Unlock()

	if hook != nil {
		hook(phoneNumber)
	}
	return id, err
}

func (m *MockClient) Ready(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notReady {
		return ErrNotReady
	}
	return nil
}

func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}
