package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Message is a message captured by MockProvider.
type Message struct {
	Subject string
	Body    string
}

// MockProvider logs messages instead of delivering them, for local development.
type MockProvider struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []Message
}

// NewMockProvider creates a new mock provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Send logs the message and records it.
func (m *MockProvider) Send(_ context.Context, subject, body string) error {
	m.logger.Info("MOCK MESSAGE",
		"subject", subject,
		"body", body)
	m.mu.Lock()
	m.sent = append(m.sent, Message{Subject: subject, Body: body})
	m.mu.Unlock()
	return nil
}

// Sent returns the messages recorded so far.
func (m *MockProvider) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
