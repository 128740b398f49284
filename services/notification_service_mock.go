package services

import (
	"context"
	"sync"

	"github.com/samber/lo"
)

// MockNotifier records notifications instead of sending them
type MockNotifier struct {
	sent []Notification
	err  error
	mu   sync.RWMutex
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// FailWith makes every subsequent Send return err (after recording the notification)
func (m *MockNotifier) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Send records the notification
func (m *MockNotifier) Send(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return m.err
}

// Sent returns a copy of the recorded notifications
func (m *MockNotifier) Sent() []Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Notification, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentOfKind returns the recorded notifications of one kind
func (m *MockNotifier) SentOfKind(kind string) []Notification {
	return lo.Filter(m.Sent(), func(n Notification, _ int) bool {
		return n.Kind == kind
	})
}

// Clear forgets recorded notifications
func (m *MockNotifier) Clear() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}
