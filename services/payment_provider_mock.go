package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockPaymentProvider is an in-memory PaymentProvider for tests.
// Webhook "signatures" are accepted when they equal the configured secret.
type MockPaymentProvider struct {
	Secret   string
	sessions map[string]*ProviderSession
	requests []CheckoutRequest
	err      error
	seq      int
	mu       sync.Mutex
}

// NewMockPaymentProvider creates a mock provider
func NewMockPaymentProvider(secret string) *MockPaymentProvider {
	return &MockPaymentProvider{Secret: secret, sessions: make(map[string]*ProviderSession)}
}

// FailWith makes provider calls return err
func (m *MockPaymentProvider) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// CreateCheckoutSession records the request and returns an unpaid session
func (m *MockPaymentProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	m.seq++
	id := fmt.Sprintf("cs_test_%d", m.seq)
	m.sessions[id] = &ProviderSession{
		ID:          id,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Metadata:    checkoutMetadata(req),
	}
	m.requests = append(m.requests, req)
	return &CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

// GetCheckoutSession returns a stored session
func (m *MockPaymentProvider) GetCheckoutSession(_ context.Context, sessionID string) (*ProviderSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such checkout session: %s", sessionID)
	}
	copied := *sess
	return &copied, nil
}

// ParseWebhook decodes a JSON-encoded WebhookEvent
func (m *MockPaymentProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if signature != m.Secret {
		return nil, ErrInvalidSignature
	}
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &event, nil
}

// MarkPaid flags a session as paid, optionally overriding the charged amount
func (m *MockPaymentProvider) MarkPaid(sessionID string, amountMinor int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.Paid = true
		if amountMinor > 0 {
			sess.AmountMinor = amountMinor
		}
	}
}

// Requests returns the checkout requests received so far
func (m *MockPaymentProvider) Requests() []CheckoutRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CheckoutRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
