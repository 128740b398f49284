package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"
)

// ProviderStripe is the provider name stored on ledger entries
const ProviderStripe = "stripe"

// Checkout metadata keys
const (
	MetadataOrderID     = "order_id"
	MetadataPaymentType = "payment_type"
	MetadataUserID      = "user_id"
)

// EventCheckoutCompleted is the provider event that confirms a checkout payment
const EventCheckoutCompleted = "checkout.session.completed"

// ErrInvalidSignature is returned when a webhook payload fails verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// CheckoutRequest describes a hosted checkout to open at the provider
type CheckoutRequest struct {
	OrderID       uint
	PaymentType   string
	AmountMinor   int64
	Currency      string
	Description   string
	CustomerEmail string
	UserID        *uint
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the provider's handle for a hosted checkout
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// ProviderSession is a checkout session as reported by the provider
type ProviderSession struct {
	ID          string
	Paid        bool
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}

// WebhookEvent is a verified provider event
type WebhookEvent struct {
	ID      string
	Type    string
	Session *ProviderSession
}

// PaymentProvider is the external checkout provider
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*ProviderSession, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// StripeProvider implements PaymentProvider with Stripe Checkout
type StripeProvider struct {
	client     *client.API
	webhookKey string
}

// NewStripeProvider creates a Stripe client for the given keys
func NewStripeProvider(secretKey, webhookKey string) *StripeProvider {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeProvider{client: sc, webhookKey: webhookKey}
}

// CreateCheckoutSession opens a one-line-item payment session
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(req.OrderID), 10)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	for k, v := range checkoutMetadata(req) {
		params.AddMetadata(k, v)
	}

	sess, err := p.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// GetCheckoutSession retrieves a session by id
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*ProviderSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := p.client.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve stripe checkout session: %w", err)
	}
	return fromStripeSession(sess), nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookKey, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if out.Type == EventCheckoutCompleted && event.Data != nil {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		out.Session = fromStripeSession(&sess)
	}
	return out, nil
}

func fromStripeSession(sess *stripe.CheckoutSession) *ProviderSession {
	return &ProviderSession{
		ID:          sess.ID,
		Paid:        sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountMinor: sess.AmountTotal,
		Currency:    string(sess.Currency),
		Metadata:    sess.Metadata,
	}
}

func checkoutMetadata(req CheckoutRequest) map[string]string {
	md := map[string]string{
		MetadataOrderID:     strconv.FormatUint(uint64(req.OrderID), 10),
		MetadataPaymentType: req.PaymentType,
	}
	if req.UserID != nil {
		md[MetadataUserID] = strconv.FormatUint(uint64(*req.UserID), 10)
	}
	return md
}

// confirmationFromSession turns a paid provider session into a settlement input
func confirmationFromSession(sess *ProviderSession) (PaymentConfirmation, error) {
	orderID, err := strconv.ParseUint(sess.Metadata[MetadataOrderID], 10, 64)
	if err != nil || orderID == 0 {
		return PaymentConfirmation{}, InvalidInput("INVALID_SESSION_METADATA", "Checkout session has no valid order_id")
	}

	conf := PaymentConfirmation{
		OrderID:       uint(orderID),
		PaymentType:   sess.Metadata[MetadataPaymentType],
		Amount:        FromMinorUnits(sess.AmountMinor),
		Currency:      sess.Currency,
		TransactionID: sess.ID,
	}
	if raw := sess.Metadata[MetadataUserID]; raw != "" {
		if uid, err := strconv.ParseUint(raw, 10, 64); err == nil {
			id := uint(uid)
			conf.PayerID = &id
		}
	}
	return conf, nil
}
