package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stitchwell/tailoring-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type blockingNotifier struct{}

func (blockingNotifier) Send(ctx context.Context, _ Notification) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestNotificationDispatcher_Delivers(t *testing.T) {
	notifier := NewMockNotifier()
	dispatcher := NewNotificationDispatcher(notifier, zap.NewNop(), time.Second)

	dispatcher.Dispatch(Notification{Kind: NotifyOrderConfirmation, OrderID: 1, To: "a@example.com"})
	dispatcher.Dispatch(Notification{Kind: NotifyPaymentReceipt, OrderID: 1, To: "a@example.com"})
	dispatcher.Wait()

	assert.Len(t, notifier.Sent(), 2)
	assert.Len(t, notifier.SentOfKind(NotifyPaymentReceipt), 1)
}

func TestNotificationDispatcher_SkipsMissingRecipient(t *testing.T) {
	notifier := NewMockNotifier()
	dispatcher := NewNotificationDispatcher(notifier, zap.NewNop(), time.Second)

	dispatcher.Dispatch(Notification{Kind: NotifyOrderConfirmation, OrderID: 1})
	dispatcher.Wait()

	assert.Empty(t, notifier.Sent())
}

func TestNotificationDispatcher_FailuresAreLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	notifier := NewMockNotifier()
	notifier.FailWith(errors.New("smtp down"))
	dispatcher := NewNotificationDispatcher(notifier, zap.New(core), time.Second)

	dispatcher.Dispatch(Notification{Kind: NotifyTailorAssigned, OrderID: 7, To: "a@example.com"})
	dispatcher.Wait()

	entries := logs.FilterMessage("failed to send notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "smtp down", entries[0].ContextMap()["error"])
}

func TestNotificationDispatcher_Timeout(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	dispatcher := NewNotificationDispatcher(blockingNotifier{}, zap.New(core), 20*time.Millisecond)

	start := time.Now()
	dispatcher.Dispatch(Notification{Kind: NotifyOrderStatus, OrderID: 3, To: "a@example.com"})
	dispatcher.Wait()

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, logs.FilterMessage("failed to send notification").Len())
}

func TestNotificationDispatcher_NilSafe(t *testing.T) {
	var dispatcher *NotificationDispatcher
	assert.NotPanics(t, func() {
		dispatcher.Dispatch(Notification{To: "a@example.com"})
		dispatcher.Wait()
	})
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	notifier := &LogNotifier{Logger: zap.New(core)}

	require.NoError(t, notifier.Send(context.Background(), Notification{Kind: NotifyPaymentRequest, OrderID: 9, To: "a@example.com", Subject: "Pay"}))
	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, NotifyPaymentRequest, entries[0].ContextMap()["kind"])
}

func TestSMTPNotifier_Unreachable(t *testing.T) {
	notifier := &SMTPNotifier{Host: "127.0.0.1", Port: "1", From: "shop@example.com"}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := notifier.Send(ctx, Notification{To: "a@example.com", Subject: "Hi", Body: "<p>Hi</p>"})
	assert.Error(t, err)
}

func TestNotificationBodies_EscapeCustomerInput(t *testing.T) {
	order := &models.Order{
		ID:              7,
		Quantity:        2,
		Status:          models.OrderStatusPending,
		CustomerName:    `<script>alert("x")</script> & co`,
		CustomerEmail:   "guest@example.com",
		Service:         models.Service{Title: "Hem <b>trousers</b>"},
		TotalAmount:     decimal.NewFromInt(100),
		RemainingAmount: decimal.NewFromInt(50),
	}

	notifications := []Notification{
		orderConfirmationNotification(order),
		tailorAssignedNotification(order),
		orderStatusNotification(order),
		paymentReceiptNotification(order, decimal.NewFromInt(50)),
		paymentRequestNotification(order, decimal.NewFromInt(50), "http://localhost:3000/orders/7/pay"),
	}
	for _, n := range notifications {
		t.Run(n.Kind, func(t *testing.T) {
			assert.NotContains(t, n.Body, "<script>")
			assert.Contains(t, n.Body, "&lt;script&gt;")
			assert.Contains(t, n.Body, "&amp; co")
		})
	}

	assert.Contains(t, notifications[0].Body, "Hem &lt;b&gt;trousers&lt;/b&gt;")
	assert.Contains(t, notifications[0].Body, "Total: 100.00")
	assert.Contains(t, notifications[4].Body, `href="http://localhost:3000/orders/7/pay"`)
}
