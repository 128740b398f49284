package services

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"html/template"
	"net/smtp"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stitchwell/tailoring-api/models"
	"go.uber.org/zap"
)

// Notification kinds
const (
	NotifyOrderConfirmation = "order_confirmation"
	NotifyTailorAssigned    = "tailor_assigned"
	NotifyOrderStatus       = "order_status"
	NotifyPaymentReceipt    = "payment_receipt"
	NotifyPaymentRequest    = "payment_request"
)

// Notification is a single outbound message
type Notification struct {
	Kind    string
	OrderID uint
	To      string
	Subject string
	Body    string
}

// Notifier delivers notifications to customers
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// SMTPNotifier sends notifications as HTML email over SMTP
type SMTPNotifier struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Send delivers the notification, giving up when ctx expires
func (s *SMTPNotifier) Send(ctx context.Context, n Notification) error {
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	from := s.From
	if from == "" {
		from = s.Username
	}

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	msg := []byte(
		"From: " + from + "\r\n" +
			"To: " + n.To + "\r\n" +
			"Subject: " + n.Subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			n.Body,
	)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, from, []string{n.To}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send aborted: %w", ctx.Err())
	}
}

// LogNotifier writes notifications to the log instead of sending them
type LogNotifier struct {
	Logger *zap.Logger
}

// Send logs the notification
func (l *LogNotifier) Send(_ context.Context, n Notification) error {
	l.Logger.Info("notification",
		zap.String("kind", n.Kind),
		zap.Uint("order_id", n.OrderID),
		zap.String("to", n.To),
		zap.String("subject", n.Subject),
	)
	return nil
}

// NotificationDispatcher sends notifications in the background.
// Delivery failures are logged and never reach the caller.
type NotificationDispatcher struct {
	notifier Notifier
	logger   *zap.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewNotificationDispatcher creates a dispatcher; timeout bounds each send
func NewNotificationDispatcher(notifier Notifier, logger *zap.Logger, timeout time.Duration) *NotificationDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NotificationDispatcher{notifier: notifier, logger: logger, timeout: timeout}
}

// Dispatch queues n for delivery and returns immediately
func (d *NotificationDispatcher) Dispatch(n Notification) {
	if d == nil || d.notifier == nil {
		return
	}
	if n.To == "" {
		d.logger.Debug("skipping notification without recipient",
			zap.String("kind", n.Kind), zap.Uint("order_id", n.OrderID))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("notification sender panicked", zap.Any("panic", r), zap.String("kind", n.Kind))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Send(ctx, n); err != nil {
			d.logger.Warn("failed to send notification",
				zap.String("kind", n.Kind),
				zap.Uint("order_id", n.OrderID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every dispatched notification has finished
func (d *NotificationDispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// notificationTemplates render email bodies; customer-supplied fields are HTML-escaped
var notificationTemplates = template.Must(template.New("notifications").Parse(`
{{define "order_confirmation"}}<p>Hi {{.Name}},</p><p>We received your order for {{.Quantity}} x {{.Service}}. Total: {{.Total}}.</p>{{end}}
{{define "tailor_assigned"}}<p>Hi {{.Name}},</p><p>A tailor has started working on your order.</p>{{end}}
{{define "order_status"}}<p>Hi {{.Name}},</p><p>Your order status is now <b>{{.Status}}</b>.</p>{{end}}
{{define "payment_receipt"}}<p>Hi {{.Name}},</p><p>We received {{.Amount}}. Remaining balance: {{.Remaining}}.</p>{{end}}
{{define "payment_request"}}<p>Hi {{.Name}},</p><p>Amount due: {{.Amount}}.</p><p><a href="{{.PayURL}}">Pay now</a></p>{{end}}
`))

type notificationData struct {
	Name      string
	Quantity  int
	Service   string
	Status    string
	Total     string
	Amount    string
	Remaining string
	PayURL    string
}

func newNotificationData(order *models.Order) notificationData {
	return notificationData{
		Name:      order.CustomerName,
		Quantity:  order.Quantity,
		Service:   order.Service.Title,
		Status:    order.Status,
		Total:     order.TotalAmount.StringFixed(2),
		Remaining: order.RemainingAmount.StringFixed(2),
	}
}

func renderNotification(kind string, data notificationData) string {
	var body bytes.Buffer
	if err := notificationTemplates.ExecuteTemplate(&body, kind, data); err != nil {
		return "<p>" + html.EscapeString(fmt.Sprintf("Hi %s, there is an update on your order.", data.Name)) + "</p>"
	}
	return body.String()
}

func orderConfirmationNotification(order *models.Order) Notification {
	return Notification{
		Kind:    NotifyOrderConfirmation,
		OrderID: order.ID,
		To:      order.ContactEmail(),
		Subject: fmt.Sprintf("Order #%d received", order.ID),
		Body:    renderNotification(NotifyOrderConfirmation, newNotificationData(order)),
	}
}

func tailorAssignedNotification(order *models.Order) Notification {
	return Notification{
		Kind:    NotifyTailorAssigned,
		OrderID: order.ID,
		To:      order.ContactEmail(),
		Subject: fmt.Sprintf("Order #%d is in progress", order.ID),
		Body:    renderNotification(NotifyTailorAssigned, newNotificationData(order)),
	}
}

func orderStatusNotification(order *models.Order) Notification {
	return Notification{
		Kind:    NotifyOrderStatus,
		OrderID: order.ID,
		To:      order.ContactEmail(),
		Subject: fmt.Sprintf("Order #%d is %s", order.ID, order.Status),
		Body:    renderNotification(NotifyOrderStatus, newNotificationData(order)),
	}
}

func paymentReceiptNotification(order *models.Order, amount decimal.Decimal) Notification {
	data := newNotificationData(order)
	data.Amount = amount.StringFixed(2)
	return Notification{
		Kind:    NotifyPaymentReceipt,
		OrderID: order.ID,
		To:      order.ContactEmail(),
		Subject: fmt.Sprintf("Payment received for order #%d", order.ID),
		Body:    renderNotification(NotifyPaymentReceipt, data),
	}
}

func paymentRequestNotification(order *models.Order, amountDue decimal.Decimal, payURL string) Notification {
	data := newNotificationData(order)
	data.Amount = amountDue.StringFixed(2)
	data.PayURL = payURL
	return Notification{
		Kind:    NotifyPaymentRequest,
		OrderID: order.ID,
		To:      order.ContactEmail(),
		Subject: fmt.Sprintf("Payment requested for order #%d", order.ID),
		Body:    renderNotification(NotifyPaymentRequest, data),
	}
}
