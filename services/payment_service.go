package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stitchwell/tailoring-api/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentConfirmation is a provider-verified payment to settle against an order
type PaymentConfirmation struct {
	OrderID       uint
	PaymentType   string
	Amount        decimal.Decimal
	Currency      string
	TransactionID string
	PayerID       *uint
}

// SettlementResult describes what recording a confirmation did
type SettlementResult struct {
	Order     *models.Order   `json:"order"`
	Payment   *models.Payment `json:"payment,omitempty"`
	Duplicate bool            `json:"duplicate"`
	Flagged   bool            `json:"flagged"`
}

// OrderStatusView is the read-only settlement projection of an order
type OrderStatusView struct {
	OrderID         uint            `json:"order_id"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
}

// PaymentService settles provider payments against orders and keeps the payment ledger
type PaymentService struct {
	db        *gorm.DB
	provider  PaymentProvider
	notifier  *NotificationDispatcher
	metrics   *Metrics
	logger    *zap.Logger
	currency  string
	clientURL string
}

// NewPaymentService creates a payment service; provider may be nil when payments are disabled
func NewPaymentService(db *gorm.DB, provider PaymentProvider, notifier *NotificationDispatcher, metrics *Metrics, logger *zap.Logger, currency, clientURL string) *PaymentService {
	if currency == "" {
		currency = "usd"
	}
	return &PaymentService{
		db:        db,
		provider:  provider,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
		currency:  strings.ToLower(currency),
		clientURL: strings.TrimRight(clientURL, "/"),
	}
}

// errDuplicateTransaction aborts a settlement transaction that lost a replay race on the unique index
var errDuplicateTransaction = errors.New("duplicate provider transaction")

// maxSettlementAttempts bounds retries of a settlement that lost a race on the order's payment status
const maxSettlementAttempts = 3

// RecordPayment applies a confirmed payment to an order exactly once per provider transaction
func (s *PaymentService) RecordPayment(ctx context.Context, conf PaymentConfirmation) (*SettlementResult, error) {
	if !models.IsValidPaymentType(conf.PaymentType) {
		return nil, InvalidInput("INVALID_PAYMENT_TYPE", "Payment type must be initial or final")
	}
	if !conf.Amount.IsPositive() {
		return nil, InvalidInput("INVALID_AMOUNT", "Payment amount must be greater than zero")
	}
	if strings.TrimSpace(conf.TransactionID) == "" {
		return nil, InvalidInput("MISSING_TRANSACTION_ID", "Transaction id is required")
	}
	currency := strings.ToLower(conf.Currency)
	if currency == "" {
		currency = s.currency
	}

	var (
		result *SettlementResult
		err    error
	)
	for attempt := 1; attempt <= maxSettlementAttempts; attempt++ {
		result, err = s.settle(ctx, conf, currency)
		if !errors.Is(err, errStaleOrder) {
			break
		}
		s.logger.Info("settlement lost a race, retrying",
			zap.Uint("order_id", conf.OrderID),
			zap.String("transaction_id", conf.TransactionID),
			zap.Int("attempt", attempt),
		)
	}

	if errors.Is(err, errDuplicateTransaction) {
		result = &SettlementResult{Duplicate: true}
		var existing models.Payment
		if lookupErr := s.db.WithContext(ctx).Where("provider_transaction_id = ?", conf.TransactionID).First(&existing).Error; lookupErr == nil {
			result.Payment = &existing
		}
		err = nil
	}
	if err != nil {
		if KindOf(err) != "" {
			s.metrics.payment(conf.PaymentType, OutcomeRejected)
			s.logger.Warn("payment rejected",
				zap.Uint("order_id", conf.OrderID),
				zap.String("payment_type", conf.PaymentType),
				zap.String("transaction_id", conf.TransactionID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	order, err := loadOrder(ctx, s.db, conf.OrderID)
	switch {
	case err == nil:
		result.Order = order
	case result.Duplicate && IsKind(err, KindNotFound):
		// replay for an order deleted since it was settled
	default:
		return nil, err
	}

	switch {
	case result.Duplicate:
		s.metrics.payment(conf.PaymentType, OutcomeDuplicate)
		s.logger.Info("duplicate payment confirmation ignored",
			zap.Uint("order_id", conf.OrderID),
			zap.String("transaction_id", conf.TransactionID),
		)
	case result.Flagged:
		s.metrics.payment(conf.PaymentType, OutcomeFlagged)
		s.logger.Warn("payment amount mismatch, flagged for review",
			zap.Uint("order_id", conf.OrderID),
			zap.String("payment_type", conf.PaymentType),
			zap.String("confirmed", conf.Amount.String()),
			zap.String("expected", result.Payment.ExpectedAmount.String()),
		)
	default:
		s.metrics.payment(conf.PaymentType, OutcomeCredited)
		s.logger.Info("payment recorded",
			zap.Uint("order_id", conf.OrderID),
			zap.String("payment_type", conf.PaymentType),
			zap.String("confirmed", conf.Amount.String()),
			zap.String("credited", result.Payment.Amount.String()),
			zap.String("payment_status", order.PaymentStatus),
		)
		s.notifier.Dispatch(paymentReceiptNotification(order, conf.Amount))
	}
	return result, nil
}

// settle runs one settlement attempt. The order write is conditioned on the payment status read
// in the same transaction, so lifecycle writes to other columns never invalidate it.
func (s *PaymentService) settle(ctx context.Context, conf PaymentConfirmation, currency string) (*SettlementResult, error) {
	result := &SettlementResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Payment
		err := tx.Where("provider_transaction_id = ?", conf.TransactionID).First(&existing).Error
		if err == nil {
			result.Duplicate = true
			result.Payment = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up payment: %w", err)
		}

		order, err := findOrder(tx, conf.OrderID)
		if err != nil {
			return err
		}

		var expected decimal.Decimal
		switch conf.PaymentType {
		case models.PaymentTypeInitial:
			if order.PaymentStatus != models.PaymentStatusPending {
				return Conflict("PAYMENT_OUT_OF_SEQUENCE", fmt.Sprintf("Initial payment not accepted while payment status is %s", order.PaymentStatus))
			}
			expected = HalfOf(order.TotalAmount)
		case models.PaymentTypeFinal:
			if order.PaymentStatus != models.PaymentStatusInitialPaid {
				return Conflict("PAYMENT_OUT_OF_SEQUENCE", fmt.Sprintf("Final payment not accepted while payment status is %s", order.PaymentStatus))
			}
			expected = order.RemainingAmount
		}

		entry := models.Payment{
			OrderID:               order.ID,
			UserID:                conf.PayerID,
			Amount:                decimal.Zero,
			ConfirmedAmount:       conf.Amount,
			ExpectedAmount:        expected,
			Currency:              currency,
			PaymentType:           conf.PaymentType,
			Provider:              ProviderStripe,
			ProviderTransactionID: conf.TransactionID,
		}

		if !withinTolerance(conf.Amount, expected) {
			entry.Status = models.LedgerStatusFlagged
			if err := insertLedgerEntry(tx, &entry); err != nil {
				return err
			}
			result.Flagged = true
			result.Payment = &entry
			return nil
		}

		// a final within tolerance settles the balance exactly
		credit := decimal.Min(conf.Amount, order.RemainingAmount)
		if conf.PaymentType == models.PaymentTypeFinal {
			credit = order.RemainingAmount
		}
		entry.Amount = credit
		paid := order.PaidAmount.Add(credit)
		remaining := order.TotalAmount.Sub(paid)

		paymentStatus := models.PaymentStatusInitialPaid
		entry.Status = models.LedgerStatusInitialPaid
		if !remaining.IsPositive() {
			paymentStatus = models.PaymentStatusCompleted
			entry.Status = models.LedgerStatusCompleted
		}

		if err := insertLedgerEntry(tx, &entry); err != nil {
			return err
		}

		update := tx.Model(&models.Order{}).
			Where("id = ? AND payment_status = ?", order.ID, order.PaymentStatus).
			Updates(map[string]interface{}{
				"paid_amount":          paid,
				"remaining_amount":     remaining,
				"payment_status":       paymentStatus,
				"payment_request_sent": false,
				"version":              gorm.Expr("version + 1"),
			})
		if update.Error != nil {
			return fmt.Errorf("failed to credit order: %w", update.Error)
		}
		if update.RowsAffected == 0 {
			return errStaleOrder
		}

		result.Payment = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func insertLedgerEntry(tx *gorm.DB, entry *models.Payment) error {
	if err := tx.Create(entry).Error; err != nil {
		if isUniqueViolation(err) {
			return errDuplicateTransaction
		}
		return fmt.Errorf("failed to record payment: %w", err)
	}
	return nil
}

// CheckOrderStatus returns the settlement projection of an order visible to actor
func (s *PaymentService) CheckOrderStatus(ctx context.Context, orderID uint, actor Actor) (*OrderStatusView, error) {
	order, err := loadOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeView(order, actor); err != nil {
		return nil, err
	}
	return &OrderStatusView{
		OrderID:         order.ID,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		TotalAmount:     order.TotalAmount,
		PaidAmount:      order.PaidAmount,
		RemainingAmount: order.RemainingAmount,
	}, nil
}

// CreateCheckout opens a provider checkout for the next instalment of an order.
// Registered customers may only pay their own orders; guest orders may be paid by anyone holding the link.
func (s *PaymentService) CreateCheckout(ctx context.Context, orderID uint, paymentType string, actor Actor) (*CheckoutSession, error) {
	if s.provider == nil {
		return nil, Unavailable("PAYMENTS_DISABLED", "Payments are not configured", nil)
	}
	if !models.IsValidPaymentType(paymentType) {
		return nil, InvalidInput("INVALID_PAYMENT_TYPE", "Payment type must be initial or final")
	}

	order, err := loadOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != nil && (actor.Role != models.RoleCustomer || *order.CustomerID != actor.UserID) {
		return nil, Forbidden("NOT_ORDER_OWNER", "You can only pay for your own orders")
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, Conflict("ORDER_CLOSED", "Order is cancelled")
	}

	var amount decimal.Decimal
	switch paymentType {
	case models.PaymentTypeInitial:
		if order.PaymentStatus != models.PaymentStatusPending {
			return nil, Conflict("PAYMENT_OUT_OF_SEQUENCE", "Initial payment has already been made")
		}
		amount = HalfOf(order.TotalAmount)
	case models.PaymentTypeFinal:
		if order.PaymentStatus != models.PaymentStatusInitialPaid {
			return nil, Conflict("PAYMENT_OUT_OF_SEQUENCE", "Final payment requires the initial payment first")
		}
		if order.Status != models.OrderStatusCompleted {
			return nil, Conflict("ORDER_NOT_COMPLETED", "Final payment is only available once the order is completed")
		}
		amount = order.RemainingAmount
	}

	req := CheckoutRequest{
		OrderID:       order.ID,
		PaymentType:   paymentType,
		AmountMinor:   ToMinorUnits(amount),
		Currency:      s.currency,
		Description:   fmt.Sprintf("%s (%s payment) - order #%d", order.Service.Title, paymentType, order.ID),
		CustomerEmail: order.ContactEmail(),
		SuccessURL:    fmt.Sprintf("%s/payment/success?session_id={CHECKOUT_SESSION_ID}", s.clientURL),
		CancelURL:     fmt.Sprintf("%s/payment/cancel?order_id=%d", s.clientURL, order.ID),
	}
	if !actor.IsGuest() {
		uid := actor.UserID
		req.UserID = &uid
	}

	session, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.logger.Error("checkout session creation failed", zap.Uint("order_id", order.ID), zap.Error(err))
		return nil, Unavailable("PAYMENT_PROVIDER_ERROR", "Payment provider is unavailable", err)
	}

	s.logger.Info("checkout session created",
		zap.Uint("order_id", order.ID),
		zap.String("payment_type", paymentType),
		zap.String("session_id", session.ID),
		zap.Int64("amount_minor", req.AmountMinor),
	)
	return session, nil
}

// VerifyPayment looks a checkout session up at the provider and settles it if paid
func (s *PaymentService) VerifyPayment(ctx context.Context, sessionID string) (*SettlementResult, error) {
	if s.provider == nil {
		return nil, Unavailable("PAYMENTS_DISABLED", "Payments are not configured", nil)
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, InvalidInput("MISSING_SESSION_ID", "session_id is required")
	}

	session, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, Unavailable("PAYMENT_PROVIDER_ERROR", "Could not retrieve checkout session", err)
	}
	if !session.Paid {
		return nil, Conflict("PAYMENT_NOT_COMPLETED", "Checkout session has not been paid")
	}

	conf, err := confirmationFromSession(session)
	if err != nil {
		return nil, err
	}
	return s.RecordPayment(ctx, conf)
}

// HandleWebhook verifies a provider event and settles completed checkouts.
// It returns (nil, nil) for events that need no action.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*SettlementResult, error) {
	if s.provider == nil {
		return nil, Unavailable("PAYMENTS_DISABLED", "Payments are not configured", nil)
	}

	event, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			return nil, &ServiceError{Kind: KindInvalidInput, Code: "INVALID_SIGNATURE", Message: "Webhook signature verification failed", Err: err}
		}
		return nil, &ServiceError{Kind: KindInvalidInput, Code: "INVALID_PAYLOAD", Message: "Webhook payload could not be decoded", Err: err}
	}

	if event.Type != EventCheckoutCompleted || event.Session == nil {
		s.logger.Debug("ignoring webhook event", zap.String("event_type", event.Type), zap.String("event_id", event.ID))
		return nil, nil
	}
	if !event.Session.Paid {
		s.logger.Info("checkout completed without payment", zap.String("session_id", event.Session.ID))
		return nil, nil
	}

	conf, err := confirmationFromSession(event.Session)
	if err != nil {
		return nil, err
	}
	return s.RecordPayment(ctx, conf)
}

// ListOrderPayments returns the ledger entries of an order visible to actor, newest first
func (s *PaymentService) ListOrderPayments(ctx context.Context, orderID uint, actor Actor) ([]models.Payment, error) {
	order, err := loadOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeView(order, actor); err != nil {
		return nil, err
	}

	payments := []models.Payment{}
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at DESC, id DESC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// ListPayments returns the whole ledger, newest first
func (s *PaymentService) ListPayments(ctx context.Context) ([]models.Payment, error) {
	payments := []models.Payment{}
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}
