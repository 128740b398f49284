package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment types
const (
	PaymentTypeInitial = "initial"
	PaymentTypeFinal   = "final"
)

// Ledger entry statuses
const (
	LedgerStatusInitialPaid = "initial_paid"
	LedgerStatusCompleted   = "completed"
	LedgerStatusFlagged     = "flagged" // amount did not match the expected value; not credited
)

// Payment is an append-only ledger entry for one confirmed provider payment.
// Amount is what was credited to the order (zero when flagged); ConfirmedAmount is what the provider reported.
// OrderID is a plain column so entries outlive a deleted order.
type Payment struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`
	OrderID               uint            `gorm:"not null;index" json:"order_id"`
	UserID                *uint           `gorm:"index" json:"user_id"`
	Amount                decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	ConfirmedAmount       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"confirmed_amount"`
	ExpectedAmount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"expected_amount"`
	Currency              string          `gorm:"type:varchar(10);not null" json:"currency"`
	PaymentType           string          `gorm:"type:varchar(10);not null" json:"payment_type"`
	Status                string          `gorm:"type:varchar(20);not null" json:"status"`
	Provider              string          `gorm:"type:varchar(20);not null" json:"provider"`
	ProviderTransactionID string          `gorm:"uniqueIndex;not null" json:"provider_transaction_id"`
	CreatedAt             time.Time       `json:"created_at"`
}

// TableName specifies the table name for the Payment model
func (Payment) TableName() string {
	return "payments"
}

// IsCredited reports whether the entry counts towards the order's paid amount
func (p Payment) IsCredited() bool {
	return p.Status != LedgerStatusFlagged
}

// IsValidPaymentType reports whether paymentType is initial or final
func IsValidPaymentType(paymentType string) bool {
	return paymentType == PaymentTypeInitial || paymentType == PaymentTypeFinal
}
