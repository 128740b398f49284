package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusInProgress = "in-progress"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// Order payment statuses
const (
	PaymentStatusPending     = "pending"
	PaymentStatusInitialPaid = "initial_paid"
	PaymentStatusCompleted   = "completed"
)

// Order represents a tailoring order placed by a customer or a guest
type Order struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	CustomerID          *uint           `gorm:"index" json:"customer_id"` // nullable for guest checkout
	Customer            *User           `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	CustomerName        string          `json:"customer_name"`
	CustomerEmail       string          `json:"customer_email"`
	CustomerPhone       string          `json:"customer_phone"`
	ServiceID           uint            `gorm:"not null;index" json:"service_id"`
	Service             Service         `gorm:"foreignKey:ServiceID" json:"service"`
	TailorID            *uint           `gorm:"index" json:"tailor_id"` // nullable, set on assignment
	Tailor              *User           `gorm:"foreignKey:TailorID" json:"tailor,omitempty"`
	Quantity            int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	SpecialInstructions string          `gorm:"type:text" json:"special_instructions"`
	Status              string          `gorm:"not null;default:'pending';index" json:"status"`
	PaymentStatus       string          `gorm:"not null;default:'pending'" json:"payment_status"`
	TotalAmount         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	PaidAmount          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"paid_amount"`
	RemainingAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"remaining_amount"`
	PaymentRequestSent  bool            `gorm:"not null;default:false" json:"payment_request_sent"`
	Version             int             `gorm:"not null;default:1" json:"-"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// BeforeSave keeps the remaining amount derived from total and paid amounts
func (o *Order) BeforeSave(tx *gorm.DB) error {
	o.RemainingAmount = o.TotalAmount.Sub(o.PaidAmount)
	return nil
}

// IsTerminal reports whether the order can no longer change status
func (o Order) IsTerminal() bool {
	return IsTerminalStatus(o.Status)
}

// HasTailor reports whether a tailor is assigned to the order
func (o Order) HasTailor() bool {
	return o.TailorID != nil
}

// ContactEmail returns the address notifications for this order go to
func (o Order) ContactEmail() string {
	if o.Customer != nil && o.Customer.Email != "" {
		return o.Customer.Email
	}
	return o.CustomerEmail
}

// IsTerminalStatus reports whether status is completed or cancelled
func IsTerminalStatus(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusCancelled
}

// IsValidOrderStatus reports whether status belongs to the order state machine
func IsValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}
