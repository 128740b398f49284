package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stitchwell/tailoring-api/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var validate = validator.New()

// Actor is the caller of an operation; a zero UserID means an unauthenticated guest
type Actor struct {
	UserID uint
	Role   string
}

// IsGuest reports whether the actor is unauthenticated
func (a Actor) IsGuest() bool {
	return a.UserID == 0
}

// IsAdmin reports whether the actor is an admin
func (a Actor) IsAdmin() bool {
	return !a.IsGuest() && a.Role == models.RoleAdmin
}

// GuestContact is the contact snapshot taken at order creation
type GuestContact struct {
	Name  string
	Email string
	Phone string
}

// CreateOrderInput holds the fields a customer or guest may set on a new order
type CreateOrderInput struct {
	ServiceID           uint
	Quantity            int
	SpecialInstructions string
	Contact             GuestContact
}

// OrderFilter narrows admin order listings
type OrderFilter struct {
	Status string
}

// OrderService runs the order lifecycle: creation, tailor assignment and status transitions
type OrderService struct {
	db        *gorm.DB
	catalog   ServiceLookup
	notifier  *NotificationDispatcher
	metrics   *Metrics
	logger    *zap.Logger
	clientURL string
}

// NewOrderService creates an order service
func NewOrderService(db *gorm.DB, catalog ServiceLookup, notifier *NotificationDispatcher, metrics *Metrics, logger *zap.Logger, clientURL string) *OrderService {
	return &OrderService{
		db:        db,
		catalog:   catalog,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
		clientURL: strings.TrimRight(clientURL, "/"),
	}
}

// withOrderAssociations preloads the service (including soft-deleted ones), customer and tailor
func withOrderAssociations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Service", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Customer").
		Preload("Tailor")
}

func loadOrder(ctx context.Context, db *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := withOrderAssociations(db.WithContext(ctx)).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

func findOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := tx.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// CreateOrder places an order for a registered customer or a guest
func (s *OrderService) CreateOrder(ctx context.Context, actor Actor, input CreateOrderInput) (*models.Order, error) {
	if !actor.IsGuest() && actor.Role != models.RoleCustomer {
		return nil, Forbidden("ROLE_NOT_ALLOWED", "Only customers can place orders")
	}
	if input.Quantity < 1 {
		return nil, InvalidInput("INVALID_QUANTITY", "Quantity must be at least 1")
	}
	if input.ServiceID == 0 {
		return nil, InvalidInput("INVALID_SERVICE", "service_id is required")
	}

	contact := GuestContact{
		Name:  strings.TrimSpace(input.Contact.Name),
		Email: strings.TrimSpace(input.Contact.Email),
		Phone: strings.TrimSpace(input.Contact.Phone),
	}

	var customerID *uint
	if actor.IsGuest() {
		if contact.Name == "" {
			return nil, InvalidInput("INVALID_CONTACT", "customer_name is required for guest orders")
		}
		if err := validate.Var(contact.Email, "required,email"); err != nil {
			return nil, InvalidInput("INVALID_CONTACT", "A valid customer_email is required for guest orders")
		}
	} else {
		var customer models.User
		if err := s.db.WithContext(ctx).First(&customer, actor.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errUserNotFound
			}
			return nil, fmt.Errorf("failed to load customer: %w", err)
		}
		if contact.Name == "" {
			contact.Name = customer.Username
		}
		if contact.Email == "" {
			contact.Email = customer.Email
		} else if err := validate.Var(contact.Email, "email"); err != nil {
			return nil, InvalidInput("INVALID_CONTACT", "customer_email must be a valid email address")
		}
		if contact.Phone == "" {
			contact.Phone = customer.Phone
		}
		customerID = &customer.ID
	}

	service, err := s.catalog.GetService(ctx, input.ServiceID)
	if err != nil {
		return nil, err
	}
	if !service.Price.IsPositive() {
		return nil, NotFound("SERVICE_NOT_PURCHASABLE", "Service has no valid price")
	}

	total := service.Price.Mul(decimal.NewFromInt(int64(input.Quantity))).Round(2)
	order := models.Order{
		CustomerID:          customerID,
		CustomerName:        contact.Name,
		CustomerEmail:       contact.Email,
		CustomerPhone:       contact.Phone,
		ServiceID:           service.ID,
		Quantity:            input.Quantity,
		SpecialInstructions: input.SpecialInstructions,
		Status:              models.OrderStatusPending,
		PaymentStatus:       models.PaymentStatusPending,
		TotalAmount:         total,
		PaidAmount:          decimal.Zero,
		Version:             1,
	}

	if err := s.db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	created, err := loadOrder(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.orderCreated()
	s.logger.Info("order created",
		zap.Uint("order_id", created.ID),
		zap.Uint("service_id", created.ServiceID),
		zap.Bool("guest", actor.IsGuest()),
		zap.String("total", created.TotalAmount.String()),
	)
	s.notifier.Dispatch(orderConfirmationNotification(created))
	return created, nil
}

// AssignTailor claims an available tailor and a pending, unassigned order in one transaction
func (s *OrderService) AssignTailor(ctx context.Context, orderID, tailorID uint) (*models.Order, error) {
	if tailorID == 0 {
		return nil, InvalidInput("INVALID_TAILOR", "tailor_id is required")
	}

	var assigned *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := claimTailor(tx, tailorID)
		if err != nil {
			return err
		}
		if !claimed {
			return diagnoseAssignment(tx, orderID, tailorID)
		}

		claimed, err = claimOrder(tx, orderID, tailorID)
		if err != nil {
			return err
		}
		if !claimed {
			return diagnoseAssignment(tx, orderID, tailorID)
		}

		assigned, err = loadOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.transition(models.OrderStatusPending, models.OrderStatusInProgress)
	s.logger.Info("tailor assigned", zap.Uint("order_id", orderID), zap.Uint("tailor_id", tailorID))
	s.notifier.Dispatch(tailorAssignedNotification(assigned))
	return assigned, nil
}

// claimTailor marks an available tailor busy; false means nothing matched
func claimTailor(tx *gorm.DB, tailorID uint) (bool, error) {
	result := tx.Model(&models.User{}).
		Where("id = ? AND role = ? AND available = ?", tailorID, models.RoleTailor, true).
		Update("available", false)
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim tailor: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// claimOrder moves a pending unassigned order to in-progress under tailorID; false means nothing matched
func claimOrder(tx *gorm.DB, orderID, tailorID uint) (bool, error) {
	result := tx.Model(&models.Order{}).
		Where("id = ? AND status = ? AND tailor_id IS NULL", orderID, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"tailor_id": tailorID,
			"status":    models.OrderStatusInProgress,
			"version":   gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim order: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// releaseTailor marks a tailor available again
func releaseTailor(tx *gorm.DB, tailorID uint) error {
	if err := tx.Model(&models.User{}).Where("id = ?", tailorID).Update("available", true).Error; err != nil {
		return fmt.Errorf("failed to release tailor: %w", err)
	}
	return nil
}

// diagnoseAssignment explains why an assignment claim matched no rows
func diagnoseAssignment(tx *gorm.DB, orderID, tailorID uint) error {
	order, err := findOrder(tx, orderID)
	if err != nil {
		return err
	}
	if order.HasTailor() {
		return Conflict("ORDER_ALREADY_ASSIGNED", "Order already has a tailor assigned")
	}
	if order.Status != models.OrderStatusPending {
		return Conflict("ORDER_NOT_PENDING", fmt.Sprintf("Order is %s and cannot be assigned", order.Status))
	}

	var tailor models.User
	if err := tx.First(&tailor, tailorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errTailorNotFound
		}
		return fmt.Errorf("failed to load tailor: %w", err)
	}
	if !tailor.IsTailor() {
		return errTailorNotFound
	}
	if !tailor.Available {
		return NotFound("TAILOR_UNAVAILABLE", "Tailor is not available")
	}
	return errStaleOrder
}

// UpdateOrderStatusByAdmin moves an order to any status the state machine allows
func (s *OrderService) UpdateOrderStatusByAdmin(ctx context.Context, orderID uint, newStatus string) (*models.Order, error) {
	if !models.IsValidOrderStatus(newStatus) {
		return nil, InvalidInput("INVALID_STATUS", "Status must be one of: pending, in-progress, completed, cancelled")
	}
	return s.transition(ctx, orderID, newStatus, nil)
}

// UpdateOrderStatus lets the assigned tailor or the owning customer complete or cancel an order
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID uint, newStatus string, actor Actor) (*models.Order, error) {
	if newStatus != models.OrderStatusCompleted && newStatus != models.OrderStatusCancelled {
		return nil, InvalidInput("INVALID_STATUS", "Status must be one of: completed, cancelled")
	}

	return s.transition(ctx, orderID, newStatus, func(order *models.Order) error {
		switch actor.Role {
		case models.RoleTailor:
			if order.TailorID != nil && *order.TailorID == actor.UserID {
				return nil
			}
			return Forbidden("NOT_ASSIGNED_TAILOR", "You can only update orders assigned to you")
		case models.RoleCustomer:
			if order.CustomerID != nil && *order.CustomerID == actor.UserID {
				return nil
			}
			return Forbidden("NOT_ORDER_OWNER", "You can only update your own orders")
		default:
			return Forbidden("ROLE_NOT_ALLOWED", "Your role cannot update order status")
		}
	})
}

// transition applies a status change as a compare-and-swap on the order version.
// Entering a terminal state releases the assigned tailor in the same transaction.
func (s *OrderService) transition(ctx context.Context, orderID uint, newStatus string, authorize func(*models.Order) error) (*models.Order, error) {
	var (
		updated *models.Order
		from    string
		changed bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := findOrder(tx, orderID)
		if err != nil {
			return err
		}
		if authorize != nil {
			if err := authorize(order); err != nil {
				return err
			}
		}

		from = order.Status
		if order.Status != newStatus {
			if order.IsTerminal() {
				return Conflict("ORDER_CLOSED", fmt.Sprintf("Order is already %s", order.Status))
			}

			result := tx.Model(&models.Order{}).
				Where("id = ? AND version = ?", order.ID, order.Version).
				Updates(map[string]interface{}{
					"status":  newStatus,
					"version": gorm.Expr("version + 1"),
				})
			if result.Error != nil {
				return fmt.Errorf("failed to update order status: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return errStaleOrder
			}

			if models.IsTerminalStatus(newStatus) && order.TailorID != nil {
				if err := releaseTailor(tx, *order.TailorID); err != nil {
					return err
				}
			}
			changed = true
		}

		updated, err = loadOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.metrics.transition(from, newStatus)
		s.logger.Info("order status changed",
			zap.Uint("order_id", orderID),
			zap.String("from", from),
			zap.String("to", newStatus),
		)
		s.notifier.Dispatch(orderStatusNotification(updated))
	}
	return updated, nil
}

// DeleteOrder hard-deletes an order; the payment ledger is kept
func (s *OrderService) DeleteOrder(ctx context.Context, orderID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := findOrder(tx, orderID)
		if err != nil {
			return err
		}

		result := tx.Where("id = ? AND version = ?", order.ID, order.Version).Delete(&models.Order{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete order: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errStaleOrder
		}

		if !order.IsTerminal() && order.TailorID != nil {
			if err := releaseTailor(tx, *order.TailorID); err != nil {
				return err
			}
		}

		s.logger.Info("order deleted", zap.Uint("order_id", orderID))
		return nil
	})
}

// GetOrder returns an order visible to actor
func (s *OrderService) GetOrder(ctx context.Context, orderID uint, actor Actor) (*models.Order, error) {
	order, err := loadOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeView(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

// authorizeView allows admins, the owning customer and the assigned tailor
func authorizeView(order *models.Order, actor Actor) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.IsGuest():
		return Forbidden("ACCESS_DENIED", "You do not have access to this order")
	case actor.Role == models.RoleCustomer && order.CustomerID != nil && *order.CustomerID == actor.UserID:
		return nil
	case actor.Role == models.RoleTailor && order.TailorID != nil && *order.TailorID == actor.UserID:
		return nil
	}
	return Forbidden("ACCESS_DENIED", "You do not have access to this order")
}

// ListOrders returns all orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	query := withOrderAssociations(s.db.WithContext(ctx))
	if filter.Status != "" {
		if !models.IsValidOrderStatus(filter.Status) {
			return nil, InvalidInput("INVALID_STATUS", "Status must be one of: pending, in-progress, completed, cancelled")
		}
		query = query.Where("status = ?", filter.Status)
	}
	return s.findOrders(query)
}

// ListCustomerOrders returns a customer's orders, newest first
func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID uint) ([]models.Order, error) {
	return s.findOrders(withOrderAssociations(s.db.WithContext(ctx)).Where("customer_id = ?", customerID))
}

// ListTailorOrders returns the orders assigned to a tailor, newest first
func (s *OrderService) ListTailorOrders(ctx context.Context, tailorID uint) ([]models.Order, error) {
	return s.findOrders(withOrderAssociations(s.db.WithContext(ctx)).Where("tailor_id = ?", tailorID))
}

func (s *OrderService) findOrders(query *gorm.DB) ([]models.Order, error) {
	orders := []models.Order{}
	if err := query.Order("created_at DESC, id DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// SendPaymentRequest emails the customer a link to pay the next instalment.
// The flag is cleared whenever a payment is credited, so each instalment can be requested once.
func (s *OrderService) SendPaymentRequest(ctx context.Context, orderID uint) (*models.Order, error) {
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := findOrder(tx, orderID)
		if err != nil {
			return err
		}
		if current.Status == models.OrderStatusCancelled {
			return Conflict("ORDER_CLOSED", "Order is cancelled")
		}
		if current.PaymentStatus == models.PaymentStatusCompleted {
			return Conflict("ORDER_ALREADY_PAID", "Order is already fully paid")
		}

		result := tx.Model(&models.Order{}).
			Where("id = ? AND payment_request_sent = ?", orderID, false).
			Updates(map[string]interface{}{
				"payment_request_sent": true,
				"version":              gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark payment request: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return Conflict("PAYMENT_REQUEST_ALREADY_SENT", "A payment request was already sent for this instalment")
		}

		order, err = loadOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	due := AmountDue(order)
	payURL := fmt.Sprintf("%s/orders/%d/pay", s.clientURL, order.ID)
	s.notifier.Dispatch(paymentRequestNotification(order, due, payURL))
	s.logger.Info("payment request sent", zap.Uint("order_id", order.ID), zap.String("amount_due", due.String()))
	return order, nil
}

// AmountDue is the next instalment: half the total before any payment, the remainder afterwards
func AmountDue(order *models.Order) decimal.Decimal {
	if order.PaymentStatus == models.PaymentStatusPending {
		return HalfOf(order.TotalAmount)
	}
	return order.RemainingAmount
}
