package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stitchwell/tailoring-api/models"
	"github.com/stitchwell/tailoring-api/services"
)

// CreateOrderRequest represents the request body for creating an order.
// Contact fields are required for guests and optional overrides for customers.
type CreateOrderRequest struct {
	ServiceID           uint   `json:"service_id" binding:"required"`
	Quantity            int    `json:"quantity" binding:"required,gt=0"`
	SpecialInstructions string `json:"special_instructions" binding:"omitempty,max=2000"`
	CustomerName        string `json:"customer_name" binding:"omitempty,max=100"`
	CustomerEmail       string `json:"customer_email" binding:"omitempty,email"`
	CustomerPhone       string `json:"customer_phone" binding:"omitempty,max=30"`
}

// AssignTailorRequest represents the request body for assigning a tailor
type AssignTailorRequest struct {
	TailorID uint `json:"tailor_id" binding:"required"`
}

// UpdateStatusRequest represents the request body for a status change
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,orderstatus"`
}

// OrderController serves the order lifecycle endpoints
type OrderController struct {
	orders *services.OrderService
}

// NewOrderController creates an order controller
func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{orders: orders}
}

// CreateOrder handles POST /api/v1/orders - places an order as a customer or a guest
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	order, err := oc.orders.CreateOrder(c.Request.Context(), actorFrom(c), services.CreateOrderInput{
		ServiceID:           req.ServiceID,
		Quantity:            req.Quantity,
		SpecialInstructions: req.SpecialInstructions,
		Contact: services.GuestContact{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, order)
}

// ListOrders handles GET /api/v1/orders.
// Admins see every order (optionally ?status=), customers their own and tailors their assignments.
func (oc *OrderController) ListOrders(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var (
		orders []models.Order
		err    error
	)
	switch actor.Role {
	case models.RoleAdmin:
		orders, err = oc.orders.ListOrders(c.Request.Context(), services.OrderFilter{Status: c.Query("status")})
	case models.RoleTailor:
		orders, err = oc.orders.ListTailorOrders(c.Request.Context(), actor.UserID)
	default:
		orders, err = oc.orders.ListCustomerOrders(c.Request.Context(), actor.UserID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, orders)
}

// GetOrder handles GET /api/v1/orders/:id
func (oc *OrderController) GetOrder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := oc.orders.GetOrder(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, order)
}

// AssignTailor handles PUT /api/v1/orders/:id/assign (admin only)
func (oc *OrderController) AssignTailor(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req AssignTailorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	order, err := oc.orders.AssignTailor(c.Request.Context(), id, req.TailorID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, order)
}

// UpdateOrderStatus handles PUT /api/v1/orders/:id/status.
// Admins may set any status; the assigned tailor and the owning customer may complete or cancel.
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	var (
		order *models.Order
		err   error
	)
	if actor.IsAdmin() {
		order, err = oc.orders.UpdateOrderStatusByAdmin(c.Request.Context(), id, req.Status)
	} else {
		order, err = oc.orders.UpdateOrderStatus(c.Request.Context(), id, req.Status, actor)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, order)
}

// DeleteOrder handles DELETE /api/v1/orders/:id (admin only)
func (oc *OrderController) DeleteOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := oc.orders.DeleteOrder(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"id": id})
}

// SendPaymentRequest handles POST /api/v1/orders/:id/payment-request (admin only)
func (oc *OrderController) SendPaymentRequest(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := oc.orders.SendPaymentRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"order":      order,
		"amount_due": services.AmountDue(order),
	})
}
