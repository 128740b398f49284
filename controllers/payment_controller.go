package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stitchwell/tailoring-api/services"
	"go.uber.org/zap"
)

// maxWebhookBody bounds the provider payload we are willing to read
const maxWebhookBody = 64 << 10

// CheckoutRequest represents the request body for opening a checkout
type CheckoutRequest struct {
	PaymentType string `json:"payment_type" binding:"required,paymenttype"`
}

// VerifyPaymentRequest represents the request body for confirming a checkout on return
type VerifyPaymentRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// PaymentController serves checkout, confirmation and ledger endpoints
type PaymentController struct {
	payments *services.PaymentService
	logger   *zap.Logger
}

// NewPaymentController creates a payment controller
func NewPaymentController(payments *services.PaymentService, logger *zap.Logger) *PaymentController {
	return &PaymentController{payments: payments, logger: logger}
}

// CreateCheckout handles POST /api/v1/orders/:id/checkout
func (pc *PaymentController) CreateCheckout(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	session, err := pc.payments.CreateCheckout(c.Request.Context(), id, req.PaymentType, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, session)
}

// VerifyPayment handles POST /api/v1/payments/verify
func (pc *PaymentController) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	result, err := pc.payments.VerifyPayment(c.Request.Context(), req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result)
}

// HandleWebhook handles POST /api/v1/payments/webhook.
// Signature failures get 400. Storage failures and lost settlement races get 5xx so the provider retries;
// business rejections are acknowledged because a retry cannot change them.
func (pc *PaymentController) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondFailure(c, http.StatusBadRequest, "INVALID_PAYLOAD", string(services.KindInvalidInput), "Could not read webhook body", err)
		return
	}

	result, err := pc.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		var code string
		if svcErr, ok := asServiceError(err); ok {
			code = svcErr.Code
		}
		switch {
		case code == "INVALID_SIGNATURE" || code == "INVALID_PAYLOAD":
			respondError(c, err)
		case code == "ORDER_MODIFIED":
			pc.logger.Warn("webhook settlement contended, asking provider to retry", zap.Error(err))
			respondFailure(c, http.StatusServiceUnavailable, code, string(services.KindUnavailable), "Order is busy, retry the event", err)
		case services.IsKind(err, services.KindUnavailable) || services.KindOf(err) == "":
			pc.logger.Error("webhook processing failed", zap.Error(err))
			respondError(c, err)
		default:
			pc.logger.Warn("webhook rejected by settlement", zap.String("code", code), zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"received": true, "processed": false, "code": code})
		}
		return
	}

	response := gin.H{"received": true, "processed": result != nil}
	if result != nil {
		response["duplicate"] = result.Duplicate
		response["flagged"] = result.Flagged
	}
	c.JSON(http.StatusOK, response)
}

// GetOrderPaymentStatus handles GET /api/v1/orders/:id/payment-status
func (pc *PaymentController) GetOrderPaymentStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	view, err := pc.payments.CheckOrderStatus(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, view)
}

// ListOrderPayments handles GET /api/v1/orders/:id/payments
func (pc *PaymentController) ListOrderPayments(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	payments, err := pc.payments.ListOrderPayments(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, payments)
}

// ListPayments handles GET /api/v1/payments (admin only)
func (pc *PaymentController) ListPayments(c *gin.Context) {
	payments, err := pc.payments.ListPayments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, payments)
}
