package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/Luisfeliz3/sporty-urban-ecommerce/common/errors"
)

// maxWebhookBody bounds the webhook payload read into memory.
const maxWebhookBody = 64 << 10

type CreateIntentRequest struct {
	OrderID           string `json:"order_id" validate:"required"`
	SavePaymentMethod bool   `json:"save_payment_method"`
}

type ConfirmPaymentRequest struct {
	OrderID         string `json:"order_id" validate:"required"`
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

type SetDefaultPaymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

type PaymentController struct {
	payments  PaymentServiceAPI
	validator *RequestValidator
	logger    *zap.Logger
}

func NewPaymentController(payments PaymentServiceAPI, validator *RequestValidator, logger *zap.Logger) *PaymentController {
	return &PaymentController{payments: payments, validator: validator, logger: logger}
}

// CreatePaymentIntent opens a provider payment for one of the caller's orders
func (pc *PaymentController) CreatePaymentIntent(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req CreateIntentRequest
	if err := pc.validator.BindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	res, err := pc.payments.CreateIntent(c.Request.Context(), p, req.OrderID, req.SavePaymentMethod)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, res, "")
}

// ConfirmPayment is called by the client once the provider reports success.
func (pc *PaymentController) ConfirmPayment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req ConfirmPaymentRequest
	if err := pc.validator.BindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	order, err := pc.payments.ConfirmFromClient(c.Request.Context(), p, req.OrderID, req.PaymentIntentID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, order, "Payment confirmed successfully")
}

// CreateSetupIntent starts saving a card for later checkouts
func (pc *PaymentController) CreateSetupIntent(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	res, err := pc.payments.CreateSetupIntent(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, res, "")
}

func (pc *PaymentController) ListPaymentMethods(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	methods, err := pc.payments.ListPaymentMethods(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, methods, "")
}

func (pc *PaymentController) SetDefaultPaymentMethod(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req SetDefaultPaymentMethodRequest
	if err := pc.validator.BindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	if err := pc.payments.SetDefaultPaymentMethod(c.Request.Context(), p, req.PaymentMethodID); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, nil, "Default payment method updated successfully")
}

// StripeWebhook receives provider events. The body must reach signature
// verification byte for byte, so it is read raw and never bound.
func (pc *PaymentController) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		pc.logger.Warn("Failed to read webhook body", zap.Error(err))
		fail(c, apperrors.Validation("Invalid webhook payload"))
		return
	}

	if err := pc.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
