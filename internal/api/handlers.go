// Package api contains the HTTP handlers and routing of the reference host
// harness. It stands in for the checkout framework: it owns payment records
// through the store and calls the core at the lifecycle points.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commercekit/paymetric-payments/internal/core/domain"
	"github.com/commercekit/paymetric-payments/internal/core/service"
)

// Handler contains the HTTP handlers for the payment API.
type Handler struct {
	payments *service.PaymentService
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(payments *service.PaymentService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{payments: payments, logger: logger}
}

// CardRequest is the card data collected by the checkout form.
type CardRequest struct {
	Number       string `json:"number" binding:"required"`
	SecurityCode string `json:"security_code" binding:"required"`
	ExpMonth     int    `json:"exp_month" binding:"required,min=1,max=12"`
	ExpYear      int    `json:"exp_year" binding:"required"`
}

// BillingRequest is the optional billing address.
type BillingRequest struct {
	GivenName   string `json:"given_name"`
	FamilyName  string `json:"family_name"`
	Street1     string `json:"street1"`
	Street2     string `json:"street2"`
	City        string `json:"city"`
	Region      string `json:"region"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
}

// CreatePaymentRequest is the JSON body for the payment creation endpoint.
type CreatePaymentRequest struct {
	OrderID  string          `json:"order_id" binding:"required"`
	Amount   string          `json:"amount" binding:"required"`
	Currency string          `json:"currency" binding:"required,len=3"`
	Capture  bool            `json:"capture"`
	Card     CardRequest     `json:"card" binding:"required"`
	Billing  *BillingRequest `json:"billing"`
}

// AmountRequest is the JSON body for capture and refund endpoints.
type AmountRequest struct {
	Amount string `json:"amount"`
}

// PaymentResponse renders a payment record.
type PaymentResponse struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	State          string `json:"state"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	RefundedAmount string `json:"refunded_amount"`
	RemoteID       string `json:"remote_id,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func paymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID,
		OrderID:        p.OrderID,
		State:          string(p.State),
		Amount:         p.Amount.Amount.StringFixed(2),
		Currency:       p.Amount.Currency,
		RefundedAmount: p.RefundedAmount.Amount.StringFixed(2),
		RemoteID:       p.RemoteID,
	}
}

// CreatePayment handles POST /api/v1/payments
// Creates a new payment for an order and runs authorize (+capture).
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body: " + err.Error(),
			Code:  "VALIDATION_ERROR",
		})
		return
	}

	amount, err := domain.NewMoney(req.Amount, req.Currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid amount: " + err.Error(),
			Code:  "VALIDATION_ERROR",
		})
		return
	}

	payment := domain.NewPayment(req.OrderID, amount)
	card := domain.CardDetails{
		Number:          req.Card.Number,
		SecurityCode:    req.Card.SecurityCode,
		ExpirationMonth: req.Card.ExpMonth,
		ExpirationYear:  req.Card.ExpYear,
	}

	if err := h.payments.CreatePayment(c.Request.Context(), payment, card, billingProfile(req.Billing), req.Capture); err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, paymentResponse(payment))
}

// CapturePayment handles POST /api/v1/payments/:id/capture
func (h *Handler) CapturePayment(c *gin.Context) {
	h.amountOperation(c, h.payments.CapturePayment)
}

// RefundPayment handles POST /api/v1/payments/:id/refund
func (h *Handler) RefundPayment(c *gin.Context) {
	h.amountOperation(c, h.payments.RefundPayment)
}

// VoidPayment handles POST /api/v1/payments/:id/void
func (h *Handler) VoidPayment(c *gin.Context) {
	payment, ok := h.loadPayment(c)
	if !ok {
		return
	}
	if err := h.payments.VoidPayment(c.Request.Context(), payment); err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentResponse(payment))
}

// GetPayment handles GET /api/v1/payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	payment, ok := h.loadPayment(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, paymentResponse(payment))
}

// Return handles GET /checkout/:order_id/payment/return
// The gateway echoes amount, currency, transactionId and message back as
// query parameters after an offsite redirect.
func (h *Handler) Return(c *gin.Context) {
	payment, err := h.payments.OnReturn(c.Request.Context(), c.Param("order_id"), c.Request.URL.Query())
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentResponse(payment))
}

// Cancel handles GET /checkout/:order_id/payment/cancel
func (h *Handler) Cancel(c *gin.Context) {
	message := h.payments.OnCancel(c.Param("order_id"))
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "paymetric-payments",
	})
}

// amountOperation runs a capture or refund with an optional amount from the
// request body. An empty body means the operation default (full amount or
// remaining balance).
func (h *Handler) amountOperation(c *gin.Context, op func(ctx context.Context, p *domain.Payment, amount *domain.Money) error) {
	payment, ok := h.loadPayment(c)
	if !ok {
		return
	}

	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body: " + err.Error(),
			Code:  "VALIDATION_ERROR",
		})
		return
	}

	var amount *domain.Money
	if req.Amount != "" {
		m, err := domain.NewMoney(req.Amount, payment.Amount.Currency)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid amount: " + err.Error(),
				Code:  "VALIDATION_ERROR",
			})
			return
		}
		amount = &m
	}

	if err := op(c.Request.Context(), payment, amount); err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentResponse(payment))
}

func (h *Handler) loadPayment(c *gin.Context) (*domain.Payment, bool) {
	payment, err := h.payments.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "payment not found", Code: "NOT_FOUND"})
		} else {
			h.serviceError(c, err)
		}
		return nil, false
	}
	return payment, true
}

func billingProfile(b *BillingRequest) *domain.BillingProfile {
	if b == nil {
		return nil
	}
	return &domain.BillingProfile{
		GivenName:   b.GivenName,
		FamilyName:  b.FamilyName,
		Street1:     b.Street1,
		Street2:     b.Street2,
		City:        b.City,
		Region:      b.Region,
		PostalCode:  b.PostalCode,
		CountryCode: b.CountryCode,
	}
}

// serviceError maps the core failure taxonomy onto HTTP responses.
// Declines invite retry; unavailable/protocol failures tell the user to try
// again later without assuming the charge failed.
func (h *Handler) serviceError(c *gin.Context, err error) {
	var pe *domain.PaymentError
	code := ""
	if errors.As(err, &pe) {
		code = pe.Code
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: code})
	case errors.Is(err, domain.ErrInvalidState):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: code})
	case errors.Is(err, domain.ErrGatewayDecline):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{Error: err.Error(), Code: code})
	case errors.Is(err, domain.ErrGatewayUnavailable), errors.Is(err, domain.ErrProtocol):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: code})
	case errors.Is(err, domain.ErrConfiguration):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "gateway is misconfigured", Code: code})
	default:
		h.logger.Error("unexpected service error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "INTERNAL"})
	}
}
