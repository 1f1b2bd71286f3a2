// Package service implements the payment core: request building, response
// interpretation and the payment state machine.
package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/commercekit/paymetric-payments/internal/core/domain"
)

// Provider-imposed maximum for descriptive text fields. Longer values are
// truncated to truncatedTextLen characters plus an ellipsis.
const (
	maxTextLen       = 31
	truncatedTextLen = 28
)

// RequestBuilder maps an order/payment/card bundle into the gateway's
// required field set. It is side-effect free; validation failures mean the
// request is never sent.
type RequestBuilder struct {
	creds domain.GatewayCredentials

	now func() time.Time
}

// NewRequestBuilder creates a builder bound to one gateway configuration.
func NewRequestBuilder(creds domain.GatewayCredentials) *RequestBuilder {
	return &RequestBuilder{creds: creds, now: time.Now}
}

// Authorization builds the request for an authorization hold. The amount
// carried here is informational; the gateway client forces the transmitted
// amount to zero.
func (b *RequestBuilder) Authorization(payment *domain.Payment, card domain.CardDetails, billing *domain.BillingProfile, description string) (domain.TransactionRequest, error) {
	if payment.Amount.IsNegative() {
		return domain.TransactionRequest{}, domain.NewPaymentError(domain.ErrValidation,
			"payment amount must not be negative", "INVALID_AMOUNT")
	}
	if err := b.validateCard(card); err != nil {
		return domain.TransactionRequest{}, err
	}

	return domain.TransactionRequest{
		Amount:           payment.Amount,
		CardNumber:       card.Number,
		CardExpiration:   FormatExpiration(card.ExpirationMonth, card.ExpirationYear),
		CardSecurityCode: card.SecurityCode,
		Billing:          billing,
		MerchantID:       b.creds.MerchantID,
		Description:      TruncateText(description),
	}, nil
}

// Capture builds the settlement request for a prior authorization.
func (b *RequestBuilder) Capture(payment *domain.Payment, amount domain.Money, transactionID, batchID string) (domain.TransactionRequest, error) {
	if transactionID == "" {
		return domain.TransactionRequest{}, domain.NewPaymentError(domain.ErrValidation,
			"capture requires the transaction id of a prior authorization", "MISSING_TRANSACTION_ID")
	}
	if amount.IsNegative() {
		return domain.TransactionRequest{}, domain.NewPaymentError(domain.ErrValidation,
			"capture amount must not be negative", "INVALID_AMOUNT")
	}
	if batchID == "" {
		batchID = "1"
	}

	return domain.TransactionRequest{
		Amount:        amount,
		MerchantID:    b.creds.MerchantID,
		TransactionID: transactionID,
		BatchID:       batchID,
	}, nil
}

// Void builds the cancellation request for a prior authorization.
func (b *RequestBuilder) Void(payment *domain.Payment) (domain.TransactionRequest, error) {
	if payment.RemoteID == "" {
		return domain.TransactionRequest{}, domain.NewPaymentError(domain.ErrValidation,
			"void requires the transaction id of a prior authorization", "MISSING_TRANSACTION_ID")
	}

	return domain.TransactionRequest{
		Amount:        payment.Amount,
		MerchantID:    b.creds.MerchantID,
		TransactionID: payment.RemoteID,
		BatchID:       payment.BatchID,
	}, nil
}

// Refund builds the request returning settled funds from a prior capture.
func (b *RequestBuilder) Refund(payment *domain.Payment, amount domain.Money) (domain.TransactionRequest, error) {
	if payment.RemoteID == "" {
		return domain.TransactionRequest{}, domain.NewPaymentError(domain.ErrValidation,
			"refund requires the transaction id of a prior capture", "MISSING_TRANSACTION_ID")
	}
	if amount.IsNegative() || amount.IsZero() {
		return domain.TransactionRequest{}, domain.NewPaymentError(domain.ErrValidation,
			"refund amount must be positive", "INVALID_AMOUNT")
	}

	return domain.TransactionRequest{
		Amount:        amount,
		MerchantID:    b.creds.MerchantID,
		TransactionID: payment.RemoteID,
		BatchID:       payment.BatchID,
	}, nil
}

// validateCard checks the raw card data before any network call.
func (b *RequestBuilder) validateCard(card domain.CardDetails) error {
	number := strings.ReplaceAll(card.Number, " ", "")
	if len(number) < 12 || len(number) > 19 || !allDigits(number) {
		return domain.NewPaymentError(domain.ErrValidation,
			"card number must be 12 to 19 digits", "INVALID_CARD_NUMBER")
	}
	if l := len(card.SecurityCode); l < 3 || l > 4 || !allDigits(card.SecurityCode) {
		return domain.NewPaymentError(domain.ErrValidation,
			"security code must be 3 or 4 digits", "INVALID_SECURITY_CODE")
	}
	if card.ExpirationMonth < 1 || card.ExpirationMonth > 12 {
		return domain.NewPaymentError(domain.ErrValidation,
			"expiration month must be between 1 and 12", "INVALID_EXPIRATION")
	}
	// A card is valid through the last day of its expiration month.
	expiresAfter := time.Date(card.ExpirationYear, time.Month(card.ExpirationMonth), 1, 0, 0, 0, 0, time.Local).
		AddDate(0, 1, 0)
	if !b.now().Before(expiresAfter) {
		return domain.NewPaymentError(domain.ErrValidation,
			"card expiration date has passed", "EXPIRED_CARD")
	}
	return nil
}

// FormatExpiration renders the MM/YY wire format expected by the provider,
// e.g. (9, 2027) -> "09/27".
func FormatExpiration(month, year int) string {
	return fmt.Sprintf("%02d/%02d", month, year%100)
}

// TruncateText shortens a descriptive field to the provider limit.
func TruncateText(s string) string {
	if len(s) <= maxTextLen {
		return s
	}
	return s[:truncatedTextLen] + "..."
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
