// Package domain contains the core business entities for the payment gateway.
package domain

import "errors"

// Failure taxonomy. Every failure surfaced to the host framework wraps one
// of these sentinels so callers can branch with errors.Is.
var (
	// ErrConfiguration means credentials are missing or invalid. Fatal;
	// the operation is never sent.
	ErrConfiguration = errors.New("gateway configuration error")

	// ErrValidation means the request is malformed (bad expiration,
	// over-refund, unaccepted card type). Fatal; the operation is never sent.
	ErrValidation = errors.New("invalid transaction request")

	// ErrGatewayDecline means the remote processed the request and said no.
	// The user may retry with corrected details.
	ErrGatewayDecline = errors.New("payment declined by gateway")

	// ErrGatewayUnavailable means the round-trip failed in transport. The
	// remote outcome is unknown: verify before retrying, never resubmit
	// blindly.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrProtocol means the response was malformed or missing required
	// fields. Like ErrGatewayUnavailable, the outcome is unknown.
	ErrProtocol = errors.New("malformed gateway response")

	// ErrInvalidState means a lifecycle operation was invoked from a state
	// it is not valid in. Fatal to the calling operation, not retried.
	ErrInvalidState = errors.New("operation not valid in current payment state")

	// ErrNotFound is returned by stores for unknown payment or method ids.
	ErrNotFound = errors.New("record not found")
)

// PaymentError wraps a sentinel with a user-facing message and a short code.
type PaymentError struct {
	Err     error
	Message string
	Code    string
}

func (e *PaymentError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError.
func NewPaymentError(err error, message, code string) *PaymentError {
	return &PaymentError{Err: err, Message: message, Code: code}
}
