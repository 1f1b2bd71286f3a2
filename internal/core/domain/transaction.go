package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// CardDetails carries the raw card data collected by the checkout form.
// It is held only for the duration of a gateway round-trip and must never
// appear in logs or stored records.
type CardDetails struct {
	Number          string
	SecurityCode    string
	ExpirationMonth int
	ExpirationYear  int
}

// Last4 returns the last four digits of the card number for display.
func (c CardDetails) Last4() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// DetectCardType identifies the card brand from the number prefix.
// Returns "" when the prefix matches no known brand.
func DetectCardType(number string) string {
	n := strings.TrimSpace(number)
	switch {
	case strings.HasPrefix(n, "4"):
		return "visa"
	case strings.HasPrefix(n, "34"), strings.HasPrefix(n, "37"):
		return "amex"
	case strings.HasPrefix(n, "6011"), strings.HasPrefix(n, "65"):
		return "discover"
	case len(n) >= 2 && n[0] == '5' && n[1] >= '1' && n[1] <= '5':
		return "mastercard"
	case strings.HasPrefix(n, "35"):
		return "jcb"
	case strings.HasPrefix(n, "36"), strings.HasPrefix(n, "38"):
		return "dinersclub"
	case strings.HasPrefix(n, "62"):
		return "unionpay"
	default:
		return ""
	}
}

// BillingProfile is the billing address attached to the order.
type BillingProfile struct {
	GivenName   string
	FamilyName  string
	Street1     string
	Street2     string
	City        string
	Region      string
	PostalCode  string
	CountryCode string
}

// TransactionRequest is the provider-facing field set for one gateway call.
// CardExpiration is already in the MM/YY wire format.
type TransactionRequest struct {
	Amount           Money
	CardNumber       string
	CardExpiration   string
	CardSecurityCode string
	Billing          *BillingProfile
	MerchantID       string
	Description      string

	// TransactionID and BatchID reference a prior authorization. Set only
	// for capture, void and refund.
	TransactionID string
	BatchID       string
}

// TransactionStatus is the transport-level status of a gateway response.
type TransactionStatus int

const (
	// StatusOK means the provider processed the request. The response code
	// still decides approval.
	StatusOK TransactionStatus = iota

	// StatusError means the provider reported a processing error; the
	// outcome of the financial operation is unknown.
	StatusError
)

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	if s == StatusOK {
		return "OK"
	}
	return "ERROR"
}

// TransactionResult is the validated, immutable outcome of one gateway call.
// Produced only by a gateway client after a successful parse.
type TransactionResult struct {
	Status           TransactionStatus
	ResponseCode     int
	Message          string
	TransactionID    string
	BatchID          string
	SettlementAmount decimal.Decimal
	Currency         string
}

// GatewayCredentials is the per-gateway-instance configuration, loaded once
// at construction and read-only thereafter.
type GatewayCredentials struct {
	EndpointURL   string `validate:"required,url"`
	User          string `validate:"required"`
	Password      string `validate:"required"`
	MerchantID    string `validate:"required"`
	InterceptGUID string `validate:"required"`
	InterceptPSK  string `validate:"required"`
	InterceptURL  string `validate:"required,url"`
}

// Validate checks that every required credential field is present. A failure
// is a ConfigurationError: the operation must never be sent with partial
// credentials.
func (c GatewayCredentials) Validate() error {
	if err := validate.Struct(c); err != nil {
		return NewPaymentError(ErrConfiguration, "incomplete gateway credentials: "+err.Error(), "CONFIG_ERROR")
	}
	return nil
}
