// Package domain contains the core business entities for the payment gateway.
// This is the innermost layer - no dependency on transports or storage.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState is the lifecycle state of a Payment.
type PaymentState string

const (
	// StateNew is the initial state assigned by the host checkout framework.
	StateNew PaymentState = "new"

	// StateAuthorization means funds are reserved but not settled.
	StateAuthorization PaymentState = "authorization"

	// StateCompleted means funds are captured (settled).
	StateCompleted PaymentState = "completed"

	// StateAuthorizationVoided means the authorization was canceled before
	// settlement.
	StateAuthorizationVoided PaymentState = "authorization_voided"

	// StatePartiallyRefunded means part of the captured amount was returned.
	StatePartiallyRefunded PaymentState = "partially_refunded"

	// StateRefunded means the full captured amount was returned.
	StateRefunded PaymentState = "refunded"
)

// Terminal reports whether no further transitions are allowed from s.
// Completed is terminal for checkout purposes but still accepts refunds.
func (s PaymentState) Terminal() bool {
	return s == StateAuthorizationVoided || s == StateRefunded
}

// Money is an amount in a single ISO-4217 currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney parses a decimal string amount into a Money value.
func NewMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

// MustMoney is NewMoney that panics on a malformed amount. Test helper and
// literal constructor.
func MustMoney(amount, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero amount in the same currency as m.
func (m Money) Zero() Money {
	return Money{Amount: decimal.Zero, Currency: m.Currency}
}

// Add returns m + other. Currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m - other. Currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// Equal reports whether m and other are the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// GreaterThan reports whether m exceeds other, ignoring currency.
func (m Money) GreaterThan(other Money) bool {
	return m.Amount.GreaterThan(other.Amount)
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// String renders the amount with two decimal places, e.g. "49.99 USD".
func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

// Payment is the host-owned payment record. The state machine in the service
// layer is the only writer of State, Amount, RefundedAmount and RemoteID; the
// host persists changes through its store contract.
type Payment struct {
	ID             string
	OrderID        string
	State          PaymentState
	Amount         Money
	RefundedAmount Money
	RemoteID       string
	RemoteState    string
	BatchID        string
	Test           bool
	AuthorizedAt   time.Time

	// appliedTxns records remote transaction ids whose results were already
	// applied, so re-applying a result is a no-op.
	appliedTxns map[string]struct{}
}

// NewPayment creates a Payment in the "new" state for an order.
func NewPayment(orderID string, amount Money) *Payment {
	return &Payment{
		OrderID:        orderID,
		State:          StateNew,
		Amount:         amount,
		RefundedAmount: amount.Zero(),
	}
}

// ResultApplied reports whether a remote transaction id was already applied.
func (p *Payment) ResultApplied(remoteTxnID string) bool {
	_, ok := p.appliedTxns[remoteTxnID]
	return ok
}

// RecordApplied marks a remote transaction id as applied.
func (p *Payment) RecordApplied(remoteTxnID string) {
	if p.appliedTxns == nil {
		p.appliedTxns = make(map[string]struct{})
	}
	p.appliedTxns[remoteTxnID] = struct{}{}
}

// RemainingBalance is the amount still refundable.
func (p *Payment) RemainingBalance() (Money, error) {
	return p.Amount.Sub(p.RefundedAmount)
}

// PaymentMethod is a stored, reusable card reference produced by a
// zero-amount verification authorization. The card number itself is never
// stored; the remote transaction id acts as the token.
type PaymentMethod struct {
	ID            string
	CardType      string
	Last4         string
	ExpMonth      int
	ExpYear       int
	TransactionID string
	BatchID       string
	CreatedAt     time.Time
}
