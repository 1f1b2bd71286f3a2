// Package ports defines the interfaces (ports) for the payment core.
// These are contracts that gateway adapters and the host framework implement.
package ports

import (
	"context"

	"github.com/commercekit/paymetric-payments/internal/core/domain"
)

// GatewayClient is the remote processor contract. One network round-trip per
// call, no automatic retry: a timed-out financial operation may already have
// executed remotely and must be surfaced as unknown, never resent.
type GatewayClient interface {
	// Authorize reserves funds. The transmitted amount is forced to zero
	// regardless of the requested amount (provider requirement for a pure
	// authorization hold).
	Authorize(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error)

	// Capture settles a prior authorization. The request must carry the
	// transaction and batch identifiers from the authorize step and the
	// real settlement amount.
	Capture(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error)

	// Void cancels a prior authorization before settlement.
	Void(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error)

	// Refund returns settled funds from a prior capture.
	Refund(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error)
}

// PaymentStore is the host framework's persistence contract for payments.
// The host serializes calls per payment; the core does not lock.
type PaymentStore interface {
	Save(ctx context.Context, payment *domain.Payment) error
	Get(ctx context.Context, id string) (*domain.Payment, error)
}

// MethodStore is the host framework's persistence contract for stored
// payment methods.
type MethodStore interface {
	Save(ctx context.Context, method *domain.PaymentMethod) error
	Get(ctx context.Context, id string) (*domain.PaymentMethod, error)
	Delete(ctx context.Context, id string) error
}
