package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/paymetric-payments/internal/core/domain"
)

func TestPaymentStoreRoundTrip(t *testing.T) {
	store := NewPaymentStore()
	ctx := context.Background()

	payment := domain.NewPayment("order-1", domain.MustMoney("49.99", "USD"))
	require.NoError(t, store.Save(ctx, payment))
	assert.NotEmpty(t, payment.ID)

	got, err := store.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Same(t, payment, got)

	// Re-saving keeps the assigned id.
	id := payment.ID
	require.NoError(t, store.Save(ctx, payment))
	assert.Equal(t, id, payment.ID)
}

func TestPaymentStoreGetUnknown(t *testing.T) {
	store := NewPaymentStore()
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMethodStoreLifecycle(t *testing.T) {
	store := NewMethodStore()
	ctx := context.Background()

	method := &domain.PaymentMethod{CardType: "visa", Last4: "1111"}
	require.NoError(t, store.Save(ctx, method))
	assert.NotEmpty(t, method.ID)

	got, err := store.Get(ctx, method.ID)
	require.NoError(t, err)
	assert.Equal(t, "1111", got.Last4)

	require.NoError(t, store.Delete(ctx, method.ID))
	_, err = store.Get(ctx, method.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = store.Delete(ctx, method.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
