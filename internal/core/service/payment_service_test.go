package service

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/paymetric-payments/internal/core/domain"
)

// fakeGateway records calls and replays canned results per operation.
type fakeGateway struct {
	results map[string]*domain.TransactionResult
	errs    map[string]error

	calls    []string
	requests map[string]domain.TransactionRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		results:  make(map[string]*domain.TransactionResult),
		errs:     make(map[string]error),
		requests: make(map[string]domain.TransactionRequest),
	}
}

func (g *fakeGateway) respond(op string, res *domain.TransactionResult) {
	g.results[op] = res
}

func (g *fakeGateway) fail(op string, err error) {
	g.errs[op] = err
}

func (g *fakeGateway) callCount() int { return len(g.calls) }

func (g *fakeGateway) do(op string, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	g.calls = append(g.calls, op)
	g.requests[op] = req
	if err := g.errs[op]; err != nil {
		return nil, err
	}
	if res := g.results[op]; res != nil {
		return res, nil
	}
	return approvedResult("txn-" + op), nil
}

func (g *fakeGateway) Authorize(_ context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	return g.do("authorize", req)
}

func (g *fakeGateway) Capture(_ context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	return g.do("capture", req)
}

func (g *fakeGateway) Void(_ context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	return g.do("void", req)
}

func (g *fakeGateway) Refund(_ context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	return g.do("refund", req)
}

// fakePaymentStore records saves.
type fakePaymentStore struct {
	saves    int
	payments map[string]*domain.Payment
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[string]*domain.Payment)}
}

func (s *fakePaymentStore) Save(_ context.Context, p *domain.Payment) error {
	s.saves++
	if p.ID == "" {
		p.ID = "pay-1"
	}
	s.payments[p.ID] = p
	return nil
}

func (s *fakePaymentStore) Get(_ context.Context, id string) (*domain.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

type fakeMethodStore struct {
	methods map[string]*domain.PaymentMethod
}

func newFakeMethodStore() *fakeMethodStore {
	return &fakeMethodStore{methods: make(map[string]*domain.PaymentMethod)}
}

func (s *fakeMethodStore) Save(_ context.Context, m *domain.PaymentMethod) error {
	s.methods[m.ID] = m
	return nil
}

func (s *fakeMethodStore) Get(_ context.Context, id string) (*domain.PaymentMethod, error) {
	m, ok := s.methods[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

func (s *fakeMethodStore) Delete(_ context.Context, id string) error {
	if _, ok := s.methods[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.methods, id)
	return nil
}

func approvedResult(txnID string) *domain.TransactionResult {
	return &domain.TransactionResult{
		Status:        domain.StatusOK,
		ResponseCode:  100,
		Message:       "Approved",
		TransactionID: txnID,
		BatchID:       "1",
	}
}

func declinedResult(code int) *domain.TransactionResult {
	return &domain.TransactionResult{
		Status:       domain.StatusOK,
		ResponseCode: code,
		Message:      "Declined",
	}
}

type serviceFixture struct {
	svc     *PaymentService
	gateway *fakeGateway
	store   *fakePaymentStore
	methods *fakeMethodStore
}

func newFixture(acceptedTypes ...string) *serviceFixture {
	gateway := newFakeGateway()
	store := newFakePaymentStore()
	methods := newFakeMethodStore()
	svc := NewPaymentService(gateway, store, methods, testBuilder(), NewInterpreter(), nil, acceptedTypes)
	return &serviceFixture{svc: svc, gateway: gateway, store: store, methods: methods}
}

func TestCreatePaymentAuthorizeOnly(t *testing.T) {
	f := newFixture()
	f.gateway.respond("authorize", approvedResult("txn-100"))
	payment := domain.NewPayment("order-17", domain.MustMoney("49.99", "USD"))

	err := f.svc.CreatePayment(context.Background(), payment, validCard(), nil, false)
	require.NoError(t, err)

	assert.Equal(t, domain.StateAuthorization, payment.State)
	assert.Equal(t, "txn-100", payment.RemoteID)
	assert.Equal(t, []string{"authorize"}, f.gateway.calls)
	assert.Equal(t, 1, f.store.saves)
}

func TestCreatePaymentWithCapture(t *testing.T) {
	f := newFixture()
	f.gateway.respond("authorize", approvedResult("txn-100"))
	f.gateway.respond("capture", approvedResult("txn-101"))
	payment := domain.NewPayment("order-17", domain.MustMoney("49.99", "USD"))

	err := f.svc.CreatePayment(context.Background(), payment, validCard(), nil, true)
	require.NoError(t, err)

	assert.Equal(t, domain.StateCompleted, payment.State)
	assert.Equal(t, "txn-100", payment.RemoteID)
	assert.Equal(t, []string{"authorize", "capture"}, f.gateway.calls)

	// The capture references the authorization.
	capReq := f.gateway.requests["capture"]
	assert.Equal(t, "txn-100", capReq.TransactionID)
	assert.Equal(t, "49.99 USD", capReq.Amount.String())
}

func TestCreatePaymentDeclineLeavesNew(t *testing.T) {
	f := newFixture()
	f.gateway.respond("authorize", declinedResult(2))
	payment := domain.NewPayment("order-17", domain.MustMoney("49.99", "USD"))

	err := f.svc.CreatePayment(context.Background(), payment, validCard(), nil, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGatewayDecline)

	assert.Equal(t, domain.StateNew, payment.State)
	assert.Empty(t, payment.RemoteID)
	assert.Equal(t, 0, f.store.saves)
}

func TestCreatePaymentCaptureDeclineNoPartialCommit(t *testing.T) {
	f := newFixture()
	f.gateway.respond("authorize", approvedResult("txn-100"))
	f.gateway.respond("capture", declinedResult(101))
	payment := domain.NewPayment("order-17", domain.MustMoney("49.99", "USD"))

	err := f.svc.CreatePayment(context.Background(), payment, validCard(), nil, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGatewayDecline)

	// Even though the authorization was approved, nothing is committed.
	assert.Equal(t, domain.StateNew, payment.State)
	assert.Empty(t, payment.RemoteID)
	assert.Equal(t, 0, f.store.saves)
}

func TestCreatePaymentHardFailure(t *testing.T) {
	f := newFixture()
	f.gateway.respond("authorize", &domain.TransactionResult{Status: domain.StatusError, Message: "backend timeout"})
	payment := domain.NewPayment("order-17", domain.MustMoney("49.99", "USD"))

	err := f.svc.CreatePayment(context.Background(), payment, validCard(), nil, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.NotErrorIs(t, err, domain.ErrGatewayDecline)
	assert.Equal(t, domain.StateNew, payment.State)
}

func TestCreatePaymentTransportErrorPreserved(t *testing.T) {
	f := newFixture()
	f.gateway.fail("authorize", domain.NewPaymentError(domain.ErrGatewayUnavailable, "could not reach the payment gateway", "GATEWAY_UNAVAILABLE"))
	payment := domain.NewPayment("order-17", domain.MustMoney("49.99", "USD"))

	err := f.svc.CreatePayment(context.Background(), payment, validCard(), nil, false)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Equal(t, domain.StateNew, payment.State)
}

func TestInvalidPreStatesFailWithoutNetwork(t *testing.T) {
	amount := domain.MustMoney("49.99", "USD")

	tests := []struct {
		name  string
		state domain.PaymentState
		run   func(f *serviceFixture, p *domain.Payment) error
	}{
		{"createPayment from authorization", domain.StateAuthorization, func(f *serviceFixture, p *domain.Payment) error {
			return f.svc.CreatePayment(context.Background(), p, validCard(), nil, false)
		}},
		{"createPayment from completed", domain.StateCompleted, func(f *serviceFixture, p *domain.Payment) error {
			return f.svc.CreatePayment(context.Background(), p, validCard(), nil, true)
		}},
		{"capturePayment from new", domain.StateNew, func(f *serviceFixture, p *domain.Payment) error {
			return f.svc.CapturePayment(context.Background(), p, nil)
		}},
		{"capturePayment from completed", domain.StateCompleted, func(f *serviceFixture, p *domain.Payment) error {
			return f.svc.CapturePayment(context.Background(), p, nil)
		}},
		{"voidPayment from new", domain.StateNew, func(f *serviceFixture, p *domain.Payment) error {
			return f.svc.VoidPayment(context.Background(), p)
		}},
		{"voidPayment from completed", domain.StateCompleted, func(f *serviceFixture, p *domain.Payment) error {
			return f.svc.VoidPayment(context.Background(), p)
		}},
		{"refundPayment from authorization", domain.StateAuthorization, func(f *serviceFixture, p *domain.Payment) error {
			return f.svc.RefundPayment(context.Background(), p, nil)
		}},
		{"refundPayment from voided", domain.StateAuthorizationVoided, func(f *serviceFixture, p *domain.Payment) error {
			return f.svc.RefundPayment(context.Background(), p, nil)
		}},
		{"refundPayment from refunded", domain.StateRefunded, func(f *serviceFixture, p *domain.Payment) error {
			return f.svc.RefundPayment(context.Background(), p, nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			payment := domain.NewPayment("order-17", amount)
			payment.State = tt.state
			payment.RemoteID = "txn-100"

			err := tt.run(f, payment)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidState)
			assert.Equal(t, 0, f.gateway.callCount(), "no network call expected")
			assert.Equal(t, tt.state, payment.State, "state unchanged")
		})
	}
}

func TestCapturePaymentDefaultsToAuthorizedAmount(t *testing.T) {
	f := newFixture()
	f.gateway.respond("capture", approvedResult("txn-200"))
	payment := domain.NewPayment("order-17", domain.MustMoney("49.99", "USD"))
	payment.State = domain.StateAuthorization
	payment.RemoteID = "txn-100"

	err := f.svc.CapturePayment(context.Background(), payment, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StateCompleted, payment.State)
	assert.Equal(t, "49.99 USD", f.gateway.requests["capture"].Amount.String())
}

func TestCapturePaymentRejectsExcessAmount(t *testing.T) {
	f := newFixture()
	payment := domain.NewPayment("order-17", domain.MustMoney("49.99", "USD"))
	payment.State = domain.StateAuthorization
	payment.RemoteID = "txn-100"

	excess := domain.MustMoney("60.00", "USD")
	err := f.svc.CapturePayment(context.Background(), payment, &excess)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, f.gateway.callCount())
}

func TestVoidPayment(t *testing.T) {
	f := newFixture()
	f.gateway.respond("void", approvedResult("txn-300"))
	payment := domain.NewPayment("order-17", domain.MustMoney("49.99", "USD"))
	payment.State = domain.StateAuthorization
	payment.RemoteID = "txn-100"

	err := f.svc.VoidPayment(context.Background(), payment)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthorizationVoided, payment.State)
}

func TestRefundPaymentPartialThenFull(t *testing.T) {
	f := newFixture()
	payment := domain.NewPayment("order-17", domain.MustMoney("100.00", "USD"))
	payment.State = domain.StateCompleted
	payment.RemoteID = "txn-100"

	// First refund: 40.00 of 100.00.
	f.gateway.respond("refund", approvedResult("refund-1"))
	first := domain.MustMoney("40.00", "USD")
	require.NoError(t, f.svc.RefundPayment(context.Background(), payment, &first))
	assert.Equal(t, domain.StatePartiallyRefunded, payment.State)
	assert.Equal(t, "40.00 USD", payment.RefundedAmount.String())

	// Second refund: remaining 60.00.
	f.gateway.respond("refund", approvedResult("refund-2"))
	second := domain.MustMoney("60.00", "USD")
	require.NoError(t, f.svc.RefundPayment(context.Background(), payment, &second))
	assert.Equal(t, domain.StateRefunded, payment.State)
	assert.Equal(t, "100.00 USD", payment.RefundedAmount.String())
}

func TestRefundPaymentDefaultsToRemainingBalance(t *testing.T) {
	f := newFixture()
	f.gateway.respond("refund", approvedResult("refund-1"))
	payment := domain.NewPayment("order-17", domain.MustMoney("100.00", "USD"))
	payment.State = domain.StatePartiallyRefunded
	payment.RemoteID = "txn-100"
	payment.RefundedAmount = domain.MustMoney("40.00", "USD")

	require.NoError(t, f.svc.RefundPayment(context.Background(), payment, nil))
	assert.Equal(t, "60.00 USD", f.gateway.requests["refund"].Amount.String())
	assert.Equal(t, domain.StateRefunded, payment.State)
}

func TestOverRefundRejectedBeforeNetwork(t *testing.T) {
	f := newFixture()
	payment := domain.NewPayment("order-17", domain.MustMoney("100.00", "USD"))
	payment.State = domain.StatePartiallyRefunded
	payment.RemoteID = "txn-100"
	payment.RefundedAmount = domain.MustMoney("40.00", "USD")

	excess := domain.MustMoney("70.00", "USD")
	err := f.svc.RefundPayment(context.Background(), payment, &excess)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, f.gateway.callCount())
	assert.Equal(t, "40.00 USD", payment.RefundedAmount.String())
}

// The same gateway result applied twice must not double-increment the
// refunded amount.
func TestRefundIdempotentAgainstReplayedResult(t *testing.T) {
	f := newFixture()
	f.gateway.respond("refund", approvedResult("refund-1"))
	payment := domain.NewPayment("order-17", domain.MustMoney("100.00", "USD"))
	payment.State = domain.StateCompleted
	payment.RemoteID = "txn-100"

	amount := domain.MustMoney("40.00", "USD")
	require.NoError(t, f.svc.RefundPayment(context.Background(), payment, &amount))
	require.NoError(t, f.svc.RefundPayment(context.Background(), payment, &amount))

	assert.Equal(t, "40.00 USD", payment.RefundedAmount.String())
	assert.Equal(t, domain.StatePartiallyRefunded, payment.State)
}

func TestRefundDecline(t *testing.T) {
	f := newFixture()
	f.gateway.respond("refund", declinedResult(101))
	payment := domain.NewPayment("order-17", domain.MustMoney("100.00", "USD"))
	payment.State = domain.StateCompleted
	payment.RemoteID = "txn-100"

	err := f.svc.RefundPayment(context.Background(), payment, nil)
	assert.ErrorIs(t, err, domain.ErrGatewayDecline)
	assert.Equal(t, domain.StateCompleted, payment.State)
	assert.True(t, payment.RefundedAmount.IsZero())
}

func TestAuthorizePaymentMethod(t *testing.T) {
	f := newFixture()
	f.gateway.respond("authorize", approvedResult("txn-500"))
	payment := domain.NewPayment("order-17", domain.MustMoney("49.99", "USD"))

	res, err := f.svc.AuthorizePaymentMethod(context.Background(), payment, validCard(), nil)
	require.NoError(t, err)
	assert.Equal(t, "txn-500", res.TransactionID)
}

func TestCreatePaymentMethodStoresToken(t *testing.T) {
	f := newFixture()
	f.gateway.respond("authorize", approvedResult("txn-500"))

	method, err := f.svc.CreatePaymentMethod(context.Background(), validCard(), nil, "USD")
	require.NoError(t, err)
	assert.Equal(t, "txn-500", method.TransactionID)
	assert.Equal(t, "visa", method.CardType)
	assert.Equal(t, "1111", method.Last4)
	assert.NotEmpty(t, method.ID)

	require.NoError(t, f.svc.DeletePaymentMethod(context.Background(), method.ID))
	_, err = f.methods.Get(context.Background(), method.ID)
	assert.Error(t, err)
}

func TestCardTypeRestriction(t *testing.T) {
	f := newFixture("visa", "mastercard")

	amexCard := validCard()
	amexCard.Number = "378282246310005"
	payment := domain.NewPayment("order-17", domain.MustMoney("49.99", "USD"))

	err := f.svc.CreatePayment(context.Background(), payment, amexCard, nil, false)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, f.gateway.callCount())

	f.gateway.respond("authorize", approvedResult("txn-1"))
	require.NoError(t, f.svc.CreatePayment(context.Background(), payment, validCard(), nil, false))
}

func TestOnReturnReconstructsResult(t *testing.T) {
	f := newFixture()
	params := url.Values{}
	params.Set("amount", "49.99")
	params.Set("currency", "USD")
	params.Set("transactionId", "txn-900")
	params.Set("message", "Approved")

	payment, err := f.svc.OnReturn(context.Background(), "order-17", params)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, payment.State)
	assert.Equal(t, "49.99 USD", payment.Amount.String())
	assert.Equal(t, "txn-900", payment.RemoteID)
	assert.Equal(t, 1, f.store.saves)
}

func TestOnReturnFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		omit string
	}{
		{"missing amount", "amount"},
		{"missing currency", "currency"},
		{"missing transactionId", "transactionId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			params := url.Values{}
			params.Set("amount", "49.99")
			params.Set("currency", "USD")
			params.Set("transactionId", "txn-900")
			params.Del(tt.omit)

			_, err := f.svc.OnReturn(context.Background(), "order-17", params)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrProtocol)
			assert.Equal(t, 0, f.store.saves)
		})
	}

	t.Run("bad amount", func(t *testing.T) {
		f := newFixture()
		params := url.Values{}
		params.Set("amount", "forty-nine")
		params.Set("currency", "USD")
		params.Set("transactionId", "txn-900")

		_, err := f.svc.OnReturn(context.Background(), "order-17", params)
		assert.ErrorIs(t, err, domain.ErrProtocol)
	})
}

func TestWrapGatewayErrorFoldsUnknownErrors(t *testing.T) {
	f := newFixture()
	f.gateway.fail("authorize", errors.New("connection reset by peer"))
	payment := domain.NewPayment("order-17", domain.MustMoney("49.99", "USD"))

	err := f.svc.CreatePayment(context.Background(), payment, validCard(), nil, false)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}
