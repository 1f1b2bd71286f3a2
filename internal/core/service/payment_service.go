package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/commercekit/paymetric-payments/internal/core/domain"
	"github.com/commercekit/paymetric-payments/internal/core/ports"
)

// User-facing messages. Declines invite an immediate retry with corrected
// details; unavailable/protocol failures do not, because the remote outcome
// is unknown.
const (
	declinedUserMessage    = "Your card was declined. Please verify the details and try again."
	unavailableUserMessage = "The payment service is temporarily unavailable. Please try again later."
	unknownStatusMessage   = "The payment status could not be confirmed. Verify the transaction before retrying."
)

// PaymentService drives payments through their lifecycle. It is the only
// writer of payment state; persistence and call serialization per payment
// belong to the host framework behind the store ports.
type PaymentService struct {
	gateway  ports.GatewayClient
	payments ports.PaymentStore
	methods  ports.MethodStore
	builder  *RequestBuilder
	interp   *Interpreter
	logger   *zap.Logger

	// acceptedCardTypes limits card brands; empty means accept all.
	acceptedCardTypes map[string]struct{}

	now func() time.Time
}

// NewPaymentService creates the payment service with its collaborators.
func NewPaymentService(
	gateway ports.GatewayClient,
	payments ports.PaymentStore,
	methods ports.MethodStore,
	builder *RequestBuilder,
	interp *Interpreter,
	logger *zap.Logger,
	acceptedCardTypes []string,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	accepted := make(map[string]struct{}, len(acceptedCardTypes))
	for _, t := range acceptedCardTypes {
		accepted[t] = struct{}{}
	}
	return &PaymentService{
		gateway:           gateway,
		payments:          payments,
		methods:           methods,
		builder:           builder,
		interp:            interp,
		logger:            logger,
		acceptedCardTypes: accepted,
		now:               time.Now,
	}
}

// AuthorizePaymentMethod runs the zero-amount verification authorization for
// a card and returns the approved result, whose transaction and batch ids
// are needed for the later capture.
func (s *PaymentService) AuthorizePaymentMethod(ctx context.Context, payment *domain.Payment, card domain.CardDetails, billing *domain.BillingProfile) (*domain.TransactionResult, error) {
	if err := s.checkCardType(card); err != nil {
		return nil, err
	}

	req, err := s.builder.Authorization(payment, card, billing, "")
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.Authorize(ctx, req)
	if err != nil {
		return nil, s.wrapGatewayError(err)
	}

	switch s.interp.Classify(res) {
	case OutcomeApproved:
		s.logger.Info("card authorized",
			zap.String("order_id", payment.OrderID),
			zap.String("remote_id", res.TransactionID),
			zap.Int("response_code", res.ResponseCode),
		)
		return res, nil
	case OutcomeDeclined:
		return nil, s.declineError(payment, res)
	default:
		return nil, s.hardFailureError(payment, res)
	}
}

// CreatePaymentMethod verifies a card with a zero-amount authorization and
// stores a reusable method referencing the remote transaction. The card
// number is never stored.
func (s *PaymentService) CreatePaymentMethod(ctx context.Context, card domain.CardDetails, billing *domain.BillingProfile, currency string) (*domain.PaymentMethod, error) {
	verification := domain.NewPayment("", domain.Money{Amount: decimal.Zero, Currency: currency})

	res, err := s.AuthorizePaymentMethod(ctx, verification, card, billing)
	if err != nil {
		return nil, err
	}

	method := &domain.PaymentMethod{
		ID:            uuid.New().String(),
		CardType:      domain.DetectCardType(card.Number),
		Last4:         card.Last4(),
		ExpMonth:      card.ExpirationMonth,
		ExpYear:       card.ExpirationYear,
		TransactionID: res.TransactionID,
		BatchID:       res.BatchID,
		CreatedAt:     s.now(),
	}
	if err := s.methods.Save(ctx, method); err != nil {
		return nil, fmt.Errorf("saving payment method: %w", err)
	}

	s.logger.Info("payment method created",
		zap.String("method_id", method.ID),
		zap.String("card_type", method.CardType),
		zap.String("last4", method.Last4),
	)
	return method, nil
}

// DeletePaymentMethod removes a stored payment method.
func (s *PaymentService) DeletePaymentMethod(ctx context.Context, id string) error {
	return s.methods.Delete(ctx, id)
}

// CreatePayment runs the checkout transaction for a new payment: an
// authorization, then a capture when captureNow is set. On a decline or
// failure the payment stays in "new" with nothing committed.
func (s *PaymentService) CreatePayment(ctx context.Context, payment *domain.Payment, card domain.CardDetails, billing *domain.BillingProfile, captureNow bool) error {
	if payment.State != domain.StateNew {
		return stateError("createPayment", payment.State)
	}
	if err := s.checkCardType(card); err != nil {
		return err
	}

	// Step 1: authorization hold. The client forces the wire amount to
	// zero; the requested amount only matters at capture.
	authReq, err := s.builder.Authorization(payment, card, billing, payment.OrderID)
	if err != nil {
		return err
	}
	authRes, err := s.gateway.Authorize(ctx, authReq)
	if err != nil {
		return s.wrapGatewayError(err)
	}
	switch s.interp.Classify(authRes) {
	case OutcomeApproved:
	case OutcomeDeclined:
		return s.declineError(payment, authRes)
	default:
		return s.hardFailureError(payment, authRes)
	}

	state := domain.StateAuthorization
	remoteState := authRes.Message
	appliedTxn := authRes.TransactionID

	// Step 2: optional immediate capture referencing the authorization.
	if captureNow {
		capReq, err := s.builder.Capture(payment, payment.Amount, authRes.TransactionID, authRes.BatchID)
		if err != nil {
			return err
		}
		capRes, err := s.gateway.Capture(ctx, capReq)
		if err != nil {
			return s.wrapGatewayError(err)
		}
		switch s.interp.Classify(capRes) {
		case OutcomeApproved:
			state = domain.StateCompleted
			remoteState = capRes.Message
			appliedTxn = capRes.TransactionID
		case OutcomeDeclined:
			return s.declineError(payment, capRes)
		default:
			return s.hardFailureError(payment, capRes)
		}
	}

	// Step 3: commit. Nothing above touched the payment, so a decline or
	// failure never leaves a partial state behind.
	payment.State = state
	payment.RemoteID = authRes.TransactionID
	payment.BatchID = authRes.BatchID
	payment.RemoteState = remoteState
	payment.RefundedAmount = payment.Amount.Zero()
	payment.AuthorizedAt = s.now()
	payment.RecordApplied(appliedTxn)

	if err := s.payments.Save(ctx, payment); err != nil {
		return fmt.Errorf("saving payment: %w", err)
	}

	s.logger.Info("payment created",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.String("state", string(payment.State)),
		zap.String("remote_id", payment.RemoteID),
		zap.String("amount", payment.Amount.String()),
	)
	return nil
}

// CapturePayment settles a previously authorized payment. The amount
// defaults to the full authorized amount and may not exceed it.
func (s *PaymentService) CapturePayment(ctx context.Context, payment *domain.Payment, amount *domain.Money) error {
	if payment.State != domain.StateAuthorization {
		return stateError("capturePayment", payment.State)
	}

	amt := payment.Amount
	if amount != nil {
		amt = *amount
	}
	if amt.GreaterThan(payment.Amount) {
		return domain.NewPaymentError(domain.ErrValidation,
			"capture amount exceeds the authorized amount", "CAPTURE_EXCEEDS_AUTHORIZATION")
	}

	req, err := s.builder.Capture(payment, amt, payment.RemoteID, payment.BatchID)
	if err != nil {
		return err
	}
	res, err := s.gateway.Capture(ctx, req)
	if err != nil {
		return s.wrapGatewayError(err)
	}

	switch s.interp.Classify(res) {
	case OutcomeApproved:
	case OutcomeDeclined:
		return s.declineError(payment, res)
	default:
		return s.hardFailureError(payment, res)
	}

	if payment.ResultApplied(res.TransactionID) {
		s.logger.Warn("capture result already applied, skipping",
			zap.String("payment_id", payment.ID),
			zap.String("remote_id", res.TransactionID),
		)
		return nil
	}

	payment.RecordApplied(res.TransactionID)
	payment.Amount = amt
	payment.State = domain.StateCompleted
	payment.RemoteState = res.Message

	if err := s.payments.Save(ctx, payment); err != nil {
		return fmt.Errorf("saving payment: %w", err)
	}

	s.logger.Info("payment captured",
		zap.String("payment_id", payment.ID),
		zap.String("amount", amt.String()),
	)
	return nil
}

// VoidPayment cancels an authorization before settlement.
func (s *PaymentService) VoidPayment(ctx context.Context, payment *domain.Payment) error {
	if payment.State != domain.StateAuthorization {
		return stateError("voidPayment", payment.State)
	}

	req, err := s.builder.Void(payment)
	if err != nil {
		return err
	}
	res, err := s.gateway.Void(ctx, req)
	if err != nil {
		return s.wrapGatewayError(err)
	}

	switch s.interp.Classify(res) {
	case OutcomeApproved:
	case OutcomeDeclined:
		return s.declineError(payment, res)
	default:
		return s.hardFailureError(payment, res)
	}

	payment.RecordApplied(res.TransactionID)
	payment.State = domain.StateAuthorizationVoided
	payment.RemoteState = res.Message

	if err := s.payments.Save(ctx, payment); err != nil {
		return fmt.Errorf("saving payment: %w", err)
	}

	s.logger.Info("authorization voided", zap.String("payment_id", payment.ID))
	return nil
}

// RefundPayment returns settled funds. The amount defaults to the remaining
// balance; a request exceeding it is rejected before any network call.
// Applying the same gateway result twice never double-increments the
// refunded amount.
func (s *PaymentService) RefundPayment(ctx context.Context, payment *domain.Payment, amount *domain.Money) error {
	if payment.State != domain.StateCompleted && payment.State != domain.StatePartiallyRefunded {
		return stateError("refundPayment", payment.State)
	}

	remaining, err := payment.RemainingBalance()
	if err != nil {
		return domain.NewPaymentError(domain.ErrValidation, err.Error(), "INVALID_AMOUNT")
	}
	amt := remaining
	if amount != nil {
		amt = *amount
	}
	if amt.GreaterThan(remaining) {
		return domain.NewPaymentError(domain.ErrValidation,
			fmt.Sprintf("refund of %s exceeds the remaining balance of %s", amt, remaining),
			"REFUND_EXCEEDS_BALANCE")
	}

	req, err := s.builder.Refund(payment, amt)
	if err != nil {
		return err
	}
	res, err := s.gateway.Refund(ctx, req)
	if err != nil {
		return s.wrapGatewayError(err)
	}

	switch s.interp.Classify(res) {
	case OutcomeApproved:
	case OutcomeDeclined:
		return s.declineError(payment, res)
	default:
		return s.hardFailureError(payment, res)
	}

	if payment.ResultApplied(res.TransactionID) {
		s.logger.Warn("refund result already applied, skipping",
			zap.String("payment_id", payment.ID),
			zap.String("remote_id", res.TransactionID),
		)
		return nil
	}
	payment.RecordApplied(res.TransactionID)

	refunded, err := payment.RefundedAmount.Add(amt)
	if err != nil {
		return domain.NewPaymentError(domain.ErrValidation, err.Error(), "INVALID_AMOUNT")
	}
	payment.RefundedAmount = refunded
	if refunded.Equal(payment.Amount) {
		payment.State = domain.StateRefunded
	} else {
		payment.State = domain.StatePartiallyRefunded
	}

	if err := s.payments.Save(ctx, payment); err != nil {
		return fmt.Errorf("saving payment: %w", err)
	}

	s.logger.Info("payment refunded",
		zap.String("payment_id", payment.ID),
		zap.String("refunded", refunded.String()),
		zap.String("state", string(payment.State)),
	)
	return nil
}

// OnReturn reconstructs a transaction result from the gateway-echoed query
// parameters of the offsite-redirect flow and records the completed payment.
// Any missing parameter fails closed: no payment is recorded.
func (s *PaymentService) OnReturn(ctx context.Context, orderID string, params url.Values) (*domain.Payment, error) {
	amountStr := params.Get("amount")
	currency := params.Get("currency")
	transactionID := params.Get("transactionId")
	message := params.Get("message")

	if amountStr == "" || currency == "" || transactionID == "" {
		return nil, domain.NewPaymentError(domain.ErrProtocol,
			"return parameters are incomplete", "INCOMPLETE_RETURN")
	}
	amount, err := domain.NewMoney(amountStr, currency)
	if err != nil {
		return nil, domain.NewPaymentError(domain.ErrProtocol,
			"return amount is not a valid decimal", "INCOMPLETE_RETURN")
	}

	payment := &domain.Payment{
		OrderID:        orderID,
		State:          domain.StateCompleted,
		Amount:         amount,
		RefundedAmount: amount.Zero(),
		RemoteID:       transactionID,
		RemoteState:    message,
		AuthorizedAt:   s.now(),
	}
	payment.RecordApplied(transactionID)

	if err := s.payments.Save(ctx, payment); err != nil {
		return nil, fmt.Errorf("saving payment: %w", err)
	}

	s.logger.Info("offsite return recorded",
		zap.String("order_id", orderID),
		zap.String("remote_id", transactionID),
		zap.String("amount", amount.String()),
	)
	return payment, nil
}

// OnCancel reports the user message for an abandoned offsite checkout. The
// checkout may be resumed; nothing is recorded.
func (s *PaymentService) OnCancel(orderID string) string {
	s.logger.Info("offsite checkout canceled", zap.String("order_id", orderID))
	return "You have canceled checkout but may resume it when you are ready."
}

// GetPayment loads a payment from the host store.
func (s *PaymentService) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return s.payments.Get(ctx, id)
}

// checkCardType rejects card brands outside the accepted set before any
// network call. An empty set accepts everything.
func (s *PaymentService) checkCardType(card domain.CardDetails) error {
	if len(s.acceptedCardTypes) == 0 {
		return nil
	}
	cardType := domain.DetectCardType(card.Number)
	if _, ok := s.acceptedCardTypes[cardType]; !ok {
		return domain.NewPaymentError(domain.ErrValidation,
			"this card type is not accepted", "UNSUPPORTED_CARD_TYPE")
	}
	return nil
}

func (s *PaymentService) declineError(payment *domain.Payment, res *domain.TransactionResult) error {
	s.logger.Warn("gateway declined transaction",
		zap.String("order_id", payment.OrderID),
		zap.Int("response_code", res.ResponseCode),
		zap.String("gateway_message", res.Message),
	)
	return domain.NewPaymentError(domain.ErrGatewayDecline,
		declinedUserMessage+" ("+s.interp.DeclineMessage(res)+")", "DECLINED")
}

func (s *PaymentService) hardFailureError(payment *domain.Payment, res *domain.TransactionResult) error {
	s.logger.Error("gateway reported processing error",
		zap.String("order_id", payment.OrderID),
		zap.String("gateway_message", res.Message),
	)
	return domain.NewPaymentError(domain.ErrGatewayUnavailable, unknownStatusMessage, "GATEWAY_ERROR")
}

// wrapGatewayError keeps typed client failures intact and folds anything
// else into a gateway-unavailable failure.
func (s *PaymentService) wrapGatewayError(err error) error {
	var pe *domain.PaymentError
	if errors.As(err, &pe) {
		return err
	}
	s.logger.Error("gateway call failed", zap.Error(err))
	return domain.NewPaymentError(domain.ErrGatewayUnavailable, unavailableUserMessage, "GATEWAY_ERROR")
}

func stateError(op string, state domain.PaymentState) error {
	return domain.NewPaymentError(domain.ErrInvalidState,
		fmt.Sprintf("%s is not allowed from state %q", op, state), "INVALID_STATE")
}
