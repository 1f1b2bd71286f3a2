// Package xipay implements the GatewayClient port against the Paymetric
// XiPay SOAP/XML endpoint.
package xipay

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/commercekit/paymetric-payments/internal/core/domain"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultSessionTTL = 15 * time.Minute
)

// Config contains the XiPay client configuration.
type Config struct {
	Credentials domain.GatewayCredentials

	// Timeout bounds one round-trip. A timed-out financial operation is
	// never resent; the caller surfaces it as status unknown.
	Timeout time.Duration

	// SessionTTL bounds how long an authenticated session is reused.
	SessionTTL time.Duration
}

// Client talks to the XiPay endpoint. One network round-trip per operation,
// no automatic retry.
type Client struct {
	creds      domain.GatewayCredentials
	httpClient *http.Client
	logger     *zap.Logger

	sessions   *cache.Cache
	sessionTTL time.Duration
}

// NewClient creates a XiPay client. Missing credentials fail fast here so a
// partial configuration is never sent to the provider.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		creds: cfg.Credentials,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger:     logger,
		sessions:   cache.New(cfg.SessionTTL, 2*cfg.SessionTTL),
		sessionTTL: cfg.SessionTTL,
	}, nil
}

// Authorize reserves funds. The transmitted amount is always zero: the
// provider requires a zero-amount transaction for a pure authorization hold.
func (c *Client) Authorize(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	txn := wireTransaction{
		MerchantID:         req.MerchantID,
		Amount:             "0.00",
		CurrencyKey:        req.Amount.Currency,
		CardNumber:         req.CardNumber,
		CardExpirationDate: req.CardExpiration,
		CardCVV2:           req.CardSecurityCode,
		OrderDescription:   req.Description,
	}
	if b := req.Billing; b != nil {
		txn.CardHolderName = strings.TrimSpace(b.GivenName + " " + b.FamilyName)
		txn.BillingStreet1 = b.Street1
		txn.BillingStreet2 = b.Street2
		txn.BillingCity = b.City
		txn.BillingRegion = b.Region
		txn.BillingPostalCode = b.PostalCode
		txn.BillingCountry = b.CountryCode
	}
	return c.call(ctx, "Authorize", txn)
}

// Capture settles a prior authorization, transmitting the real settlement
// amount and the transaction/batch identifiers from the authorize step.
func (c *Client) Capture(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	if err := requireReference("capture", req); err != nil {
		return nil, err
	}
	return c.call(ctx, "Capture", referenceTransaction(req))
}

// Void cancels a prior authorization before settlement.
func (c *Client) Void(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	if err := requireReference("void", req); err != nil {
		return nil, err
	}
	return c.call(ctx, "Void", referenceTransaction(req))
}

// Refund returns settled funds from a prior capture.
func (c *Client) Refund(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	if err := requireReference("refund", req); err != nil {
		return nil, err
	}
	return c.call(ctx, "Refund", referenceTransaction(req))
}

func requireReference(op string, req domain.TransactionRequest) error {
	if req.TransactionID == "" {
		return domain.NewPaymentError(domain.ErrValidation,
			op+" requires the transaction id of a prior authorization", "MISSING_TRANSACTION_ID")
	}
	return nil
}

// referenceTransaction builds the field set for operations that reference a
// prior authorization rather than carrying card data.
func referenceTransaction(req domain.TransactionRequest) wireTransaction {
	batchID := req.BatchID
	if batchID == "" {
		batchID = "1"
	}
	return wireTransaction{
		MerchantID:       req.MerchantID,
		CurrencyKey:      req.Amount.Currency,
		TransactionID:    req.TransactionID,
		BatchID:          batchID,
		SettlementAmount: req.Amount.Amount.StringFixed(2),
	}
}

// call performs one SOAP round-trip. Card number and CVV never reach the
// log output.
func (c *Client) call(ctx context.Context, op string, txn wireTransaction) (*domain.TransactionResult, error) {
	sessionID, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := marshalEnvelope(&operationRequest{
		XMLName:     xml.Name{Local: op},
		NS:          serviceNS,
		SessionID:   sessionID,
		Transaction: txn,
	})
	if err != nil {
		return nil, fmt.Errorf("building %s envelope: %w", op, err)
	}

	c.logger.Info("sending gateway request",
		zap.String("operation", op),
		zap.String("merchant_id", txn.MerchantID),
		zap.String("amount", txn.Amount),
		zap.String("settlement_amount", txn.SettlementAmount),
		zap.String("transaction_id", txn.TransactionID),
		zap.String("card_last4", last4(txn.CardNumber)),
	)

	start := time.Now()
	body, err := c.post(ctx, op, payload)
	if err != nil {
		c.logger.Error("gateway request failed",
			zap.String("operation", op),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	var env responseEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		c.logger.Error("failed to parse gateway response",
			zap.String("operation", op),
			zap.Error(err),
		)
		return nil, domain.NewPaymentError(domain.ErrProtocol,
			"gateway response is not valid XML", "PROTOCOL_ERROR")
	}

	result, err := toResult(&env.Body.Response)
	if err != nil {
		return nil, err
	}

	c.logger.Info("received gateway response",
		zap.String("operation", op),
		zap.String("status", result.Status.String()),
		zap.Int("response_code", result.ResponseCode),
		zap.String("remote_id", result.TransactionID),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// session returns a cached session id, opening a new authenticated session
// when none is live.
func (c *Client) session(ctx context.Context) (string, error) {
	key := c.creds.EndpointURL + "|" + c.creds.User
	if v, ok := c.sessions.Get(key); ok {
		return v.(string), nil
	}

	payload, err := marshalEnvelope(&sessionRequest{
		NS:            serviceNS,
		User:          c.creds.User,
		Password:      c.creds.Password,
		InterceptGUID: c.creds.InterceptGUID,
		InterceptPSK:  c.creds.InterceptPSK,
	})
	if err != nil {
		return "", fmt.Errorf("building session envelope: %w", err)
	}

	body, err := c.post(ctx, "StartSession", payload)
	if err != nil {
		return "", err
	}

	var env responseEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return "", domain.NewPaymentError(domain.ErrProtocol,
			"session response is not valid XML", "PROTOCOL_ERROR")
	}
	if env.Body.Response.SessionID == "" {
		return "", domain.NewPaymentError(domain.ErrProtocol,
			"session response is missing SessionID", "PROTOCOL_ERROR")
	}

	c.sessions.Set(key, env.Body.Response.SessionID, c.sessionTTL)
	c.logger.Info("gateway session opened", zap.String("user", c.creds.User))
	return env.Body.Response.SessionID, nil
}

func (c *Client) post(ctx context.Context, op string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.EndpointURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", serviceNS+"/"+op)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NewPaymentError(domain.ErrGatewayUnavailable,
			"could not reach the payment gateway", "GATEWAY_UNAVAILABLE")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewPaymentError(domain.ErrGatewayUnavailable,
			"reading gateway response failed", "GATEWAY_UNAVAILABLE")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewPaymentError(domain.ErrGatewayUnavailable,
			fmt.Sprintf("gateway returned HTTP %d", resp.StatusCode), "GATEWAY_UNAVAILABLE")
	}
	return body, nil
}

func last4(number string) string {
	if number == "" {
		return ""
	}
	if len(number) < 4 {
		return "****"
	}
	return number[len(number)-4:]
}
