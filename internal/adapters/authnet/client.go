// Package authnet implements the GatewayClient port against the legacy
// Authorize.Net AIM endpoint: raw name/value pairs posted over HTTPS. Field
// names are fixed by the provider and reproduced exactly.
package authnet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/commercekit/paymetric-payments/internal/core/domain"
)

// AIM endpoints, chosen by gateway mode.
const (
	TestAPIURL       = "https://test.authorize.net/gateway/transact.dll"
	ProductionAPIURL = "https://secure2.authorize.net/gateway/transact.dll"
)

// AIM transaction types.
const (
	typeAuthOnly         = "AUTH_ONLY"
	typePriorAuthCapture = "PRIOR_AUTH_CAPTURE"
	typeVoid             = "VOID"
	typeCredit           = "CREDIT"
)

// ApprovedCode is the AIM code for an approved transaction. Interpreters
// sitting in front of this client should be constructed with it.
const ApprovedCode = 1

const defaultTimeout = 30 * time.Second

// Config contains the AIM client configuration.
type Config struct {
	Credentials domain.GatewayCredentials

	// Mode selects the endpoint: "test" posts to the sandbox, anything
	// else to production. Ignored when Credentials.EndpointURL is set.
	Mode string

	Timeout time.Duration
}

// Client posts form-encoded transactions to the AIM endpoint.
type Client struct {
	creds      domain.GatewayCredentials
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an AIM client. Missing credentials fail fast.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Credentials.EndpointURL == "" {
		if cfg.Mode == "test" {
			cfg.Credentials.EndpointURL = TestAPIURL
		} else {
			cfg.Credentials.EndpointURL = ProductionAPIURL
		}
	}
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		creds:      cfg.Credentials,
		endpoint:   cfg.Credentials.EndpointURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// Authorize reserves funds. x_total is forced to zero for the pure
// authorization hold.
func (c *Client) Authorize(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	form := c.baseForm(typeAuthOnly, req)
	form.Set("x_card_num", req.CardNumber)
	form.Set("x_exp_date", req.CardExpiration)
	form.Set("x_card_code", req.CardSecurityCode)
	form.Set("x_total", "0.00")
	return c.post(ctx, typeAuthOnly, form)
}

// Capture settles a prior authorization.
func (c *Client) Capture(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	if req.TransactionID == "" {
		return nil, domain.NewPaymentError(domain.ErrValidation,
			"capture requires the transaction id of a prior authorization", "MISSING_TRANSACTION_ID")
	}
	form := c.baseForm(typePriorAuthCapture, req)
	form.Set("x_total", req.Amount.Amount.StringFixed(2))
	form.Set("x_transaction_id", req.TransactionID)
	form.Set("x_batch_id", batchOrDefault(req.BatchID))
	return c.post(ctx, typePriorAuthCapture, form)
}

// Void cancels a prior authorization before settlement.
func (c *Client) Void(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	if req.TransactionID == "" {
		return nil, domain.NewPaymentError(domain.ErrValidation,
			"void requires the transaction id of a prior authorization", "MISSING_TRANSACTION_ID")
	}
	form := c.baseForm(typeVoid, req)
	form.Set("x_transaction_id", req.TransactionID)
	return c.post(ctx, typeVoid, form)
}

// Refund returns settled funds from a prior capture.
func (c *Client) Refund(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	if req.TransactionID == "" {
		return nil, domain.NewPaymentError(domain.ErrValidation,
			"refund requires the transaction id of a prior capture", "MISSING_TRANSACTION_ID")
	}
	form := c.baseForm(typeCredit, req)
	form.Set("x_total", req.Amount.Amount.StringFixed(2))
	form.Set("x_transaction_id", req.TransactionID)
	return c.post(ctx, typeCredit, form)
}

func (c *Client) baseForm(tranType string, req domain.TransactionRequest) url.Values {
	form := url.Values{}
	form.Set("x_login", c.creds.User)
	form.Set("x_tran_key", c.creds.Password)
	form.Set("x_type", tranType)
	form.Set("x_currency_code", req.Amount.Currency)
	return form
}

func (c *Client) post(ctx context.Context, tranType string, form url.Values) (*domain.TransactionResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Info("sending AIM request",
		zap.String("x_type", tranType),
		zap.String("x_total", form.Get("x_total")),
		zap.String("x_transaction_id", form.Get("x_transaction_id")),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("AIM request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
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

	result, err := parseResponse(body)
	if err != nil {
		c.logger.Error("failed to parse AIM response", zap.Error(err))
		return nil, err
	}

	c.logger.Info("received AIM response",
		zap.Int("x_response_code", result.ResponseCode),
		zap.String("x_trans_id", result.TransactionID),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// parseResponse reads the provider's url-encoded name/value reply. Missing
// required fields fail closed as a protocol error.
func parseResponse(body []byte) (*domain.TransactionResult, error) {
	params, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil || len(params) == 0 {
		return nil, domain.NewPaymentError(domain.ErrProtocol,
			"gateway response is not name/value encoded", "PROTOCOL_ERROR")
	}

	codeStr := params.Get("x_response_code")
	if codeStr == "" {
		return nil, domain.NewPaymentError(domain.ErrProtocol,
			"gateway response is missing x_response_code", "PROTOCOL_ERROR")
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return nil, domain.NewPaymentError(domain.ErrProtocol,
			fmt.Sprintf("x_response_code %q is not numeric", codeStr), "PROTOCOL_ERROR")
	}

	transID := params.Get("x_trans_id")
	if transID == "" {
		return nil, domain.NewPaymentError(domain.ErrProtocol,
			"gateway response is missing x_trans_id", "PROTOCOL_ERROR")
	}

	settlement := decimal.Zero
	if amt := params.Get("x_amount"); amt != "" {
		settlement, err = decimal.NewFromString(amt)
		if err != nil {
			return nil, domain.NewPaymentError(domain.ErrProtocol,
				fmt.Sprintf("x_amount %q is not a decimal", amt), "PROTOCOL_ERROR")
		}
	}

	return &domain.TransactionResult{
		Status:           domain.StatusOK,
		ResponseCode:     code,
		Message:          params.Get("x_response_reason_text"),
		TransactionID:    transID,
		BatchID:          params.Get("x_batch_id"),
		SettlementAmount: settlement,
		Currency:         params.Get("x_currency_code"),
	}, nil
}

func batchOrDefault(batchID string) string {
	if batchID == "" {
		return "1"
	}
	return batchID
}
