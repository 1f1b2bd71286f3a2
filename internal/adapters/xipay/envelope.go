package xipay

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/commercekit/paymetric-payments/internal/core/domain"
)

const serviceNS = "http://www.paymetric.com/XiPay30WS"

// Transport-level status code the provider uses for a processed request.
const statusOK = 0

// requestEnvelope is the outbound SOAP 1.1 envelope.
type requestEnvelope struct {
	XMLName xml.Name    `xml:"soap:Envelope"`
	SoapNS  string      `xml:"xmlns:soap,attr"`
	Body    requestBody `xml:"soap:Body"`
}

type requestBody struct {
	Operation interface{}
}

// operationRequest wraps one transaction under the operation element
// (Authorize, Capture, Void, Refund).
type operationRequest struct {
	XMLName     xml.Name
	NS          string          `xml:"xmlns,attr"`
	SessionID   string          `xml:"SessionID"`
	Transaction wireTransaction `xml:"Transaction"`
}

// sessionRequest opens an authenticated session.
type sessionRequest struct {
	XMLName       xml.Name `xml:"StartSession"`
	NS            string   `xml:"xmlns,attr"`
	User          string   `xml:"User"`
	Password      string   `xml:"Password"`
	InterceptGUID string   `xml:"InterceptGUID"`
	InterceptPSK  string   `xml:"InterceptPSK"`
}

// wireTransaction is the provider's transaction field set. Field names are
// fixed by the provider and must be reproduced exactly.
type wireTransaction struct {
	MerchantID         string `xml:"MerchantID"`
	Amount             string `xml:"Amount,omitempty"`
	CurrencyKey        string `xml:"CurrencyKey"`
	CardNumber         string `xml:"CardNumber,omitempty"`
	CardExpirationDate string `xml:"CardExpirationDate,omitempty"`
	CardCVV2           string `xml:"CardCVV2,omitempty"`
	CardHolderName     string `xml:"CardHolderName,omitempty"`
	BillingStreet1     string `xml:"BillingStreet1,omitempty"`
	BillingStreet2     string `xml:"BillingStreet2,omitempty"`
	BillingCity        string `xml:"BillingCity,omitempty"`
	BillingRegion      string `xml:"BillingRegion,omitempty"`
	BillingPostalCode  string `xml:"BillingPostalCode,omitempty"`
	BillingCountry     string `xml:"BillingCountry,omitempty"`
	OrderDescription   string `xml:"OrderDescription,omitempty"`
	TransactionID      string `xml:"TransactionID,omitempty"`
	BatchID            string `xml:"BatchID,omitempty"`
	SettlementAmount   string `xml:"SettlementAmount,omitempty"`
}

// responseEnvelope parses any inbound envelope; the first body element is
// captured regardless of operation name.
type responseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Response transactionResponse `xml:",any"`
	} `xml:"Body"`
}

// transactionResponse is the provider reply. Fields are kept as strings so
// an absent element is distinguishable from a zero value; conversion happens
// during validation and fails closed.
type transactionResponse struct {
	Status      string      `xml:"Status"`
	StatusCode  string      `xml:"StatusCode"`
	Message     string      `xml:"Message"`
	SessionID   string      `xml:"SessionID"`
	Transaction *wireResult `xml:"Transaction"`
}

type wireResult struct {
	TransactionID    string `xml:"TransactionID"`
	BatchID          string `xml:"BatchID"`
	ResponseCode     string `xml:"ResponseCode"`
	StatusCode       string `xml:"StatusCode"`
	Message          string `xml:"Message"`
	SettlementAmount string `xml:"SettlementAmount"`
	CurrencyKey      string `xml:"CurrencyKey"`
}

func marshalEnvelope(op interface{}) ([]byte, error) {
	env := requestEnvelope{
		SoapNS: "http://schemas.xmlsoap.org/soap/envelope/",
		Body:   requestBody{Operation: op},
	}
	body, err := xml.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// toResult validates a parsed reply and converts it into an immutable
// TransactionResult. Unknown or missing required fields fail closed as a
// protocol error rather than producing silent zero values.
func toResult(resp *transactionResponse) (*domain.TransactionResult, error) {
	if strings.TrimSpace(resp.Status) == "" {
		return nil, domain.NewPaymentError(domain.ErrProtocol,
			"gateway response is missing Status", "PROTOCOL_ERROR")
	}
	status, err := strconv.Atoi(strings.TrimSpace(resp.Status))
	if err != nil {
		return nil, domain.NewPaymentError(domain.ErrProtocol,
			fmt.Sprintf("gateway response Status %q is not numeric", resp.Status), "PROTOCOL_ERROR")
	}

	if status != statusOK {
		return &domain.TransactionResult{
			Status:  domain.StatusError,
			Message: resp.Message,
		}, nil
	}

	txn := resp.Transaction
	if txn == nil {
		return nil, domain.NewPaymentError(domain.ErrProtocol,
			"gateway response is missing the Transaction element", "PROTOCOL_ERROR")
	}
	if txn.TransactionID == "" || txn.ResponseCode == "" {
		return nil, domain.NewPaymentError(domain.ErrProtocol,
			"gateway transaction is missing TransactionID or ResponseCode", "PROTOCOL_ERROR")
	}
	code, err := strconv.Atoi(strings.TrimSpace(txn.ResponseCode))
	if err != nil {
		return nil, domain.NewPaymentError(domain.ErrProtocol,
			fmt.Sprintf("gateway ResponseCode %q is not numeric", txn.ResponseCode), "PROTOCOL_ERROR")
	}

	settlement := decimal.Zero
	if txn.SettlementAmount != "" {
		settlement, err = decimal.NewFromString(txn.SettlementAmount)
		if err != nil {
			return nil, domain.NewPaymentError(domain.ErrProtocol,
				fmt.Sprintf("gateway SettlementAmount %q is not a decimal", txn.SettlementAmount), "PROTOCOL_ERROR")
		}
	}

	message := txn.Message
	if message == "" {
		message = resp.Message
	}
	return &domain.TransactionResult{
		Status:           domain.StatusOK,
		ResponseCode:     code,
		Message:          message,
		TransactionID:    txn.TransactionID,
		BatchID:          txn.BatchID,
		SettlementAmount: settlement,
		Currency:         txn.CurrencyKey,
	}, nil
}
