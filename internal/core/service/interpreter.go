package service

import (
	"fmt"

	"github.com/commercekit/paymetric-payments/internal/core/domain"
)

// Outcome is the classification of a gateway response.
type Outcome int

const (
	// OutcomeApproved means the operation succeeded remotely.
	OutcomeApproved Outcome = iota

	// OutcomeDeclined means the remote processed the request and refused
	// it. The message is surfaced to the user; no state changes.
	OutcomeDeclined

	// OutcomeHardFailure means a transport or protocol level problem. The
	// remote result is unknown and must not be treated as a decline.
	OutcomeHardFailure
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeDeclined:
		return "declined"
	default:
		return "hard_failure"
	}
}

// Response codes the provider documents as approvals. The source systems
// disagreed on these (100 vs 104), so the set is overridable per gateway.
var defaultApprovedCodes = []int{100, 104}

// Known provider response codes and their operator-facing meanings.
var responseMessages = map[int]string{
	100: "Approved",
	104: "Approved, address verification passed",
	101: "Declined",
	102: "Declined, referral requested",
	103: "Declined, invalid card number",
	110: "Declined, insufficient funds",
	114: "Declined, address verification failed",
	2:   "Declined",
}

// ResponseMessage returns the documented meaning of a response code.
func ResponseMessage(code int) string {
	if msg, ok := responseMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown response code %d", code)
}

// Interpreter classifies gateway responses. Classification depends only on
// status first, then response code, so identical inputs always yield
// identical outcomes.
type Interpreter struct {
	approved map[int]struct{}
}

// NewInterpreter creates an interpreter. With no arguments the default
// approved set is used; pass codes to match current provider documentation.
func NewInterpreter(approvedCodes ...int) *Interpreter {
	if len(approvedCodes) == 0 {
		approvedCodes = defaultApprovedCodes
	}
	approved := make(map[int]struct{}, len(approvedCodes))
	for _, c := range approvedCodes {
		approved[c] = struct{}{}
	}
	return &Interpreter{approved: approved}
}

// Classify maps a result to an outcome. An OK status with a non-approved
// code is always a decline, never a success, even if a settlement amount is
// present.
func (i *Interpreter) Classify(res *domain.TransactionResult) Outcome {
	if res == nil || res.Status != domain.StatusOK {
		return OutcomeHardFailure
	}
	if _, ok := i.approved[res.ResponseCode]; ok {
		return OutcomeApproved
	}
	return OutcomeDeclined
}

// DeclineMessage is the user-facing explanation for a declined result.
func (i *Interpreter) DeclineMessage(res *domain.TransactionResult) string {
	if res.Message != "" {
		return res.Message
	}
	return ResponseMessage(res.ResponseCode)
}
