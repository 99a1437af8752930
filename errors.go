package x402mcp

import "fmt"

// PaymentError represents a payment-lifecycle error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes, one per way a dispatch can fail
const (
	ErrCodeToolNotFound             = "tool_not_found"
	ErrCodeInvalidParameters        = "invalid_parameters"
	ErrCodePaymentRequired          = "payment_required"
	ErrCodeInvalidPayment           = "invalid_payment"
	ErrCodeUnsupportedNetwork       = "unsupported_network"
	ErrCodeFacilitatorNotConfigured = "facilitator_not_configured"
	ErrCodePaymentProcessingError   = "payment_processing_error"
	ErrCodeVerificationFailed       = "verification_failed"
	ErrCodeExecutionFailed          = "execution_failed"
	ErrCodeSettlementFailed         = "settlement_failed"
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}
