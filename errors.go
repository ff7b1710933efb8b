package monstrepay

import "fmt"

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	// ErrCodeInvalidInput is a user-correctable request problem: missing or
	// malformed amount, account, or reference. Detected before any network
	// call.
	ErrCodeInvalidInput = "invalid_input"
	// ErrCodeConfiguration is operator-correctable: the shop signing key is
	// missing or unusable.
	ErrCodeConfiguration = "configuration_error"
	// ErrCodeUpstreamFailure covers failed ledger RPC or aggregator calls.
	// Transient, but the builder never retries; the caller re-invokes.
	ErrCodeUpstreamFailure = "upstream_failure"
	// ErrCodeValidationFailure marks an on-ledger transaction that carries
	// the correlation tag but does not match the expected recipient, amount,
	// or mint. Terminal for that checkout.
	ErrCodeValidationFailure = "validation_failure"
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string) *PaymentError {
	return &PaymentError{Code: code, Message: message}
}

// Invalidf builds an invalid_input error.
func Invalidf(format string, args ...interface{}) *PaymentError {
	return NewPaymentError(ErrCodeInvalidInput, fmt.Sprintf(format, args...))
}

// Upstreamf builds an upstream_failure error.
func Upstreamf(format string, args ...interface{}) *PaymentError {
	return NewPaymentError(ErrCodeUpstreamFailure, fmt.Sprintf(format, args...))
}
