package paymentsession

import (
	"fmt"

	"github.com/jrsteele09/go-payx-gateway/internal/errors"
)

// ValidationError is a caller-facing rejection. Code is one of the validation sentinels in
// internal/errors, so errors.Is(err, errors.ErrInvalidRequestData) works on it.
// DeclinedSession is set when the safety net turned a failure into a decline.
type ValidationError struct {
	Code            error
	Message         string
	DeclinedSession *QRCodeSession
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return e.Code.Error()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Code
}

// NewInvalidRequestData builds an InvalidRequestData validation error.
func NewInvalidRequestData(format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:    errors.ErrInvalidRequestData,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewInvalidPaymentInstrumentDetails builds the decline error returned by the second-screen flow.
func NewInvalidPaymentInstrumentDetails(message string, declined *QRCodeSession) *ValidationError {
	return &ValidationError{
		Code:            errors.ErrInvalidPaymentInstrumentDetails,
		Message:         message,
		DeclinedSession: declined,
	}
}
