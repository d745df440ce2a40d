package errors

import (
	"errors"
	"fmt"
)

// Common error types for the payment gateway
var (
	// Validation errors
	ErrInvalidRequestData              = errors.New("invalid request data")
	ErrInvalidPaymentInstrumentDetails = errors.New("invalid payment instrument details")

	// Session errors
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session state transition")

	// Downstream errors
	ErrExternalServiceUnavailable = errors.New("external service unavailable")
	ErrIntegrationFailure         = errors.New("unexpected response from external service")

	// Signing errors
	ErrUnknownSigningKey = errors.New("unknown signing key")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
