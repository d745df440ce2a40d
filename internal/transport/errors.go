package transport

import (
	"fmt"
)

// ServiceError is a failed downstream call. errors.Is matches it against the sentinel that
// classifies the failure: ErrExternalServiceUnavailable for transport errors and 5xx, the
// client's not-found sentinel for 404, ErrIntegrationFailure for anything else.
type ServiceError struct {
	Service    string
	Action     string
	StatusCode int
	Body       string
	Err        error

	kind error
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Service, e.Action)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" returned %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *ServiceError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
