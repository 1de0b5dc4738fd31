package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers network failures, timeouts and 5xx answers. Retried.
	ErrTransport = errors.New("inference: transport failure")

	// ErrPayload covers bodies that are not the expected JSON shape. Retried.
	ErrPayload = errors.New("inference: malformed payload")

	// ErrRejected is matched by ServiceError. Never retried.
	ErrRejected = errors.New("inference: request rejected by service")
)

// ServiceError is a well-formed error answer such as {"error": "Invalid name"}.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("inference: service error (status %d): %s", e.Status, e.Message)
}

// Is makes ServiceError match ErrRejected.
func (e *ServiceError) Is(target error) bool {
	return target == ErrRejected
}

func transportError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransport, fmt.Sprintf(format, args...))
}

func payloadError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPayload, fmt.Sprintf(format, args...))
}

// attemptResult labels an attempt error for metrics.
func attemptResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrPayload):
		return "payload_error"
	default:
		return "transport_error"
	}
}
