package application

import "fmt"

// ValidationError reports a malformed request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AuthError reports a missing or wrong API token.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// StateError reports that the connection is not in a state that permits the operation.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return e.Message }

// NotFoundError reports that the destination phone is not on the network.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// DeliveryError wraps a failure reported by the messaging client while sending.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("send failed: %v", e.Err) }

func (e *DeliveryError) Unwrap() error { return e.Err }
