package domain

import "fmt"

// Error types for consistent error handling across the back-office.
// The core raises these; only the handler layer maps them to HTTP.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrForbidden indicates the caller's role lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrConflict indicates the resource already exists or is in a state
// that does not allow the operation.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrServiceNotConfigured indicates the client was never granted pricing
// (no UserService row) for the requested service.
type ErrServiceNotConfigured struct {
	ClientID  int64
	ServiceID int64
}

func (e *ErrServiceNotConfigured) Error() string {
	return fmt.Sprintf("service %d not configured for client %d", e.ServiceID, e.ClientID)
}

// ErrMissingPaymentMethod indicates neither a gateway token nor a PIX key
// is configured for the payer.
type ErrMissingPaymentMethod struct {
	ClientID int64
}

func (e *ErrMissingPaymentMethod) Error() string {
	return fmt.Sprintf("no payment method configured for client %d", e.ClientID)
}

// ErrExternalService indicates a failure in an external service call
// (payment gateway, blob store).
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrPersistence wraps database failures. Its detail is logged, never shown.
type ErrPersistence struct {
	Op  string
	Err error
}

func (e *ErrPersistence) Error() string {
	return fmt.Sprintf("persistence error [%s]: %v", e.Op, e.Err)
}

func (e *ErrPersistence) Unwrap() error {
	return e.Err
}

// ErrInvalidTransition indicates a status change the state machine refuses.
type ErrInvalidTransition struct {
	Entity string
	ID     int64
	From   string
	To     string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition for %s %d: %q -> %q", e.Entity, e.ID, e.From, e.To)
}
