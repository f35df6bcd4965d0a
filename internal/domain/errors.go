package domain

import "fmt"

// Error types for consistent error handling across the API.

// ErrUnauthenticated indicates a missing, malformed or unverifiable credential.
type ErrUnauthenticated struct {
	Message string
}

func (e *ErrUnauthenticated) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthenticated"
}

// ErrForbidden indicates the caller does not own the resource.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrModelUnavailable indicates the detection model failed to load or errored.
// Safe to retry later.
type ErrModelUnavailable struct {
	Err error
}

func (e *ErrModelUnavailable) Error() string {
	return fmt.Sprintf("detection model unavailable: %v", e.Err)
}

func (e *ErrModelUnavailable) Unwrap() error {
	return e.Err
}

// ErrImageUnreadable indicates the uploaded image could not be decoded.
type ErrImageUnreadable struct {
	Path string
	Err  error
}

func (e *ErrImageUnreadable) Error() string {
	return fmt.Sprintf("image unreadable: %s: %v", e.Path, e.Err)
}

func (e *ErrImageUnreadable) Unwrap() error {
	return e.Err
}

// ErrStorage indicates an artifact write/read failure. No record is committed
// when this surfaces from the predict flow.
type ErrStorage struct {
	Op  string
	Err error
}

func (e *ErrStorage) Error() string {
	return fmt.Sprintf("storage error [%s]: %v", e.Op, e.Err)
}

func (e *ErrStorage) Unwrap() error {
	return e.Err
}

// ErrConflict indicates a unique-constraint violation, e.g. a lost
// auto-provisioning race. Resolved internally by re-fetching.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrExternalService indicates a failure in an external service call.
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

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}
