package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrAccountLocked      = fmt.Errorf("account temporarily locked")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrSessionCreation    = fmt.Errorf("session could not be created")
	ErrSessionInvalid     = fmt.Errorf("session invalid or expired")
	ErrNotAuthenticated   = fmt.Errorf("not authenticated")
	ErrPermissionDenied   = fmt.Errorf("permission denied")
	ErrNotFound           = fmt.Errorf("not found")
	ErrConstraint         = fmt.Errorf("constraint violation")
	ErrUnavailable        = fmt.Errorf("store unavailable")
	ErrValidation         = fmt.Errorf("validation failed")
	ErrInvalidSignedURL   = fmt.Errorf("invalid or expired signed url")
	ErrInvalidPayload     = fmt.Errorf("invalid payload")
)

// Kind classifies a durable-store failure.
type Kind int

const (
	KindUnavailable Kind = iota
	KindConstraint
	KindPermission
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConstraint:
		return "constraint"
	case KindPermission:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	default:
		return "unavailable"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConstraint:
		return ErrConstraint
	case KindPermission:
		return ErrPermissionDenied
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrUnavailable
	}
}

// StoreError is returned by every operation touching the durable store.
// Op and Relation name the failing call, e.g. "insert" on "messages".
type StoreError struct {
	Op       string
	Relation string
	Kind     Kind
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Relation, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets callers test the category with the sentinel errors,
// errors.Is(err, ErrPermissionDenied) holds for every KindPermission failure.
func (e *StoreError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// ValidationError is a field-level rejection raised before any store call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
