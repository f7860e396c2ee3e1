package errors

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MapToGRPCError converts a service error into a gRPC status. Errors that
// already carry a status are returned unchanged.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		return status.Error(codes.InvalidArgument, validationErr.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidPassword):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrSessionInvalid),
		errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrInvalidSignedURL):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, ErrAccountLocked):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, "permission denied")
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, ErrUserAlreadyExists), errors.Is(err, ErrConstraint):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrSessionCreation):
		return status.Error(codes.Unavailable, "service unavailable")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
