package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStoreError_Is_Matches_Its_Kind(t *testing.T) {
	req := require.New(t)
	err := fmt.Errorf("create project: %w",
		&StoreError{Op: "insert", Relation: "projects", Kind: KindPermission, Err: fmt.Errorf("policy rejected")})

	req.True(Is(err, ErrPermissionDenied))
	req.False(Is(err, ErrNotFound))
	req.Contains(err.Error(), "insert projects (permission_denied)")

	var storeErr *StoreError
	req.True(As(err, &storeErr))
	req.Equal("projects", storeErr.Relation)
}

func TestValidationError_Is_ErrValidation(t *testing.T) {
	req := require.New(t)
	err := NewValidationError("content", "is empty")
	req.True(Is(err, ErrValidation))
	req.Equal("content: is empty", err.Error())
}

func TestMapToGRPCError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"validation", NewValidationError("email", "is invalid"), codes.InvalidArgument},
		{"weak password", ErrInvalidPassword, codes.InvalidArgument},
		{"credentials", ErrInvalidCredentials, codes.Unauthenticated},
		{"stale session", fmt.Errorf("restore: %w", ErrSessionInvalid), codes.Unauthenticated},
		{"locked", ErrAccountLocked, codes.ResourceExhausted},
		{"permission", &StoreError{Op: "select", Relation: "messages", Kind: KindPermission, Err: ErrPermissionDenied}, codes.PermissionDenied},
		{"not found", &StoreError{Op: "get", Relation: "projects", Kind: KindNotFound, Err: fmt.Errorf("key not found")}, codes.NotFound},
		{"duplicate", fmt.Errorf("%w: %w", ErrUserAlreadyExists, ErrConstraint), codes.AlreadyExists},
		{"store down", &StoreError{Op: "insert", Relation: "messages", Kind: KindUnavailable, Err: fmt.Errorf("closed")}, codes.Unavailable},
		{"unknown", fmt.Errorf("boom"), codes.Internal},
		{"already a status", status.Error(codes.Canceled, "gone"), codes.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, status.Code(MapToGRPCError(tt.err)))
		})
	}
	require.NoError(t, MapToGRPCError(nil))
}
