package authkit

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceNotReady is an exported constant or variable used by the authentication engine.
	ErrServiceNotReady = errors.New("service not ready")
	// ErrValidation is an exported constant or variable used by the authentication engine.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateIdentity is an exported constant or variable used by the authentication engine.
	ErrDuplicateIdentity = errors.New("account already exists")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is an exported constant or variable used by the authentication engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is an exported constant or variable used by the authentication engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrRefreshInvalid is an exported constant or variable used by the authentication engine.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is an exported constant or variable used by the authentication engine.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrRevocationUnavailable is an exported constant or variable used by the authentication engine.
	ErrRevocationUnavailable = errors.New("revocation backend unavailable")
	// ErrInternal is an exported constant or variable used by the authentication engine.
	ErrInternal = errors.New("internal error")
)

// ValidationError carries the field that failed static validation and a
// human-readable reason. It unwraps to [ErrValidation] so callers can branch
// on the class without inspecting fields.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
