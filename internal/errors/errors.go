package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Credential errors
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrNoRefreshToken      = errors.New("no refresh token")
	ErrPartialCredentials  = errors.New("access and refresh token must be set together")
	ErrInvalidUser         = errors.New("invalid user")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Coordination errors
	ErrRefreshFailed   = errors.New("token refresh failed")
	ErrIdentityChanged = errors.New("session identity changed")
	ErrNoIdentity      = errors.New("no session identity")

	// Transport errors
	ErrUnexpectedResponse = errors.New("unexpected response")

	// General errors
	ErrNotFound = errors.New("not found")
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
