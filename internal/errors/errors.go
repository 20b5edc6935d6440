package errors

import (
	"errors"
	"fmt"
)

// Common error types for the OpportuCI client
var (
	// Session errors
	ErrNoSession       = errors.New("no session")
	ErrNoRefreshToken  = errors.New("no refresh token available")
	ErrSessionCorrupt  = errors.New("session data corrupt")
	ErrWrongPassphrase = errors.New("session passphrase does not match")

	// Refresh errors
	ErrRefreshTimeout   = errors.New("token refresh timed out")
	ErrLockNotAcquired  = errors.New("refresh lock not acquired")
	ErrMissingAccessKey = errors.New("refresh response has no access token")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrUnknownStore  = errors.New("unknown session store")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("unsupported operation")
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
