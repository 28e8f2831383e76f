package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when no usable token is held.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrLoginCancelled marks a login the user abandoned.
	ErrLoginCancelled = errors.New("login cancelled")
)

// AuthError reports a failed interactive login.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
