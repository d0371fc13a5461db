package ess

import (
	"errors"
	"fmt"
)

// AuthError is returned when every signature encoding was rejected. It is
// not retried.
type AuthError struct {
	Path  string
	Errno int
	Msg   string
	Tried int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("foxess rejected all %d signature encodings for %s (errno %d: %s)", e.Tried, e.Path, e.Errno, e.Msg)
}

// TransportError is a network failure, unexpected HTTP status, undecodable
// body or rate limit. It is retried with backoff.
type TransportError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("foxess transport error for %s (status %d): %v", e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("foxess transport error for %s: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is a non-zero, non-authentication errno, typically a rejected
// parameter. It is not retried.
type APIError struct {
	Path  string
	Errno int
	Msg   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("foxess api error for %s: errno %d: %s", e.Path, e.Errno, e.Msg)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
