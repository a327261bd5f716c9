package client

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated matches every AuthError through errors.Is
var ErrUnauthenticated = errors.New("unauthenticated")

// TransportError wraps network and timeout failures
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError reports a rejected credential (401/403)
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("unauthenticated (status %d)", e.StatusCode)
}

func (e *AuthError) Is(target error) bool {
	return target == ErrUnauthenticated
}

// StatusError is a non-2xx answer. Message is the backend's error text when it sent one.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// DecodeError reports a body that could not be decoded into the expected shape
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
