// Package api provides error types for dataset server responses.
package api

import (
	"errors"
	"fmt"
	nethttp "net/http"
)

// Kind classifies API failures.
type Kind int

const (
	// KindTransport means the request never produced a response
	// (DNS, refused connection, timeout, cancelled context).
	KindTransport Kind = iota + 1
	// KindStatus means the server answered with a non-2xx status.
	KindStatus
	// KindMalformed means a 2xx response whose body had an unexpected shape.
	KindMalformed
	// KindValidation means the request was rejected locally before sending.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is returned by every Client method.
type Error struct {
	Op         string // e.g. "read file"
	Kind       Kind
	StatusCode int    // set for KindStatus
	Message    string // server-provided message, if any
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindStatus && e.Message != "":
		return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Kind == KindStatus:
		return fmt.Sprintf("%s failed: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is a short message suitable for a notification.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Kind == KindStatus {
		return nethttp.StatusText(e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String() + " error"
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	return StatusOf(err) == nethttp.StatusNotFound
}

// UserMessage extracts a notification-friendly message from any error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}
	return err.Error()
}

// NewValidationError builds a KindValidation error for op.
func NewValidationError(op, message string) *Error {
	return &Error{Op: op, Kind: KindValidation, Message: message}
}
