// Package panels builds analysis requests from user-selected options and
// runs them against the dataset server.
//
// Each panel validates its options before anything is sent, tags every
// request with a generation number and discards completions that were
// superseded by a newer request.
package panels

import (
	"errors"
	"fmt"
)

// ErrSuperseded is returned for a request that completed after a newer
// request of the same panel was issued. Its output is never applied.
var ErrSuperseded = errors.New("request superseded by a newer one")

// ValidationError rejects panel options before a request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
