// Package validation checks dataset names and paths before they are sent
// to the server.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is wrapped by every error returned from this package.
var ErrInvalidName = errors.New("invalid name")

// ValidateName validates a single file or folder name (not a path).
//
// Returns an error if the name:
//   - Is empty or only whitespace
//   - Contains path separators (/ or \)
//   - Is "." or ".."
//   - Contains null bytes
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: name contains null byte: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: name cannot contain path separators: %s", ErrInvalidName, name)
	}
	// "foo..bar.csv" is fine; only the literal dot entries are rejected.
	if name == "." || name == ".." {
		return fmt.Errorf("%w: name cannot be %q", ErrInvalidName, name)
	}
	return nil
}

// ValidateFolderPath validates a slash-separated folder path. The empty
// path and "/" name the root and are valid.
func ValidateFolderPath(path string) error {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	for _, segment := range strings.Split(path, "/") {
		if err := ValidateName(segment); err != nil {
			return fmt.Errorf("folder %q: %w", path, err)
		}
	}
	return nil
}
