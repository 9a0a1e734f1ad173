// Package iamerr defines the error taxonomy shared by the stores, the
// permission resolver and the provisioning engine.
package iamerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a user, group, permission, membership or grant is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on a duplicate code, name, membership or grant.
	ErrConflict = errors.New("conflict")
)

// ValidationError reports a rejected input and the field it came from.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ProvisioningError wraps any failure inside a provisioning transaction.
// The user's previously committed state is unchanged when one is returned.
type ProvisioningError struct {
	UserID string
	Email  string
	Rule   string
	Err    error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s (rule %q): %v", e.Email, e.Rule, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is or wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// AsValidation extracts a ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// AsProvisioning extracts a ProvisioningError from err.
func AsProvisioning(err error) (*ProvisioningError, bool) {
	var pe *ProvisioningError
	ok := errors.As(err, &pe)
	return pe, ok
}
