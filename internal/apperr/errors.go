// Package apperr defines the error taxonomy shared by the reader tools and their transports.
package apperr

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrProvider       = errors.New("provider error")
	ErrTransport      = errors.New("transport error")
	ErrMalformedJSON  = errors.New("malformed json")
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrStale          = errors.New("superseded by a newer request")
	ErrNotFound       = errors.New("not found")
)

// InvalidRequestError names the offending input field.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }

// Invalid returns an InvalidRequestError for field.
func Invalid(field, reason string) error {
	return &InvalidRequestError{Field: field, Reason: reason}
}
