// Package errs defines error kinds shared across layers.
package errs

import "errors"

var (
	// ErrNotFound is returned when the addressed user does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input data is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized is returned when an API caller has no valid token
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when an API caller may not update users
	ErrForbidden = errors.New("forbidden")

	// ErrUpstream is returned when the directory service rejected or failed a call
	ErrUpstream = errors.New("directory service error")
)
