package user

import "errors"

var (
	// ErrIdentityRequired is returned when the command carries no identity.
	ErrIdentityRequired = errors.New("user identity is required")

	// ErrConfirmationFailed is returned when the confirmation prompt itself failed.
	ErrConfirmationFailed = errors.New("confirmation failed")
)
