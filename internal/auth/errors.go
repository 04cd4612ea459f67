package auth

import "errors"

var (
	// ErrNotFound is returned when a user or token does not exist.
	ErrNotFound = errors.New("auth: not found")
	// ErrUnauthenticated is returned for a missing or invalid credential.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden is returned when the credential is valid but the scope
	// set or ownership is insufficient.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrInvalidScope is returned when a strict issuance requests scopes the
	// grantor may not delegate.
	ErrInvalidScope = errors.New("auth: invalid scope")
	// ErrConflict surfaces uniqueness or foreign-key violations from the
	// persistence boundary.
	ErrConflict = errors.New("auth: constraint violation")
	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("auth: invalid input")
)
