// Package common defines shared constants and sentinel errors used across
// the server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")

	// Storage errors.
	ErrStorageNotConfigured = errors.New("object storage is not configured")
	ErrBucketMismatch       = errors.New("bucket does not belong to caller")

	// Credential service errors.
	ErrEncryptionKeyMissing = errors.New("storage encryption key is not configured")
)
