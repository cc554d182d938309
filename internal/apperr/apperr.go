// Package apperr defines the sentinel errors shared across the upload
// pipeline. Callers should use errors.Is to match these values.
package apperr

import "errors"

var (
	// ErrValidation marks missing or malformed request fields.
	ErrValidation = errors.New("validation error")

	// ErrConfiguration marks a storage backend that is not configured.
	ErrConfiguration = errors.New("storage backend not configured")

	// ErrNotFound marks a referenced job or file that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks an ownership or tenant mismatch.
	ErrForbidden = errors.New("forbidden")

	// ErrStorage marks a transient failure talking to the object store.
	ErrStorage = errors.New("storage error")

	// ErrTransferTimeout marks a client-side transfer that ran out of time.
	// It triggers the fallback transfer method.
	ErrTransferTimeout = errors.New("transfer timeout")
)
