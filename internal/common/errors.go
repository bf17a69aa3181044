// Package common defines sentinel errors and typed errors shared by the
// vault, the attachment pipelines and the save orchestrator. Match sentinels
// with errors.Is and typed errors with errors.As.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Attachment store errors.
	ErrInvalidName         = errors.New("invalid attachment name")
	ErrIndexOutOfRange     = errors.New("attachment index out of range")
	ErrReplaceNotConfirmed = errors.New("replacing the existing attachment was not confirmed")
	ErrReadOnlyEntry       = errors.New("entry is read-only")

	// Save orchestration errors.
	ErrConcurrentSaveRejected = errors.New("another save is already in progress for this database")

	// Vault access errors.
	ErrUnauthorized   = errors.New("unauthorized")
	ErrVaultLocked    = errors.New("vault is locked")
	ErrNotInitialized = errors.New("vault is not initialized")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
)

// AcquisitionError reports that the bytes of an external file could not be read.
type AcquisitionError struct {
	Locator string
	Err     error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("cannot read %q: %v", e.Locator, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// CompressionError reports a failure to compress or decompress an attachment payload.
type CompressionError struct {
	Err error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("attachment payload is damaged: %v", e.Err)
}

func (e *CompressionError) Unwrap() error { return e.Err }

// ExportError is returned when an attachment could not be materialized for
// presentation. Err carries the underlying cause.
type ExportError struct {
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export failed: %v", e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// PersistenceError describes a failed database save. Message is short and
// user-facing; Reason, when set, holds the detailed cause.
type PersistenceError struct {
	Message string
	Reason  error
}

func (e *PersistenceError) Error() string {
	if e.Reason == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Reason)
}

func (e *PersistenceError) Unwrap() error { return e.Reason }

// NewPersistenceError wraps err unless it already is a *PersistenceError.
func NewPersistenceError(message string, err error) *PersistenceError {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe
	}
	return &PersistenceError{Message: message, Reason: err}
}
