package ingestkit

import (
	"errors"
	"fmt"

	"github.com/gobeaver/ingestkit/filevalidator"
)

// Common pipeline errors
var (
	// ErrValidation matches every *filevalidator.ValidationError.
	ErrValidation = filevalidator.ErrInvalid

	ErrAborted           = errors.New("session aborted")
	ErrPaused            = errors.New("transfer paused")
	ErrBusy              = errors.New("another session is already active")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidChunkSize  = errors.New("invalid chunk size")
	ErrNotResumable      = errors.New("session cannot be resumed")
	ErrNotSupported      = errors.New("operation not supported")

	// Remote store errors
	ErrUnknownUpload = errors.New("upload not found")
	ErrNotAllowed    = errors.New("operation not allowed")
	ErrNoParts       = errors.New("no parts uploaded")
)

// UploadError records an error and the remote store operation and file id
// that caused it
type UploadError struct {
	Op     string
	FileID string
	Err    error
}

// Error implements the error interface
func (e *UploadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.FileID, e.Err)
}

// Unwrap returns the underlying error
func (e *UploadError) Unwrap() error {
	return e.Err
}

// WrapUploadErr wraps err in an *UploadError. A nil err stays nil.
func WrapUploadErr(op, fileID string, err error) error {
	if err == nil {
		return nil
	}
	return &UploadError{Op: op, FileID: fileID, Err: err}
}

// InitError records a failed init-upload handshake.
type InitError struct {
	FileID string
	Err    error
}

// Error implements the error interface
func (e *InitError) Error() string {
	return fmt.Sprintf("init upload %s: %v", e.FileID, e.Err)
}

// Unwrap returns the underlying error
func (e *InitError) Unwrap() error {
	return e.Err
}

// FinalizeError records a failed finalize-upload handshake.
type FinalizeError struct {
	FileID string
	Err    error
}

// Error implements the error interface
func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize upload %s: %v", e.FileID, e.Err)
}

// Unwrap returns the underlying error
func (e *FinalizeError) Unwrap() error {
	return e.Err
}

// ChunkTransferError reports a chunk whose retries were exhausted.
type ChunkTransferError struct {
	FileID   string
	Index    int
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *ChunkTransferError) Error() string {
	return fmt.Sprintf("upload %s: chunk %d failed after %d attempts: %v", e.FileID, e.Index, e.Attempts, e.Err)
}

// Unwrap returns the underlying error
func (e *ChunkTransferError) Unwrap() error {
	return e.Err
}

// TransitionError describes a rejected state change.
type TransitionError struct {
	From State
	To   State
}

// Error implements the error interface
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) succeed.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// permanentError marks a transport error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the uploader fails the chunk without retrying.
// Transports use it for errors such as rejected credentials.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether a transport error may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	return !errors.Is(err, ErrValidation) && !errors.Is(err, ErrAborted)
}

// IsUnknownUpload reports whether a remote store has no upload for the id.
func IsUnknownUpload(err error) bool {
	return errors.Is(err, ErrUnknownUpload)
}

// IsAborted reports whether err ends a session by cancellation.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

// IsBusy reports whether err was caused by a concurrent session.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsValidation reports whether err is a pre-transfer validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
