package filevalidator

import (
	"errors"
	"fmt"
)

// ErrInvalid is matched by every *ValidationError through errors.Is.
var ErrInvalid = errors.New("document rejected")

// ValidationErrorType names the intake rule a document broke.
type ValidationErrorType string

const (
	// ErrorTypeSize: empty, negative or over the size limit.
	ErrorTypeSize ValidationErrorType = "size"
	// ErrorTypeMIME: the declared or sniffed content type is not an accepted
	// document type, or is executable.
	ErrorTypeMIME ValidationErrorType = "content-type"
	// ErrorTypeFileName: missing, too long or unsafe as a storage key.
	ErrorTypeFileName ValidationErrorType = "name"
	// ErrorTypeExtension: the extension is on the blocked list.
	ErrorTypeExtension ValidationErrorType = "extension"
)

// ValidationError refuses a document before its upload session exists, so
// no chunk of it is read or sent. It is never retryable.
type ValidationError struct {
	Type ValidationErrorType

	// Document is the file name as submitted. Empty when the name itself was
	// missing.
	Document string

	Message string
}

func (e *ValidationError) Error() string {
	if e.Document == "" {
		return fmt.Sprintf("document rejected (%s): %s", e.Type, e.Message)
	}
	return fmt.Sprintf("document %q rejected (%s): %s", e.Document, e.Type, e.Message)
}

// Is matches ErrInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// NewValidationError creates a ValidationError that names no document.
func NewValidationError(errType ValidationErrorType, message string) *ValidationError {
	return &ValidationError{
		Type:    errType,
		Message: message,
	}
}

func reject(document string, errType ValidationErrorType, format string, args ...any) *ValidationError {
	return &ValidationError{
		Type:     errType,
		Document: document,
		Message:  fmt.Sprintf(format, args...),
	}
}

// AsValidationError returns the rejection in err's chain, if any.
func AsValidationError(err error) (*ValidationError, bool) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr, true
	}
	return nil, false
}

// IsErrorOfType reports whether err rejects a document for errType.
func IsErrorOfType(err error, errType ValidationErrorType) bool {
	ve, ok := AsValidationError(err)
	return ok && ve.Type == errType
}

// GetErrorType returns the broken rule, or "" when err is not a rejection.
func GetErrorType(err error) ValidationErrorType {
	if ve, ok := AsValidationError(err); ok {
		return ve.Type
	}
	return ""
}
