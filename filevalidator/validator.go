package filevalidator

import (
	"context"
	"path/filepath"
	"strings"
)

// Validator checks upload metadata before any bytes leave the client.
type Validator interface {
	// ValidateMeta validates a declared file name, size and MIME type.
	// An empty mimeType is derived from the file extension.
	ValidateMeta(name string, size int64, mimeType string) error

	// ValidateMetaWithContent additionally sniffs head (the first bytes of
	// the file) and requires the detected type to be accepted as well.
	ValidateMetaWithContent(ctx context.Context, name string, size int64, mimeType string, head []byte) error

	// GetConstraints returns the current validation constraints
	GetConstraints() Constraints
}

// FileValidator implements the Validator interface
type FileValidator struct {
	constraints Constraints
}

// New creates a new file validator with the given constraints
func New(constraints Constraints) *FileValidator {
	return &FileValidator{
		constraints: constraints,
	}
}

// NewDefault creates a new file validator with sensible default constraints
func NewDefault() *FileValidator {
	return New(DefaultConstraints())
}

// GetConstraints returns the current validation constraints
func (v *FileValidator) GetConstraints() Constraints {
	return v.constraints
}

// ValidateMeta validates name, size and declared MIME type.
func (v *FileValidator) ValidateMeta(name string, size int64, mimeType string) error {
	if err := v.validateFileName(name); err != nil {
		return err
	}

	if size < 0 {
		return reject(name, ErrorTypeSize, "declared size %d is negative", size)
	}
	if v.constraints.MaxFileSize > 0 && size > v.constraints.MaxFileSize {
		return reject(name, ErrorTypeSize, "%d bytes exceeds the %d-byte intake limit", size, v.constraints.MaxFileSize)
	}
	if v.constraints.MinFileSize > 0 && size < v.constraints.MinFileSize {
		return reject(name, ErrorTypeSize, "%d bytes is below the %d-byte minimum; empty documents are not filed", size, v.constraints.MinFileSize)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if mimeType == "" {
		mimeType = MIMETypeForExtension(ext)
	}
	mimeType = NormalizeMIME(mimeType)

	if IsExecutableMIME(mimeType) {
		return reject(name, ErrorTypeMIME, "%s is executable and never accepted as a document", mimeType)
	}

	if len(v.constraints.AcceptedTypes) == 0 {
		return nil
	}

	if mimeType == "" {
		return reject(name, ErrorTypeMIME, "no content type declared and none implied by the extension")
	}

	if !MatchesAccepted(mimeType, v.constraints.AcceptedTypes) {
		return reject(name, ErrorTypeMIME, "%s is not an accepted document type; accepted: %v",
			mimeType, ExpandAcceptedTypes(v.constraints.AcceptedTypes))
	}

	if v.constraints.StrictMIMETypeValidation && ext != "" {
		expected := MIMETypeForExtension(ext)
		if expected != "" && expected != mimeType {
			return reject(name, ErrorTypeMIME, "declared %s but the %s extension implies %s", mimeType, ext, expected)
		}
	}

	return nil
}

// ValidateMetaWithContent runs ValidateMeta and then checks the sniffed type.
func (v *FileValidator) ValidateMetaWithContent(ctx context.Context, name string, size int64, mimeType string, head []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := v.ValidateMeta(name, size, mimeType); err != nil {
		return err
	}
	if len(head) == 0 {
		return nil
	}

	detected := DetectMIMEFromBytes(head)
	if IsExecutableMIME(detected) {
		return reject(name, ErrorTypeMIME, "content sniffs as executable %s", detected)
	}
	if len(v.constraints.AcceptedTypes) == 0 {
		return nil
	}
	// http.DetectContentType reports unknown binaries as octet-stream and
	// most text formats as text/plain; neither says anything about the
	// declared type, so only a confident, rejected detection fails.
	if detected == "application/octet-stream" || detected == "text/plain" {
		return nil
	}
	if !MatchesAccepted(detected, v.constraints.AcceptedTypes) {
		return reject(name, ErrorTypeMIME, "content sniffs as %s, which is not an accepted document type", detected)
	}
	return nil
}

// validateFileName validates a filename against the validator's constraints
func (v *FileValidator) validateFileName(filename string) error {
	if len(filename) == 0 {
		return NewValidationError(ErrorTypeFileName, "document has no file name")
	}

	if v.constraints.MaxNameLength > 0 && len(filename) > v.constraints.MaxNameLength {
		return reject(filename, ErrorTypeFileName, "name is longer than %d bytes", v.constraints.MaxNameLength)
	}

	for _, char := range v.constraints.DangerousChars {
		if strings.Contains(filename, char) {
			return reject(filename, ErrorTypeFileName, "name contains %q, which is unsafe in a storage key", char)
		}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	for _, blockedExt := range v.constraints.BlockedExts {
		if strings.EqualFold(ext, blockedExt) {
			return reject(filename, ErrorTypeExtension, "%s files are blocked from intake", ext)
		}
	}

	return nil
}
