// Package filevalidator rejects unacceptable uploads before a transfer
// session is created.
//
// Validation works on metadata (name, declared size, declared MIME type) so
// that nothing is read or sent for a file that will be refused anyway.
// Callers that already hold the first bytes of the file can ask for a
// content sniff as well:
//
//	v := filevalidator.New(filevalidator.DocumentConstraints())
//	if err := v.ValidateMeta("brief.pdf", size, "application/pdf"); err != nil {
//	    // err is a *ValidationError; errors.Is(err, filevalidator.ErrInvalid)
//	}
//
// Accepted types may name media type groups ("document/*", "image/*") or
// wildcards ("text/*"). Executable content is always rejected.
package filevalidator
