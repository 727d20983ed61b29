package ingestkit

import (
	"strings"

	"github.com/gobeaver/ingestkit/filevalidator"
)

const (
	MIMETypeTextHTML  = "text/html"
	MIMETypeXHTML     = "application/xhtml+xml"
	MIMETypeTextPlain = "text/plain"
	MIMETypeOctet     = "application/octet-stream"
)

// GuessContentType determines the content type of a file from its name and
// the first bytes of its data. The extension wins; sniffing is the fallback.
func GuessContentType(name string, head []byte) string {
	if t := filevalidator.MIMETypeForName(name); t != "" {
		return t
	}
	if len(head) > 0 {
		return filevalidator.DetectMIMEFromBytes(head)
	}
	return MIMETypeOctet
}

// IsMarkup reports whether contentType is a format the Sanitizer handles.
func IsMarkup(contentType string) bool {
	switch filevalidator.NormalizeMIME(contentType) {
	case MIMETypeTextHTML, MIMETypeXHTML:
		return true
	}
	return false
}

// IsTextFile reports whether contentType holds human-readable text.
func IsTextFile(contentType string) bool {
	t := filevalidator.NormalizeMIME(contentType)
	return strings.HasPrefix(t, "text/") ||
		t == MIMETypeXHTML ||
		t == "application/json" ||
		t == "application/xml"
}
