package filevalidator

// Size constants for easier file size configuration
const (
	KB = int64(1024)
	MB = KB * 1024
	GB = MB * 1024
)

// Constraints defines the configuration for file validation
type Constraints struct {
	// MaxFileSize is the maximum allowed file size in bytes.
	// Zero disables the check.
	MaxFileSize int64

	// MinFileSize is the minimum allowed file size in bytes.
	MinFileSize int64

	// AcceptedTypes is a list of allowed MIME types (e.g., "application/pdf").
	// Media type groups like "document/*" and wildcards like "image/*" are
	// supported. An empty list accepts every type.
	AcceptedTypes []string

	// BlockedExts is a list of blocked file extensions including the dot.
	BlockedExts []string

	// MaxNameLength is the maximum allowed length for filenames.
	// If set to 0, no length limit will be enforced.
	MaxNameLength int

	// DangerousChars is a list of characters considered dangerous in filenames
	DangerousChars []string

	// StrictMIMETypeValidation rejects files whose declared MIME type
	// disagrees with the type implied by their extension.
	StrictMIMETypeValidation bool
}

// DefaultConstraints creates a new set of constraints with sensible defaults
// for case documents.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxFileSize:    100 * MB,
		MinFileSize:    1,
		MaxNameLength:  255,
		DangerousChars: []string{"../", "\\", "\x00"},
		BlockedExts: []string{
			".exe", ".bat", ".cmd", ".sh", ".php", ".phtml", ".pl", ".cgi", ".dll",
			".com", ".jar", ".pif", ".vb", ".vbs", ".vbe", ".js", ".jse", ".msc",
			".ws", ".wsf", ".wsc", ".wsh", ".ps1", ".scf", ".lnk", ".inf", ".reg",
			".docm", ".dotm", ".xlsm", ".xltm", ".xlam", ".pptm", ".potm", ".ppam",
		},
	}
}

// DocumentConstraints accepts office documents, PDFs, rich text, HTML and
// images, which covers what gets attached to a case file.
func DocumentConstraints() Constraints {
	constraints := DefaultConstraints()
	constraints.AcceptedTypes = []string{
		string(AllowAllDocuments),
		string(AllowAllImages),
		"text/html",
		"text/markdown",
		"message/rfc822",
	}
	return constraints
}
