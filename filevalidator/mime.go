package filevalidator

import (
	"mime"
	"path/filepath"
	"strings"
)

// MediaTypeGroup defines a categorization of MIME types
type MediaTypeGroup string

const (
	AllowAllImages    MediaTypeGroup = "image/*"
	AllowAllDocuments MediaTypeGroup = "document/*"
	AllowAllText      MediaTypeGroup = "text/*"
	AllowAll          MediaTypeGroup = "*/*"
)

// Common MIME types mapping for each group
var mediaTypeGroups = map[MediaTypeGroup][]string{
	AllowAllImages: {
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/tiff",
		"image/bmp",
		"image/heic",
	},
	AllowAllDocuments: {
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"application/vnd.oasis.opendocument.text",
		"text/plain",
		"text/csv",
		"text/rtf",
		"application/rtf",
	},
	AllowAllText: {
		"text/plain",
		"text/html",
		"text/csv",
		"text/xml",
		"text/markdown",
	},
}

// Common extension to MIME type mapping
var extensionToMimeType = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".bmp":  "image/bmp",
	".heic": "image/heic",

	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".rtf":  "text/rtf",
	".eml":  "message/rfc822",

	".html":     "text/html",
	".htm":      "text/html",
	".xml":      "text/xml",
	".md":       "text/markdown",
	".markdown": "text/markdown",
}

// MIMETypeForExtension returns the MIME type for a given file extension.
// Unknown extensions fall back to the mime package's table, then to
// the empty string.
func MIMETypeForExtension(ext string) string {
	ext = strings.ToLower(ext)
	if t, ok := extensionToMimeType[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return NormalizeMIME(t)
	}
	return ""
}

// MIMETypeForName guesses a MIME type from a filename's extension.
func MIMETypeForName(name string) string {
	return MIMETypeForExtension(filepath.Ext(name))
}

// NormalizeMIME lowercases a MIME type and strips parameters such as charset.
func NormalizeMIME(t string) string {
	if idx := strings.Index(t, ";"); idx >= 0 {
		t = t[:idx]
	}
	return strings.ToLower(strings.TrimSpace(t))
}

// ExpandAcceptedTypes takes a slice of accepted types (which can include MediaTypeGroups)
// and returns a slice with all specific MIME types
func ExpandAcceptedTypes(acceptedTypes []string) []string {
	expanded := make([]string, 0, len(acceptedTypes))

	for _, acceptType := range acceptedTypes {
		if groupTypes, exists := mediaTypeGroups[MediaTypeGroup(acceptType)]; exists {
			expanded = append(expanded, groupTypes...)
		} else {
			expanded = append(expanded, NormalizeMIME(acceptType))
		}
	}

	return expanded
}

// MatchesAccepted reports whether mimeType is covered by acceptedTypes.
func MatchesAccepted(mimeType string, acceptedTypes []string) bool {
	mimeType = NormalizeMIME(mimeType)
	for _, acceptedType := range ExpandAcceptedTypes(acceptedTypes) {
		if acceptedType == mimeType || acceptedType == string(AllowAll) {
			return true
		}

		// Handle wildcards like "image/*"
		if strings.HasSuffix(acceptedType, "/*") {
			prefix := strings.TrimSuffix(acceptedType, "/*")
			if strings.HasPrefix(mimeType, prefix+"/") {
				return true
			}
		}
	}
	return false
}
