package filevalidator

import (
	"bytes"
	"net/http"
)

// sniffLen is the number of leading bytes inspected by DetectMIMEFromBytes.
const sniffLen = 512

type magicSignature struct {
	mime   string
	offset int
	magic  []byte
}

// Ordered by specificity (most specific first)
var magicSignatures = []magicSignature{
	{mime: "application/pdf", magic: []byte("%PDF-")},
	{mime: "text/rtf", magic: []byte("{\\rtf")},
	{mime: "application/msword", magic: []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}}, // OLE2 compound file
	{mime: "application/zip", magic: []byte{0x50, 0x4B, 0x03, 0x04}},

	{mime: "image/jpeg", magic: []byte{0xFF, 0xD8, 0xFF}},
	{mime: "image/png", magic: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{mime: "image/gif", magic: []byte("GIF87a")},
	{mime: "image/gif", magic: []byte("GIF89a")},
	{mime: "image/webp", offset: 8, magic: []byte("WEBP")},
	{mime: "image/tiff", magic: []byte{0x49, 0x49, 0x2A, 0x00}},
	{mime: "image/tiff", magic: []byte{0x4D, 0x4D, 0x00, 0x2A}},

	// Executables are detected so they can be rejected even when renamed
	{mime: "application/x-msdownload", magic: []byte("MZ")},
	{mime: "application/x-executable", magic: []byte{0x7F, 'E', 'L', 'F'}},
	{mime: "application/x-mach-binary", magic: []byte{0xCF, 0xFA, 0xED, 0xFE}},
}

// DetectMIMEFromBytes detects a MIME type from the head of a file.
// Falls back to http.DetectContentType if no signature matches.
func DetectMIMEFromBytes(data []byte) string {
	if len(data) == 0 {
		return "application/octet-stream"
	}
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}

	for _, sig := range magicSignatures {
		if sig.offset+len(sig.magic) > len(data) {
			continue
		}
		if bytes.Equal(data[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
			return refineDetection(data, sig.mime)
		}
	}

	return NormalizeMIME(http.DetectContentType(data))
}

// refineDetection distinguishes OOXML documents from plain zip archives.
// This is a heuristic over the first local file header only.
func refineDetection(data []byte, initial string) string {
	if initial != "application/zip" {
		return initial
	}
	switch {
	case bytes.Contains(data, []byte("word/")), bytes.Contains(data, []byte("[Content_Types]")):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case bytes.Contains(data, []byte("xl/")):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case bytes.Contains(data, []byte("ppt/")):
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	}
	return initial
}

// IsExecutableMIME returns true if the MIME type indicates an executable
func IsExecutableMIME(mime string) bool {
	switch mime {
	case "application/x-msdownload", "application/x-msdos-program",
		"application/x-executable", "application/x-mach-binary",
		"application/x-sharedlib", "application/x-dosexec":
		return true
	}
	return false
}
