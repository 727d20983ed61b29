package ingestkit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ChecksumAlgorithm names a digest supported by NewHasher.
type ChecksumAlgorithm string

const (
	ChecksumXXHash ChecksumAlgorithm = "xxhash"
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	ChecksumCRC32  ChecksumAlgorithm = "crc32"
)

// NewHasher creates a new hash.Hash for the given algorithm.
// Returns an error if the algorithm is not supported.
func NewHasher(algorithm ChecksumAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case ChecksumXXHash:
		return xxhash.New(), nil
	case ChecksumSHA256:
		return sha256.New(), nil
	case ChecksumCRC32:
		return crc32.NewIEEE(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported checksum algorithm: %s", ErrNotSupported, algorithm)
	}
}

// CalculateChecksum reads from the reader and calculates the checksum using
// the specified algorithm. Returns the hex-encoded checksum string.
func CalculateChecksum(r io.Reader, algorithm ChecksumAlgorithm) (string, error) {
	h, err := NewHasher(algorithm)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChunkChecksum returns the hex xxhash64 digest sent as ChunkRequest.Checksum.
func ChunkChecksum(data []byte) string {
	h := xxhash.New()
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChunk reports whether req.Checksum matches req.Data. An empty
// checksum is accepted.
func VerifyChunk(req ChunkRequest) bool {
	return req.Checksum == "" || req.Checksum == ChunkChecksum(req.Data)
}

// Fingerprint is the cache key of a sanitization request: a stable hash of
// the content and both rule flags.
func Fingerprint(content string, strictMode, preserveFormatting bool) string {
	h := xxhash.New()
	_, _ = h.WriteString(strconv.FormatBool(strictMode))
	_, _ = h.WriteString(",")
	_, _ = h.WriteString(strconv.FormatBool(preserveFormatting))
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(content)
	return strconv.FormatUint(h.Sum64(), 16)
}
