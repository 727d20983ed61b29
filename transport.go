package ingestkit

import (
	"context"
)

// Transport is the remote side of a chunked upload. The three calls are the
// whole wire contract; implementations live under driver/.
type Transport interface {
	// InitUpload announces a file before any chunk is sent.
	InitUpload(ctx context.Context, req InitRequest) error

	// UploadChunk stores one chunk. Re-sending an index must be a no-op
	// apart from replacing the stored bytes with identical ones.
	UploadChunk(ctx context.Context, req ChunkRequest) error

	// FinalizeUpload assembles the chunks and returns where the file lives.
	FinalizeUpload(ctx context.Context, fileID string) (*FinalizeResult, error)
}

// CanAbort is implemented by transports that can discard a partial upload.
type CanAbort interface {
	AbortUpload(ctx context.Context, fileID string) error
}

// InitRequest is the payload of the init-upload handshake.
type InitRequest struct {
	FileID      string
	FileName    string
	FileSize    int64
	TotalChunks int
	// ChunkSize is the size of every chunk but the last.
	ChunkSize   int64
	FileType    string
}

// ChunkRequest carries one chunk.
type ChunkRequest struct {
	FileID      string
	ChunkIndex  int
	TotalChunks int
	Data        []byte
	// Checksum is the hex xxhash64 of Data.
	Checksum string
}

// FinalizeResult is returned by a successful finalize-upload call.
type FinalizeResult struct {
	FileID string
	URL    string
}
