package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gobeaver/ingestkit"
)

// upload is a transfer in progress
type upload struct {
	req     ingestkit.InitRequest
	parts   map[int][]byte
	started time.Time
}

// object is an assembled file
type object struct {
	name        string
	content     []byte
	contentType string
	modTime     time.Time
}

// Adapter provides an in-memory implementation of ingestkit.Transport
// Useful for testing and for running the pipeline without a remote store
type Adapter struct {
	mu      sync.RWMutex
	uploads map[string]*upload
	objects map[string]*object
	maxSize int64 // Maximum total storage size (0 = unlimited)
	size    int64 // Current total size of assembled objects

	// Failure injection
	failMu   sync.Mutex
	failures map[int]int
	calls    map[int]int
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
}

// New creates a new in-memory transport adapter
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	return &Adapter{
		uploads:  make(map[string]*upload),
		objects:  make(map[string]*object),
		maxSize:  maxSize,
		failures: make(map[int]int),
		calls:    make(map[int]int),
	}
}

// FailChunk makes the next times calls for chunk index fail with a
// transient error.
func (a *Adapter) FailChunk(index, times int) {
	a.failMu.Lock()
	defer a.failMu.Unlock()
	a.failures[index] = times
}

// Calls returns how many times UploadChunk was called for index.
func (a *Adapter) Calls(index int) int {
	a.failMu.Lock()
	defer a.failMu.Unlock()
	return a.calls[index]
}

func (a *Adapter) injectFailure(index int) error {
	a.failMu.Lock()
	defer a.failMu.Unlock()
	a.calls[index]++
	if a.failures[index] > 0 {
		a.failures[index]--
		return fmt.Errorf("injected failure for chunk %d", index)
	}
	return nil
}

// InitUpload implements ingestkit.Transport
func (a *Adapter) InitUpload(ctx context.Context, req ingestkit.InitRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.FileID == "" {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("init-upload", req.FileID, ingestkit.ErrNotAllowed))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// A repeated handshake keeps the parts already received
	if _, exists := a.uploads[req.FileID]; exists {
		a.uploads[req.FileID].req = req
		return nil
	}
	a.uploads[req.FileID] = &upload{
		req:     req,
		parts:   make(map[int][]byte),
		started: time.Now(),
	}
	return nil
}

// UploadChunk implements ingestkit.Transport. Re-sending an index replaces
// the stored part.
func (a *Adapter) UploadChunk(ctx context.Context, req ingestkit.ChunkRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.injectFailure(req.ChunkIndex); err != nil {
		return ingestkit.WrapUploadErr("upload-chunk", req.FileID, err)
	}
	if !ingestkit.VerifyChunk(req) {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("upload-chunk", req.FileID,
			fmt.Errorf("checksum mismatch for chunk %d", req.ChunkIndex)))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.uploads[req.FileID]
	if !ok {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("upload-chunk", req.FileID, ingestkit.ErrUnknownUpload))
	}
	if req.ChunkIndex < 0 || (u.req.TotalChunks > 0 && req.ChunkIndex >= u.req.TotalChunks) {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("upload-chunk", req.FileID,
			fmt.Errorf("chunk index %d out of range", req.ChunkIndex)))
	}

	u.parts[req.ChunkIndex] = bytes.Clone(req.Data)
	return nil
}

// FinalizeUpload implements ingestkit.Transport. Parts are joined in index
// order.
func (a *Adapter) FinalizeUpload(ctx context.Context, fileID string) (*ingestkit.FinalizeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.uploads[fileID]
	if !ok {
		return nil, ingestkit.WrapUploadErr("finalize-upload", fileID, ingestkit.ErrUnknownUpload)
	}

	indices := make([]int, 0, len(u.parts))
	for i := range u.parts {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	if u.req.TotalChunks > 0 && len(indices) != u.req.TotalChunks {
		return nil, ingestkit.WrapUploadErr("finalize-upload", fileID,
			fmt.Errorf("%w: have %d of %d chunks", ingestkit.ErrNoParts, len(indices), u.req.TotalChunks))
	}

	var buf bytes.Buffer
	for _, i := range indices {
		buf.Write(u.parts[i])
	}

	// Check size limit
	if a.maxSize > 0 && a.size+int64(buf.Len()) > a.maxSize {
		return nil, ingestkit.WrapUploadErr("finalize-upload", fileID, fmt.Errorf("storage limit of %d bytes reached", a.maxSize))
	}

	a.objects[fileID] = &object{
		name:        u.req.FileName,
		content:     buf.Bytes(),
		contentType: u.req.FileType,
		modTime:     time.Now(),
	}
	a.size += int64(buf.Len())
	delete(a.uploads, fileID)

	return &ingestkit.FinalizeResult{FileID: fileID, URL: "memory://" + fileID}, nil
}

// AbortUpload implements ingestkit.CanAbort
func (a *Adapter) AbortUpload(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.uploads[fileID]; !ok {
		return ingestkit.WrapUploadErr("abort-upload", fileID, ingestkit.ErrUnknownUpload)
	}
	delete(a.uploads, fileID)
	return nil
}

// Object returns the assembled content of a finalized file.
func (a *Adapter) Object(fileID string) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	obj, ok := a.objects[fileID]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.content), true
}

// ContentType returns the MIME type recorded for a finalized file.
func (a *Adapter) ContentType(fileID string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if obj, ok := a.objects[fileID]; ok {
		return obj.contentType
	}
	return ""
}

// Pending returns the chunk indices received for an unfinished upload.
func (a *Adapter) Pending(fileID string) []int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	u, ok := a.uploads[fileID]
	if !ok {
		return nil
	}
	indices := make([]int, 0, len(u.parts))
	for i := range u.parts {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// Size returns the current total size of stored objects
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// Clear removes all uploads and objects
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploads = make(map[string]*upload)
	a.objects = make(map[string]*object)
	a.size = 0
}

// Ensure Adapter implements interfaces
var (
	_ ingestkit.Transport = (*Adapter)(nil)
	_ ingestkit.CanAbort  = (*Adapter)(nil)
)
