package local

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gobeaver/ingestkit"
)

// Adapter provides a local filesystem implementation of ingestkit.Transport.
// Chunks are kept as numbered part files in a temporary directory and
// concatenated under the root on finalize.
type Adapter struct {
	root    string
	tempDir string

	mu      sync.RWMutex
	uploads map[string]*uploadInfo
}

// uploadInfo stores metadata for an in-progress chunked upload.
type uploadInfo struct {
	path        string // Target path for the final file, relative to root
	partsDir    string // Directory storing uploaded parts
	totalChunks int
}

// Option configures an Adapter
type Option func(*Adapter)

// WithTempDir sets the directory in which part directories are created.
// Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(a *Adapter) {
		a.tempDir = dir
	}
}

// New creates a new local transport adapter
func New(root string, opts ...Option) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	// Ensure the root directory exists
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, err
	}

	a := &Adapter{
		root:    absRoot,
		uploads: make(map[string]*uploadInfo),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Root returns the absolute directory finalized files are written under.
func (a *Adapter) Root() string {
	return a.root
}

// InitUpload implements ingestkit.Transport. A repeated handshake for the
// same file id keeps the parts received so far.
func (a *Adapter) InitUpload(ctx context.Context, req ingestkit.InitRequest) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	rel, err := targetPath(req)
	if err != nil {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("init-upload", req.FileID, err))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if info, ok := a.uploads[req.FileID]; ok {
		info.totalChunks = req.TotalChunks
		return nil
	}

	// Create a temporary directory for storing parts
	partsDir, err := os.MkdirTemp(a.tempDir, fmt.Sprintf("ingestkit-upload-%s-", uuid.NewString()))
	if err != nil {
		return ingestkit.WrapUploadErr("init-upload", req.FileID, err)
	}

	a.uploads[req.FileID] = &uploadInfo{
		path:        rel,
		partsDir:    partsDir,
		totalChunks: req.TotalChunks,
	}
	return nil
}

// UploadChunk implements ingestkit.Transport. Re-sending an index
// overwrites the same part file.
func (a *Adapter) UploadChunk(ctx context.Context, req ingestkit.ChunkRequest) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if req.ChunkIndex < 0 {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("upload-chunk", req.FileID,
			fmt.Errorf("chunk index must be >= 0, got %d", req.ChunkIndex)))
	}
	if !ingestkit.VerifyChunk(req) {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("upload-chunk", req.FileID,
			fmt.Errorf("checksum mismatch for chunk %d", req.ChunkIndex)))
	}

	a.mu.RLock()
	info, ok := a.uploads[req.FileID]
	a.mu.RUnlock()

	if !ok {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("upload-chunk", req.FileID, ingestkit.ErrUnknownUpload))
	}

	// Write to a temp name first so a torn write never looks like a part
	partPath := filepath.Join(info.partsDir, strconv.Itoa(req.ChunkIndex))
	tmp := partPath + ".tmp"
	if err := os.WriteFile(tmp, req.Data, 0600); err != nil {
		return ingestkit.WrapUploadErr("upload-chunk", req.FileID, err)
	}
	if err := os.Rename(tmp, partPath); err != nil {
		return ingestkit.WrapUploadErr("upload-chunk", req.FileID, err)
	}
	return nil
}

// FinalizeUpload implements ingestkit.Transport. Parts are read in
// numerical order and written to the target file.
func (a *Adapter) FinalizeUpload(ctx context.Context, fileID string) (*ingestkit.FinalizeResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	a.mu.RLock()
	info, ok := a.uploads[fileID]
	a.mu.RUnlock()

	if !ok {
		return nil, ingestkit.WrapUploadErr("finalize-upload", fileID, ingestkit.ErrUnknownUpload)
	}

	partNumbers, err := listParts(info.partsDir)
	if err != nil {
		return nil, ingestkit.WrapUploadErr("finalize-upload", fileID, err)
	}
	if len(partNumbers) == 0 && info.totalChunks > 0 {
		return nil, ingestkit.WrapUploadErr("finalize-upload", fileID, ingestkit.ErrNoParts)
	}
	if info.totalChunks > 0 && len(partNumbers) != info.totalChunks {
		return nil, ingestkit.WrapUploadErr("finalize-upload", fileID,
			fmt.Errorf("%w: have %d of %d chunks", ingestkit.ErrNoParts, len(partNumbers), info.totalChunks))
	}

	fullPath := filepath.Join(a.root, info.path)
	if err := a.assemble(fullPath, info.partsDir, partNumbers); err != nil {
		return nil, ingestkit.WrapUploadErr("finalize-upload", fileID, err)
	}

	a.mu.Lock()
	delete(a.uploads, fileID)
	a.mu.Unlock()
	_ = os.RemoveAll(info.partsDir)

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(fullPath)}
	return &ingestkit.FinalizeResult{FileID: fileID, URL: u.String()}, nil
}

func (a *Adapter) assemble(fullPath, partsDir string, partNumbers []int) error {
	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	targetFile, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	defer targetFile.Close()

	// Concatenate all parts in order
	for _, partNum := range partNumbers {
		partFile, err := os.Open(filepath.Join(partsDir, strconv.Itoa(partNum)))
		if err != nil {
			return fmt.Errorf("failed to open part %d: %w", partNum, err)
		}

		_, err = io.Copy(targetFile, partFile)
		partFile.Close()
		if err != nil {
			return fmt.Errorf("failed to write part %d: %w", partNum, err)
		}
	}

	return targetFile.Sync()
}

// AbortUpload implements ingestkit.CanAbort and cleans up temporary files.
func (a *Adapter) AbortUpload(ctx context.Context, fileID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Get and remove upload info
	a.mu.Lock()
	info, ok := a.uploads[fileID]
	if ok {
		delete(a.uploads, fileID)
	}
	a.mu.Unlock()

	if !ok {
		return ingestkit.WrapUploadErr("abort-upload", fileID, ingestkit.ErrUnknownUpload)
	}

	// Clean up parts directory
	if err := os.RemoveAll(info.partsDir); err != nil {
		return ingestkit.WrapUploadErr("abort-upload", fileID, err)
	}

	return nil
}

// ReceivedChunks returns the indices stored for an unfinished upload.
func (a *Adapter) ReceivedChunks(fileID string) ([]int, error) {
	a.mu.RLock()
	info, ok := a.uploads[fileID]
	a.mu.RUnlock()
	if !ok {
		return nil, ingestkit.WrapUploadErr("list-chunks", fileID, ingestkit.ErrUnknownUpload)
	}
	return listParts(info.partsDir)
}

// listParts returns the part numbers in partsDir in ascending order.
func listParts(partsDir string) ([]int, error) {
	entries, err := os.ReadDir(partsDir)
	if err != nil {
		return nil, err
	}

	partNumbers := make([]int, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		num, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		partNumbers = append(partNumbers, num)
	}
	sort.Ints(partNumbers)
	return partNumbers, nil
}

// targetPath places a file under <file id>/<base name> below the root.
func targetPath(req ingestkit.InitRequest) (string, error) {
	if req.FileID == "" || strings.ContainsAny(req.FileID, `/\`) || req.FileID == "." || req.FileID == ".." {
		return "", fmt.Errorf("%w: file id %q", ingestkit.ErrNotAllowed, req.FileID)
	}
	name := filepath.Base(filepath.Clean("/" + filepath.ToSlash(req.FileName)))
	if name == "/" || name == "." || name == "" {
		return "", fmt.Errorf("%w: file name %q", ingestkit.ErrNotAllowed, req.FileName)
	}
	return filepath.Join(req.FileID, name), nil
}

// Ensure Adapter implements interfaces
var (
	_ ingestkit.Transport = (*Adapter)(nil)
	_ ingestkit.CanAbort  = (*Adapter)(nil)
)
