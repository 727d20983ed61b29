package ingestkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var errFlaky = errors.New("connection reset by peer")

func init() {
	// Register test drivers
	RegisterTransport("fake", func(cfg *Config) (Transport, error) {
		return newFakeTransport(), nil
	})
}

// fakeTransport records every call and can be scripted to fail.
type fakeTransport struct {
	mu sync.Mutex

	inits     []InitRequest
	attempts  []int // chunk index of every UploadChunk call
	acked     []int // chunk index of every successful call
	chunks    map[string]map[int][]byte
	finalized []string
	aborted   []string

	failures    map[int]int // remaining transient failures per index
	permanent   map[int]bool
	initErr     error
	finalizeErr error
	onChunk     func(idx int)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		chunks:    make(map[string]map[int][]byte),
		failures:  make(map[int]int),
		permanent: make(map[int]bool),
	}
}

func (f *fakeTransport) failChunk(idx, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[idx] = times
}

func (f *fakeTransport) InitUpload(_ context.Context, req InitRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits = append(f.inits, req)
	if f.initErr != nil {
		return f.initErr
	}
	f.chunks[req.FileID] = make(map[int][]byte)
	return nil
}

func (f *fakeTransport) UploadChunk(_ context.Context, req ChunkRequest) error {
	f.mu.Lock()
	hook := f.onChunk
	f.attempts = append(f.attempts, req.ChunkIndex)
	f.mu.Unlock()

	if hook != nil {
		hook(req.ChunkIndex)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.permanent[req.ChunkIndex] {
		return Permanent(fmt.Errorf("chunk %d rejected", req.ChunkIndex))
	}
	if f.failures[req.ChunkIndex] > 0 {
		f.failures[req.ChunkIndex]--
		return errFlaky
	}
	if !VerifyChunk(req) {
		return Permanent(errors.New("checksum mismatch"))
	}
	parts, ok := f.chunks[req.FileID]
	if !ok {
		parts = make(map[int][]byte)
		f.chunks[req.FileID] = parts
	}
	parts[req.ChunkIndex] = append([]byte(nil), req.Data...)
	f.acked = append(f.acked, req.ChunkIndex)
	return nil
}

func (f *fakeTransport) FinalizeUpload(_ context.Context, fileID string) (*FinalizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	f.finalized = append(f.finalized, fileID)
	return &FinalizeResult{FileID: fileID, URL: "fake://" + fileID}, nil
}

func (f *fakeTransport) AbortUpload(_ context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks, fileID)
	f.aborted = append(f.aborted, fileID)
	return nil
}

// assembled joins the stored chunks of fileID in index order.
func (f *fakeTransport) assembled(fileID string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := f.chunks[fileID]
	idx := make([]int, 0, len(parts))
	for i := range parts {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	var buf bytes.Buffer
	for _, i := range idx {
		buf.Write(parts[i])
	}
	return buf.Bytes()
}

func (f *fakeTransport) snapshot() (attempts, acked []int, inits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.attempts...), append([]int(nil), f.acked...), len(f.inits)
}

var (
	_ Transport = (*fakeTransport)(nil)
	_ CanAbort  = (*fakeTransport)(nil)
)
