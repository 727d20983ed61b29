package ingestkit

import (
	"fmt"
	"unicode/utf8"
)

// Chunk is a byte range [Start, End) of a file.
type Chunk struct {
	Index int
	Start int64
	End   int64
}

// Size returns the chunk length in bytes.
func (c Chunk) Size() int64 {
	return c.End - c.Start
}

// TextChunk is a character-counted slice of a document. Start and End are
// byte offsets into the document.
type TextChunk struct {
	Index int
	Start int
	End   int
	Chars int
}

// TotalChunks returns ceil(size/chunkSize). It returns 0 for an empty file
// or a non-positive chunk size.
func TotalChunks(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// PlanChunks splits a file of size bytes into consecutive chunks of
// chunkSize bytes. The last chunk may be shorter.
func PlanChunks(size, chunkSize int64) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative file size %d", ErrValidation, size)
	}

	n := TotalChunks(size, chunkSize)
	chunks := make([]Chunk, 0, n)
	for i := 0; i < n; i++ {
		start := int64(i) * chunkSize
		chunks = append(chunks, Chunk{
			Index: i,
			Start: start,
			End:   min(start+chunkSize, size),
		})
	}
	return chunks, nil
}

// SplitText splits content into chunks of chunkSize characters. The last
// chunk may be shorter. A non-positive chunkSize yields one chunk.
func SplitText(content string, chunkSize int) []TextChunk {
	if content == "" {
		return nil
	}
	if chunkSize <= 0 {
		return []TextChunk{{Start: 0, End: len(content), Chars: utf8.RuneCountInString(content)}}
	}

	var chunks []TextChunk
	start, chars := 0, 0
	for i := range content {
		if chars == chunkSize {
			chunks = append(chunks, TextChunk{Index: len(chunks), Start: start, End: i, Chars: chars})
			start, chars = i, 0
		}
		chars++
	}
	return append(chunks, TextChunk{Index: len(chunks), Start: start, End: len(content), Chars: chars})
}

// Boundaries returns the end offset of every chunk except the last.
func Boundaries(chunks []TextChunk) []int {
	if len(chunks) < 2 {
		return nil
	}
	cuts := make([]int, 0, len(chunks)-1)
	for _, c := range chunks[:len(chunks)-1] {
		cuts = append(cuts, c.End)
	}
	return cuts
}
