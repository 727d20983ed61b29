package ingestkit_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gobeaver/ingestkit"
	"github.com/gobeaver/ingestkit/driver/memory"
)

func brief(size int) []byte {
	data := bytes.Repeat([]byte("x"), size)
	copy(data, "%PDF-1.7\n")
	return data
}

func ExampleUploader() {
	ctx := context.Background()
	store := memory.New()

	cfg := ingestkit.DefaultUploadConfig()
	cfg.ChunkSize = 1024
	u := ingestkit.NewUploader(store, cfg)

	data := brief(3000)
	s, err := u.NewSession(ctx, ingestkit.FileMeta{
		Name:     "brief.pdf",
		Size:     int64(len(data)),
		MimeType: "application/pdf",
	}, bytes.NewReader(data), ingestkit.WithFileID("matter-42"))
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	res, err := s.Run(ctx)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	stored, _ := store.Object(res.FileID)
	fmt.Println(s.TotalChunks(), s.State())
	fmt.Println(res.URL, len(stored))
	// Output:
	// 3 completed
	// memory://matter-42 3000
}

func ExampleUploader_retry() {
	ctx := context.Background()
	store := memory.New()
	store.FailChunk(1, 2) // two transient failures, then success

	cfg := ingestkit.DefaultUploadConfig()
	cfg.ChunkSize = 1024
	cfg.BaseDelay = time.Millisecond
	u := ingestkit.NewUploader(store, cfg)

	data := brief(2048)
	s, _ := u.NewSession(ctx, ingestkit.FileMeta{
		Name:     "exhibit.pdf",
		Size:     int64(len(data)),
		MimeType: "application/pdf",
	}, bytes.NewReader(data))

	if _, err := s.Run(ctx); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("attempts for chunk 1:", store.Calls(1))
	// Output:
	// attempts for chunk 1: 3
}

func ExampleSanitizer() {
	s := ingestkit.NewSanitizer()

	res, err := s.Sanitize(context.Background(), ingestkit.Request{
		Content: "<p>Hello</p><script>alert(1)</script><p>World</p>",
		Enabled: true,
	})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Println(res.SanitizedContent)
	fmt.Println(res.RemovedElements, res.State)
	// Output:
	// <p>Hello</p><p>World</p>
	// [script] completed
}

func ExampleSanitizer_Preview() {
	s := ingestkit.NewSanitizer()

	res, _ := s.Preview(context.Background(), `<div class="letter"><h1>Notice</h1><p>Body</p></div>`)
	fmt.Println(res.SanitizedContent)
	// Output:
	// Notice<p>Body</p>
}

func ExampleWithSanitizeProgress() {
	var updates []string
	s := ingestkit.NewSanitizer(ingestkit.WithSanitizeProgress(func(p ingestkit.SanitizeProgress) {
		updates = append(updates, fmt.Sprintf("%.0f%%", p.Percentage))
	}))

	content := strings.Repeat("<p>paragraph</p>", 4)
	_, _ = s.Sanitize(context.Background(), ingestkit.Request{
		Content:   content,
		ChunkSize: len(content) / 2,
		Enabled:   true,
	})
	fmt.Println(strings.Join(updates, " "))
	// Output:
	// 50% 100% 100%
}
