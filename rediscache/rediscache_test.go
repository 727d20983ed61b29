package rediscache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/ingestkit"
)

func setupTestCache(t *testing.T, opts ...Option) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c, err := New("redis://"+s.Addr(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func result(content string) *ingestkit.Result {
	return &ingestkit.Result{
		SanitizedContent: content,
		RemovedElements:  []string{"script"},
		Warnings:         []string{},
		State:            ingestkit.SanitizeCompleted,
		ProcessedChars:   len(content),
		TotalChars:       len(content),
		ChunksProcessed:  1,
		Duration:         3 * time.Millisecond,
	}
}

func TestNew(t *testing.T) {
	c, _ := setupTestCache(t)
	require.NoError(t, c.Ping(context.Background()))

	_, err := New("not a url")
	assert.Error(t, err)
}

func TestGetSetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, s := setupTestCache(t)

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	want := result("<p>ok</p>")
	c.Set(ctx, "k1", want)

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.NotSame(t, want, got)

	raw, err := s.Get(DefaultPrefix + "k1")
	require.NoError(t, err)
	assert.Contains(t, raw, `"state":"completed"`)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestFIFOEviction(t *testing.T) {
	ctx := context.Background()
	c, s := setupTestCache(t, WithCapacity(3), WithPrefix("test:"))

	for i := 0; i < 5; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), result(fmt.Sprintf("doc %d", i)))
	}
	// Overwriting does not move a key in the order
	c.Set(ctx, "k2", result("doc 2 again"))

	assert.Equal(t, 3, c.Len())
	for i, want := range []bool{false, false, true, true, true} {
		_, ok := c.Get(ctx, fmt.Sprintf("k%d", i))
		assert.Equal(t, want, ok, "k%d", i)
	}
	assert.False(t, s.Exists("test:k0"))
	assert.Equal(t, int64(2), c.Stats().Evictions)

	got, _ := c.Get(ctx, "k2")
	assert.Equal(t, "doc 2 again", got.SanitizedContent)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	c, s := setupTestCache(t)
	c.Set(ctx, "a", result("a"))
	c.Set(ctx, "b", result("b"))
	require.NoError(t, s.Set("unrelated", "kept"))

	c.Clear(ctx)
	assert.Zero(t, c.Len())
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.True(t, s.Exists("unrelated"))
}

func TestTTL(t *testing.T) {
	ctx := context.Background()
	c, s := setupTestCache(t, WithTTL(time.Minute))
	c.Set(ctx, "k", result("x"))

	s.FastForward(2 * time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestTTLRewriteKeepsOneOrderEntry(t *testing.T) {
	ctx := context.Background()
	c, s := setupTestCache(t, WithCapacity(3), WithTTL(time.Minute))

	c.Set(ctx, "k1", result("first"))
	s.FastForward(2 * time.Minute)
	c.Set(ctx, "k1", result("second"))
	c.Set(ctx, "k2", result("b"))
	c.Set(ctx, "k3", result("c"))

	order, err := s.List(c.orderKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2", "k3"}, order)
	assert.Equal(t, 3, c.Len())
	assert.Zero(t, c.Stats().Evictions)

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "second", got.SanitizedContent)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	c, s := setupTestCache(t)
	require.NoError(t, s.Set(DefaultPrefix+"bad", "{not json"))
	_, ok := c.Get(context.Background(), "bad")
	assert.False(t, ok)
}

func TestSharedBySanitizers(t *testing.T) {
	ctx := context.Background()
	_, s := setupTestCache(t)
	c1, err := New("redis://" + s.Addr())
	require.NoError(t, err)
	c2, err := New("redis://" + s.Addr())
	require.NoError(t, err)

	first := ingestkit.NewSanitizer(ingestkit.WithCache(c1))
	second := ingestkit.NewSanitizer(ingestkit.WithCache(c2))

	req := ingestkit.Request{Content: `<p onclick="x()">Dear counsel</p><script>steal()</script>`, Enabled: true}
	a, err := first.Sanitize(ctx, req)
	require.NoError(t, err)

	var cached bool
	third := ingestkit.NewSanitizer(ingestkit.WithCache(c2), ingestkit.WithSanitizeProgress(func(p ingestkit.SanitizeProgress) {
		cached = cached || p.Cached
	}))
	b, err := third.Sanitize(ctx, req)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, a.SanitizedContent, b.SanitizedContent)
	assert.Equal(t, a.RemovedElements, b.RemovedElements)

	_, err = second.Sanitize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, c2.Len())
}

func TestRegisteredWithService(t *testing.T) {
	s := miniredis.RunT(t)
	svc, err := ingestkit.New(&ingestkit.Config{
		Driver:        "memory-test",
		RedisURL:      "redis://" + s.Addr(),
		CacheCapacity: 10,
	})
	require.NoError(t, err)

	_, ok := svc.Sanitizer().Cache().(*Cache)
	assert.True(t, ok)
}

func init() {
	ingestkit.RegisterTransport("memory-test", func(*ingestkit.Config) (ingestkit.Transport, error) {
		return nopTransport{}, nil
	})
}

type nopTransport struct{}

func (nopTransport) InitUpload(context.Context, ingestkit.InitRequest) error   { return nil }
func (nopTransport) UploadChunk(context.Context, ingestkit.ChunkRequest) error { return nil }
func (nopTransport) FinalizeUpload(_ context.Context, id string) (*ingestkit.FinalizeResult, error) {
	return &ingestkit.FinalizeResult{FileID: id}, nil
}
