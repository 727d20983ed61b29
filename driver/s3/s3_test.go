package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/ingestkit"
)

// fakeMultipart keeps multipart uploads in memory.
type fakeMultipart struct {
	mu        sync.Mutex
	created   []*s3.CreateMultipartUploadInput
	parts     map[string]map[int32][]byte
	completed map[string][]types.CompletedPart
	objects   map[string][]byte
	aborted   []string
	partErrs  int
	minPart   int
}

func newFakeMultipart() *fakeMultipart {
	return &fakeMultipart{
		parts:     make(map[string]map[int32][]byte),
		completed: make(map[string][]types.CompletedPart),
		objects:   make(map[string][]byte),
	}
}

func (f *fakeMultipart) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	id := fmt.Sprintf("upload-%d", len(f.created))
	f.parts[id] = make(map[int32][]byte)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeMultipart) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.partErrs > 0 {
		f.partErrs--
		return nil, errors.New("503 slow down")
	}
	parts, ok := f.parts[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	n := aws.ToInt32(in.PartNumber)
	parts[n] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", n))}, nil
}

func (f *fakeMultipart) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.UploadId)
	parts, ok := f.parts[id]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	var buf bytes.Buffer
	for i, p := range in.MultipartUpload.Parts {
		data := parts[aws.ToInt32(p.PartNumber)]
		if i < len(in.MultipartUpload.Parts)-1 && len(data) < f.minPart {
			return nil, errors.New("EntityTooSmall: your proposed upload is smaller than the minimum allowed size")
		}
		buf.Write(data)
	}
	f.completed[id] = in.MultipartUpload.Parts
	f.objects[aws.ToString(in.Key)] = buf.Bytes()
	delete(f.parts, id)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeMultipart) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.UploadId)
	if _, ok := f.parts[id]; !ok {
		return nil, &types.NoSuchUpload{}
	}
	delete(f.parts, id)
	f.aborted = append(f.aborted, id)
	return &s3.AbortMultipartUploadOutput{}, nil
}

func chunkReq(fileID string, idx int, data string) ingestkit.ChunkRequest {
	return ingestkit.ChunkRequest{
		FileID:     fileID,
		ChunkIndex: idx,
		Data:       []byte(data),
		Checksum:   ingestkit.ChunkChecksum([]byte(data)),
	}
}

func TestMultipartLifecycle(t *testing.T) {
	ctx := context.Background()
	fake := newFakeMultipart()
	fake.minPart = 4
	a := New(fake, "case-files", WithPrefix("matters"), WithMinPartSize(4))

	require.NoError(t, a.InitUpload(ctx, ingestkit.InitRequest{
		FileID: "f1", FileName: "motion.pdf", TotalChunks: 3, ChunkSize: 4, FileType: "application/pdf",
	}))
	require.Len(t, fake.created, 1)
	assert.Equal(t, "matters/f1/motion.pdf", aws.ToString(fake.created[0].Key))
	assert.Equal(t, "application/pdf", aws.ToString(fake.created[0].ContentType))

	// Out of order and with a duplicate
	for _, req := range []ingestkit.ChunkRequest{
		chunkReq("f1", 2, "three"),
		chunkReq("f1", 0, "one "),
		chunkReq("f1", 1, "two "),
		chunkReq("f1", 1, "two "),
	} {
		require.NoError(t, a.UploadChunk(ctx, req))
	}
	assert.Equal(t, []int{0, 1, 2}, a.UploadedChunks("f1"))

	res, err := a.FinalizeUpload(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "s3://case-files/matters/f1/motion.pdf", res.URL)
	assert.Equal(t, []byte("one two three"), fake.objects["matters/f1/motion.pdf"])

	parts := fake.completed["upload-1"]
	require.Len(t, parts, 3)
	for i, p := range parts {
		assert.Equal(t, int32(i+1), aws.ToInt32(p.PartNumber))
		assert.Equal(t, fmt.Sprintf("etag-%d", i+1), aws.ToString(p.ETag))
	}

	_, err = a.FinalizeUpload(ctx, "f1")
	assert.True(t, ingestkit.IsUnknownUpload(err))
}

func TestFinalizeRequiresAllParts(t *testing.T) {
	ctx := context.Background()
	a := New(newFakeMultipart(), "bucket")
	require.NoError(t, a.InitUpload(ctx, ingestkit.InitRequest{FileID: "f1", FileName: "a.txt", TotalChunks: 2, ChunkSize: MinPartSize}))
	require.NoError(t, a.UploadChunk(ctx, chunkReq("f1", 0, "a")))

	_, err := a.FinalizeUpload(ctx, "f1")
	assert.ErrorIs(t, err, ingestkit.ErrNoParts)
}

func TestAbortUpload(t *testing.T) {
	ctx := context.Background()
	fake := newFakeMultipart()
	a := New(fake, "bucket")
	require.NoError(t, a.InitUpload(ctx, ingestkit.InitRequest{FileID: "f1", FileName: "a.txt", TotalChunks: 2, ChunkSize: MinPartSize}))

	require.NoError(t, a.AbortUpload(ctx, "f1"))
	assert.Equal(t, []string{"upload-1"}, fake.aborted)
	assert.True(t, ingestkit.IsUnknownUpload(a.AbortUpload(ctx, "f1")))
}

func TestErrorMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("transient part error is retryable", func(t *testing.T) {
		fake := newFakeMultipart()
		fake.partErrs = 1
		a := New(fake, "bucket")
		require.NoError(t, a.InitUpload(ctx, ingestkit.InitRequest{FileID: "f1", FileName: "a.txt", TotalChunks: 1}))
		err := a.UploadChunk(ctx, chunkReq("f1", 0, "x"))
		require.Error(t, err)
		assert.True(t, ingestkit.IsRetryable(err))
	})

	t.Run("no such upload is permanent", func(t *testing.T) {
		err := mapS3Error("upload-chunk", "f1", &types.NoSuchUpload{})
		assert.True(t, ingestkit.IsUnknownUpload(err))
		assert.False(t, ingestkit.IsRetryable(err))
	})

	t.Run("part number out of range", func(t *testing.T) {
		a := New(newFakeMultipart(), "bucket")
		err := a.UploadChunk(ctx, chunkReq("f1", maxParts, "x"))
		assert.False(t, ingestkit.IsRetryable(err))
	})

	t.Run("too many chunks", func(t *testing.T) {
		a := New(newFakeMultipart(), "bucket")
		err := a.InitUpload(ctx, ingestkit.InitRequest{FileID: "f1", FileName: "a.txt", TotalChunks: maxParts + 1})
		assert.False(t, ingestkit.IsRetryable(err))
	})
}

func TestUploaderAgainstS3(t *testing.T) {
	fake := newFakeMultipart()
	fake.partErrs = 2
	fake.minPart = 8
	a := New(fake, "bucket", WithMinPartSize(8))

	cfg := ingestkit.DefaultUploadConfig()
	cfg.ChunkSize = 8
	cfg.BaseDelay = time.Millisecond
	u := ingestkit.NewUploader(a, cfg)

	data := []byte("Exhibit B: signed retainer agreement.")
	s, err := u.NewSession(context.Background(), ingestkit.FileMeta{
		Name: "retainer.txt",
		Size: int64(len(data)),
	}, bytes.NewReader(data))
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data, fake.objects[res.FileID+"/retainer.txt"])

	// Discard after completion has nothing left to abort
	assert.Error(t, s.Discard(context.Background()))
}

func TestInitRejectsPartsBelowMinimum(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		req     ingestkit.InitRequest
		wantErr bool
	}{
		{"declared chunk size too small", ingestkit.InitRequest{TotalChunks: 3, ChunkSize: 1 << 20}, true},
		{"derived chunk size too small", ingestkit.InitRequest{TotalChunks: 2, FileSize: 3 << 20}, true},
		{"no sizes for several chunks", ingestkit.InitRequest{TotalChunks: 2}, true},
		{"minimum parts", ingestkit.InitRequest{TotalChunks: 2, ChunkSize: MinPartSize}, false},
		{"single small chunk", ingestkit.InitRequest{TotalChunks: 1, ChunkSize: 1 << 20, FileSize: 10}, false},
		{"empty file", ingestkit.InitRequest{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeMultipart()
			a := New(fake, "bucket")
			req := tt.req
			req.FileID, req.FileName = "f1", "exhibit.pdf"

			err := a.InitUpload(ctx, req)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Len(t, fake.created, 1)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ingestkit.ErrInvalidChunkSize)
			assert.False(t, ingestkit.IsRetryable(err))
			assert.Empty(t, fake.created)
		})
	}
}

func TestUploaderSmallChunksFailBeforeSending(t *testing.T) {
	fake := newFakeMultipart()
	cfg := ingestkit.DefaultUploadConfig()
	cfg.ChunkSize = 1 << 20
	u := ingestkit.NewUploader(New(fake, "bucket"), cfg)

	data := bytes.Repeat([]byte("deposition transcript "), 100000)
	s, err := u.NewSession(context.Background(), ingestkit.FileMeta{
		Name: "transcript.txt",
		Size: int64(len(data)),
	}, bytes.NewReader(data))
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ingestkit.ErrInvalidChunkSize)
	assert.Equal(t, ingestkit.StateFailed, s.State())
	assert.Empty(t, fake.created)
}

func TestEmptyFileCompletesWithOnePart(t *testing.T) {
	ctx := context.Background()
	fake := newFakeMultipart()
	a := New(fake, "bucket")

	require.NoError(t, a.InitUpload(ctx, ingestkit.InitRequest{FileID: "f1", FileName: "blank.txt"}))
	res, err := a.FinalizeUpload(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/f1/blank.txt", res.URL)

	parts := fake.completed["upload-1"]
	require.Len(t, parts, 1)
	assert.Equal(t, int32(1), aws.ToInt32(parts[0].PartNumber))
	assert.Empty(t, fake.objects["f1/blank.txt"])
}
