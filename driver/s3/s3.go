package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gobeaver/ingestkit"
)

// maxParts is the S3 limit on parts per multipart upload.
const maxParts = 10000

// MinPartSize is the smallest part S3 accepts for every part but the last.
// Smaller parts are only rejected at CompleteMultipartUpload time with
// EntityTooSmall, so InitUpload refuses such plans up front.
const MinPartSize = ingestkit.S3MinChunkSize

// MultipartAPI is the subset of *s3.Client used by the adapter.
type MultipartAPI interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Adapter provides an S3 multipart implementation of ingestkit.Transport
type Adapter struct {
	client      MultipartAPI
	bucket      string
	prefix      string
	minPartSize int64

	mu      sync.Mutex
	uploads map[string]*multipartUpload
}

// multipartUpload tracks the S3 upload behind a file id
type multipartUpload struct {
	key         string
	uploadID    string
	totalChunks int
	etags       map[int]string // chunk index -> ETag
}

// AdapterOption is a function that configures Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the prefix for S3 objects
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		// Ensure prefix ends with a slash if it's not empty
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// WithMinPartSize overrides MinPartSize for S3-compatible stores that use a
// different floor.
func WithMinPartSize(n int64) AdapterOption {
	return func(a *Adapter) {
		a.minPartSize = n
	}
}

// New creates a new S3 transport adapter
func New(client MultipartAPI, bucket string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client:      client,
		bucket:      bucket,
		minPartSize: MinPartSize,
		uploads:     make(map[string]*multipartUpload),
	}

	// Apply options
	for _, option := range options {
		option(adapter)
	}

	return adapter
}

// objectKey places a file under <prefix><file id>/<base name>.
func (a *Adapter) objectKey(req ingestkit.InitRequest) string {
	name := path.Base(path.Clean("/" + req.FileName))
	if name == "/" || name == "." {
		name = req.FileID
	}
	return a.prefix + path.Join(req.FileID, name)
}

// InitUpload implements ingestkit.Transport by creating a multipart upload
func (a *Adapter) InitUpload(ctx context.Context, req ingestkit.InitRequest) error {
	if req.FileID == "" {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("init-upload", req.FileID, ingestkit.ErrNotAllowed))
	}
	if req.TotalChunks > maxParts {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("init-upload", req.FileID,
			fmt.Errorf("%d chunks exceed the S3 limit of %d parts", req.TotalChunks, maxParts)))
	}
	if size := partSize(req); req.TotalChunks > 1 && size < a.minPartSize {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("init-upload", req.FileID,
			fmt.Errorf("%w: %d-byte parts are below the S3 minimum of %d", ingestkit.ErrInvalidChunkSize, size, a.minPartSize)))
	}

	a.mu.Lock()
	if u, ok := a.uploads[req.FileID]; ok {
		u.totalChunks = req.TotalChunks
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	key := a.objectKey(req)
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}
	if req.FileType != "" {
		input.ContentType = aws.String(req.FileType)
	}

	resp, err := a.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return mapS3Error("init-upload", req.FileID, err)
	}

	a.mu.Lock()
	a.uploads[req.FileID] = &multipartUpload{
		key:         key,
		uploadID:    aws.ToString(resp.UploadId),
		totalChunks: req.TotalChunks,
		etags:       make(map[int]string),
	}
	a.mu.Unlock()
	return nil
}

// UploadChunk implements ingestkit.Transport. Chunk index i is sent as part
// number i+1; re-sending an index replaces the part and its ETag.
func (a *Adapter) UploadChunk(ctx context.Context, req ingestkit.ChunkRequest) error {
	// Validate partNumber is within int32 range (AWS S3 supports 1-10000 parts)
	partNumber := req.ChunkIndex + 1
	if partNumber < 1 || partNumber > maxParts {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("upload-chunk", req.FileID,
			fmt.Errorf("part number must be between 1 and %d, got %d", maxParts, partNumber)))
	}
	if !ingestkit.VerifyChunk(req) {
		return ingestkit.Permanent(ingestkit.WrapUploadErr("upload-chunk", req.FileID,
			fmt.Errorf("checksum mismatch for chunk %d", req.ChunkIndex)))
	}

	u, err := a.lookup("upload-chunk", req.FileID)
	if err != nil {
		return err
	}

	etag, err := a.putPart(ctx, u, int32(partNumber), req.Data) //nolint:gosec // validated above
	if err != nil {
		return mapS3Error("upload-chunk", req.FileID, err)
	}

	a.mu.Lock()
	u.etags[req.ChunkIndex] = etag
	a.mu.Unlock()
	return nil
}

func (a *Adapter) putPart(ctx context.Context, u *multipartUpload, partNumber int32, data []byte) (string, error) {
	resp, err := a.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(a.bucket),
		Key:        aws.String(u.key),
		UploadId:   aws.String(u.uploadID),
		PartNumber: aws.Int32(partNumber),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(resp.ETag), nil
}

// partSize is the size of every part but the last. Without an explicit
// chunk size it is derived from the file size.
func partSize(req ingestkit.InitRequest) int64 {
	if req.ChunkSize > 0 {
		return req.ChunkSize
	}
	if req.TotalChunks <= 0 || req.FileSize <= 0 {
		return 0
	}
	return (req.FileSize + int64(req.TotalChunks) - 1) / int64(req.TotalChunks)
}

// FinalizeUpload implements ingestkit.Transport by completing the multipart
// upload with the recorded parts in ascending order
func (a *Adapter) FinalizeUpload(ctx context.Context, fileID string) (*ingestkit.FinalizeResult, error) {
	u, err := a.lookup("finalize-upload", fileID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	parts := make([]types.CompletedPart, 0, len(u.etags))
	for idx, etag := range u.etags {
		parts = append(parts, types.CompletedPart{
			ETag:       aws.String(etag),
			PartNumber: aws.Int32(int32(idx + 1)), //nolint:gosec // bounded by maxParts
		})
	}
	total := u.totalChunks
	a.mu.Unlock()

	// An empty file has no chunks, but S3 completes only with at least one part.
	if total == 0 && len(parts) == 0 {
		etag, err := a.putPart(ctx, u, 1, nil)
		if err != nil {
			return nil, mapS3Error("finalize-upload", fileID, err)
		}
		parts = append(parts, types.CompletedPart{ETag: aws.String(etag), PartNumber: aws.Int32(1)})
	}
	if len(parts) == 0 || (total > 0 && len(parts) != total) {
		return nil, ingestkit.WrapUploadErr("finalize-upload", fileID,
			fmt.Errorf("%w: have %d of %d chunks", ingestkit.ErrNoParts, len(parts), total))
	}
	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})

	_, err = a.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return nil, mapS3Error("finalize-upload", fileID, err)
	}

	a.mu.Lock()
	delete(a.uploads, fileID)
	a.mu.Unlock()

	return &ingestkit.FinalizeResult{
		FileID: fileID,
		URL:    fmt.Sprintf("s3://%s/%s", a.bucket, u.key),
	}, nil
}

// AbortUpload implements ingestkit.CanAbort via AbortMultipartUpload
func (a *Adapter) AbortUpload(ctx context.Context, fileID string) error {
	u, err := a.lookup("abort-upload", fileID)
	if err != nil {
		return err
	}

	_, err = a.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
	})
	if err != nil {
		return mapS3Error("abort-upload", fileID, err)
	}

	a.mu.Lock()
	delete(a.uploads, fileID)
	a.mu.Unlock()
	return nil
}

// UploadedChunks returns the chunk indices S3 acknowledged for fileID.
func (a *Adapter) UploadedChunks(fileID string) []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.uploads[fileID]
	if !ok {
		return nil
	}
	indices := make([]int, 0, len(u.etags))
	for idx := range u.etags {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

func (a *Adapter) lookup(op, fileID string) (*multipartUpload, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.uploads[fileID]
	if !ok {
		return nil, ingestkit.Permanent(ingestkit.WrapUploadErr(op, fileID, ingestkit.ErrUnknownUpload))
	}
	return u, nil
}

// mapS3Error maps S3 errors to ingestkit errors
func mapS3Error(op, fileID string, err error) error {
	var noUpload *types.NoSuchUpload
	var noBucket *types.NoSuchBucket

	if errors.As(err, &noUpload) {
		return ingestkit.Permanent(ingestkit.WrapUploadErr(op, fileID, fmt.Errorf("%w: %w", ingestkit.ErrUnknownUpload, err)))
	}
	if errors.As(err, &noBucket) {
		return ingestkit.Permanent(ingestkit.WrapUploadErr(op, fileID, err))
	}

	return ingestkit.WrapUploadErr(op, fileID, err)
}

// Ensure Adapter implements interfaces
var (
	_ ingestkit.Transport = (*Adapter)(nil)
	_ ingestkit.CanAbort  = (*Adapter)(nil)
	_ MultipartAPI        = (*s3.Client)(nil)
)
