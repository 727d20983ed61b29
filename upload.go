package ingestkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/gobeaver/ingestkit/filevalidator"
)

// DefaultChunkSize is the upload chunk size used when none is configured.
const DefaultChunkSize int64 = 1 << 20

// State is the lifecycle state of a TransferSession.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateUploading
	StatePaused
	StateCompleted
	StateAborted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateInitializing: "initializing",
	StateUploading:    "uploading",
	StatePaused:       "paused",
	StateCompleted:    "completed",
	StateAborted:      "aborted",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

// transitions lists every legal move. Paused -> Uploading is the only edge
// that goes back; Idle -> Uploading is taken by sessions built with
// ResumeFrom, which skip the handshake.
var transitions = map[State][]State{
	StateIdle:         {StateInitializing, StateUploading, StateAborted},
	StateInitializing: {StateUploading, StateAborted, StateFailed},
	StateUploading:    {StatePaused, StateCompleted, StateAborted, StateFailed},
	StatePaused:       {StateUploading, StateAborted},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UploadConfig tunes transfers.
type UploadConfig struct {
	ChunkSize    int64
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxFileSize  int64
	AllowedTypes []string
}

// DefaultUploadConfig returns 1 MiB chunks, 3 retries starting at 500ms and
// a 100 MiB limit on document and image types.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		ChunkSize:    DefaultChunkSize,
		MaxRetries:   3,
		BaseDelay:    500 * time.Millisecond,
		MaxFileSize:  100 * filevalidator.MB,
		AllowedTypes: filevalidator.DocumentConstraints().AcceptedTypes,
	}
}

func (c UploadConfig) retryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: c.MaxRetries, BaseDelay: c.BaseDelay, MaxDelay: c.MaxDelay}
}

// FileMeta describes the file to upload.
type FileMeta struct {
	Name     string
	Size     int64
	MimeType string
}

// Uploader drives chunked transfers against a Transport. It allows one
// active transfer at a time.
type Uploader struct {
	transport Transport
	validator filevalidator.Validator
	cfg       UploadConfig
	logger    zerolog.Logger
	metrics   *Metrics
	active    *semaphore.Weighted
	now       func() time.Time
}

// NewUploader creates an Uploader. Unless WithValidator is given, files are
// checked against cfg.MaxFileSize and cfg.AllowedTypes.
func NewUploader(t Transport, cfg UploadConfig, opts ...Option) *Uploader {
	o := applyOptions(opts)
	if o.Validator == nil {
		c := filevalidator.DefaultConstraints()
		c.MaxFileSize = cfg.MaxFileSize
		c.AcceptedTypes = cfg.AllowedTypes
		o.Validator = filevalidator.New(c)
	}
	return &Uploader{
		transport: t,
		validator: o.Validator,
		cfg:       cfg,
		logger:    o.Logger,
		metrics:   o.Metrics,
		active:    semaphore.NewWeighted(1),
		now:       time.Now,
	}
}

// Transport returns the underlying transport.
func (u *Uploader) Transport() Transport {
	return u.transport
}

// SessionOption configures a TransferSession
type SessionOption func(*TransferSession)

// WithProgress registers a callback invoked after every acknowledged chunk.
func WithProgress(fn func(ProgressSnapshot)) SessionOption {
	return func(s *TransferSession) {
		s.onProgress = fn
	}
}

// WithStateChange registers a callback invoked after every transition.
func WithStateChange(fn func(from, to State)) SessionOption {
	return func(s *TransferSession) {
		s.onState = fn
	}
}

// WithFileID overrides the generated file id.
func WithFileID(id string) SessionOption {
	return func(s *TransferSession) {
		if id != "" {
			s.fileID = id
		}
	}
}

// NewSession validates the file and plans its chunks. A validation failure
// returns an error matching ErrValidation and no session.
func (u *Uploader) NewSession(ctx context.Context, meta FileMeta, src io.ReaderAt, opts ...SessionOption) (*TransferSession, error) {
	var head []byte
	if meta.Size > 0 {
		head = make([]byte, min(meta.Size, 512))
		n, err := src.ReadAt(head, 0)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read file head: %w", err)
		}
		head = head[:n]
	}
	if err := u.validator.ValidateMetaWithContent(ctx, meta.Name, meta.Size, meta.MimeType, head); err != nil {
		return nil, err
	}
	if meta.MimeType == "" {
		meta.MimeType = GuessContentType(meta.Name, head)
	}

	chunks, err := PlanChunks(meta.Size, u.cfg.ChunkSize)
	if err != nil {
		return nil, err
	}

	s := &TransferSession{
		u:        u,
		fileID:   uuid.NewString(),
		meta:     meta,
		src:      src,
		chunks:   chunks,
		uploaded: make(map[int]struct{}, len(chunks)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = u.logger.With().Str("file_id", s.fileID).Str("file_name", meta.Name).Logger()
	return s, nil
}

// ResumeFrom rebuilds a session for a file whose earlier transfer stopped
// after the given chunk indices were acknowledged. Run skips the init
// handshake and sends only the missing chunks.
func (u *Uploader) ResumeFrom(ctx context.Context, meta FileMeta, src io.ReaderAt, fileID string, uploaded []int, opts ...SessionOption) (*TransferSession, error) {
	if fileID == "" {
		return nil, fmt.Errorf("%w: missing file id", ErrNotResumable)
	}
	s, err := u.NewSession(ctx, meta, src, append(opts, WithFileID(fileID))...)
	if err != nil {
		return nil, err
	}
	for _, idx := range uploaded {
		if idx < 0 || idx >= len(s.chunks) {
			return nil, fmt.Errorf("%w: chunk index %d outside [0,%d)", ErrNotResumable, idx, len(s.chunks))
		}
		if _, dup := s.uploaded[idx]; dup {
			continue
		}
		s.uploaded[idx] = struct{}{}
		s.loaded += s.chunks[idx].Size()
	}
	s.resumed = true
	return s, nil
}

// TransferSession is one upload of one file.
type TransferSession struct {
	u          *Uploader
	fileID     string
	meta       FileMeta
	src        io.ReaderAt
	chunks     []Chunk
	resumed    bool
	log        zerolog.Logger
	onProgress func(ProgressSnapshot)
	onState    func(from, to State)

	abort atomic.Bool
	pause atomic.Bool

	mu       sync.Mutex
	state    State
	uploaded map[int]struct{}
	loaded   int64
	result   *FinalizeResult

	// sent counts the bytes this session transferred. loaded also counts
	// chunks acknowledged before ResumeFrom.
	sent int64

	// active is the time spent initializing or uploading, excluding pauses.
	active      time.Duration
	activeSince time.Time
}

// FileID returns the id shared with the transport.
func (s *TransferSession) FileID() string {
	return s.fileID
}

// Meta returns the file metadata, with the MIME type filled in.
func (s *TransferSession) Meta() FileMeta {
	return s.meta
}

// TotalChunks returns the planned number of chunks.
func (s *TransferSession) TotalChunks() int {
	return len(s.chunks)
}

// State returns the current lifecycle state.
func (s *TransferSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UploadedIndices returns the acknowledged chunk indices in ascending order.
func (s *TransferSession) UploadedIndices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.uploaded))
	for idx := range s.uploaded {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// NextIndex returns the lowest chunk index not yet acknowledged, or
// TotalChunks when every chunk is done.
func (s *TransferSession) NextIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIndexLocked()
}

func (s *TransferSession) nextIndexLocked() int {
	for _, c := range s.chunks {
		if _, ok := s.uploaded[c.Index]; !ok {
			return c.Index
		}
	}
	return len(s.chunks)
}

// Snapshot computes the current progress.
func (s *TransferSession) Snapshot() ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *TransferSession) snapshotLocked() ProgressSnapshot {
	elapsed := s.active
	if !s.activeSince.IsZero() {
		elapsed += s.u.now().Sub(s.activeSince)
	}
	return ProgressSnapshot{
		Progress:     ComputeTransferProgress(s.loaded, s.sent, s.meta.Size, elapsed),
		FileID:       s.fileID,
		LoadedBytes:  s.loaded,
		TotalBytes:   s.meta.Size,
		CurrentChunk: len(s.uploaded),
		TotalChunks:  len(s.chunks),
	}
}

// Result returns the finalize result of a completed session.
func (s *TransferSession) Result() *FinalizeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Pause asks the session to stop before the next chunk. The chunk in flight
// completes. Run then returns ErrPaused.
func (s *TransferSession) Pause() {
	s.pause.Store(true)
}

// Cancel asks the session to stop before the next chunk and end Aborted.
// Chunks already stored remotely are left in place; see Discard.
func (s *TransferSession) Cancel() {
	s.abort.Store(true)
	if s.transitionIf(StateAborted, StateIdle, StatePaused) {
		s.u.metrics.uploadEnded(StateAborted)
	}
}

// Discard cancels the session and asks the transport to drop any partial
// upload. It returns ErrNotSupported when the transport cannot abort.
func (s *TransferSession) Discard(ctx context.Context) error {
	s.Cancel()
	aborter, ok := s.u.transport.(CanAbort)
	if !ok {
		return fmt.Errorf("%w: transport cannot abort uploads", ErrNotSupported)
	}
	return aborter.AbortUpload(ctx, s.fileID)
}

// Run performs the transfer: init, every chunk in ascending order, finalize.
// It returns ErrBusy if another transfer of the same Uploader is active,
// ErrPaused after Pause and ErrAborted after Cancel or ctx cancellation.
func (s *TransferSession) Run(ctx context.Context) (*FinalizeResult, error) {
	if !s.u.active.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer s.u.active.Release(1)

	switch st := s.State(); st {
	case StateIdle:
	case StateAborted:
		return nil, ErrAborted
	case StatePaused:
		return nil, fmt.Errorf("%w: session is paused; call Resume", ErrInvalidTransition)
	default:
		return nil, &TransitionError{From: st, To: StateInitializing}
	}

	if !s.resumed {
		if err := s.initUpload(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.transition(StateUploading); err != nil {
		return nil, err
	}
	return s.uploadLoop(ctx)
}

// Resume continues a paused session from NextIndex without a new handshake.
func (s *TransferSession) Resume(ctx context.Context) (*FinalizeResult, error) {
	if !s.u.active.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer s.u.active.Release(1)

	if st := s.State(); st != StatePaused {
		return nil, fmt.Errorf("%w: session is %s", ErrNotResumable, st)
	}
	s.pause.Store(false)
	if err := s.transition(StateUploading); err != nil {
		return nil, err
	}
	s.log.Info().Int("chunk_index", s.NextIndex()).Msg("resuming upload")
	return s.uploadLoop(ctx)
}

func (s *TransferSession) initUpload(ctx context.Context) error {
	if err := s.transition(StateInitializing); err != nil {
		return err
	}
	if s.abort.Load() {
		return s.aborted(nil)
	}

	req := InitRequest{
		FileID:      s.fileID,
		FileName:    s.meta.Name,
		FileSize:    s.meta.Size,
		TotalChunks: len(s.chunks),
		ChunkSize:   s.u.cfg.ChunkSize,
		FileType:    s.meta.MimeType,
	}
	if err := s.u.transport.InitUpload(ctx, req); err != nil {
		if ctx.Err() != nil {
			return s.aborted(ctx.Err())
		}
		s.fail(err)
		return &InitError{FileID: s.fileID, Err: err}
	}
	s.log.Debug().Int("total_chunks", len(s.chunks)).Int64("file_size", s.meta.Size).Msg("upload initialized")
	return nil
}

func (s *TransferSession) uploadLoop(ctx context.Context) (*FinalizeResult, error) {
	policy := s.u.cfg.retryPolicy()

	for _, c := range s.chunks {
		if s.isUploaded(c.Index) {
			continue
		}
		if s.abort.Load() {
			return nil, s.aborted(nil)
		}
		if s.pause.CompareAndSwap(true, false) {
			if err := s.transition(StatePaused); err != nil {
				return nil, err
			}
			s.u.metrics.uploadEnded(StatePaused)
			s.log.Info().Int("chunk_index", c.Index).Msg("upload paused")
			return nil, ErrPaused
		}
		if err := ctx.Err(); err != nil {
			return nil, s.aborted(err)
		}

		if err := s.sendChunk(ctx, policy, c); err != nil {
			return nil, err
		}
	}

	res, err := s.u.transport.FinalizeUpload(ctx, s.fileID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.aborted(ctx.Err())
		}
		s.fail(err)
		return nil, &FinalizeError{FileID: s.fileID, Err: err}
	}
	if err := s.transition(StateCompleted); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.result = res
	s.mu.Unlock()
	s.u.metrics.uploadEnded(StateCompleted)
	s.log.Info().Str("url", res.URL).Msg("upload completed")
	return res, nil
}

func (s *TransferSession) sendChunk(ctx context.Context, policy RetryPolicy, c Chunk) error {
	data := make([]byte, c.Size())
	if n, err := s.src.ReadAt(data, c.Start); err != nil && !(errors.Is(err, io.EOF) && int64(n) == c.Size()) {
		s.fail(err)
		return &ChunkTransferError{FileID: s.fileID, Index: c.Index, Err: fmt.Errorf("read source: %w", err)}
	}

	req := ChunkRequest{
		FileID:      s.fileID,
		ChunkIndex:  c.Index,
		TotalChunks: len(s.chunks),
		Data:        data,
		Checksum:    ChunkChecksum(data),
	}
	attempts, err := policy.retry(ctx, func() error {
		return s.u.transport.UploadChunk(ctx, req)
	}, func(err error, wait time.Duration) {
		s.u.metrics.chunkRetried()
		s.log.Warn().Err(err).Int("chunk_index", c.Index).Dur("wait", wait).Msg("chunk upload failed, retrying")
	})
	if err != nil {
		if ctx.Err() != nil {
			return s.aborted(ctx.Err())
		}
		s.fail(err)
		s.log.Error().Err(err).Int("chunk_index", c.Index).Int("attempt", attempts).Msg("chunk upload failed")
		return &ChunkTransferError{FileID: s.fileID, Index: c.Index, Attempts: attempts, Err: err}
	}

	s.mu.Lock()
	s.uploaded[c.Index] = struct{}{}
	s.loaded += c.Size()
	s.sent += c.Size()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.u.metrics.chunkSent()
	s.log.Debug().Int("chunk_index", c.Index).Int("attempt", attempts).Msg("chunk acknowledged")
	if s.onProgress != nil {
		s.onProgress(snap)
	}
	return nil
}

func (s *TransferSession) isUploaded(idx int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.uploaded[idx]
	return ok
}

func (s *TransferSession) transition(to State) error {
	s.mu.Lock()
	from := s.state
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return &TransitionError{From: from, To: to}
	}
	s.state = to
	s.trackActiveLocked(from, to)
	s.mu.Unlock()

	s.log.Debug().Str("state", to.String()).Str("from", from.String()).Msg("state changed")
	if s.onState != nil {
		s.onState(from, to)
	}
	return nil
}

// transitionIf moves to `to` only when the current state is one of from.
func (s *TransferSession) transitionIf(to State, from ...State) bool {
	s.mu.Lock()
	cur := s.state
	ok := false
	for _, f := range from {
		if cur == f && CanTransition(cur, to) {
			ok = true
			break
		}
	}
	if ok {
		s.state = to
		s.trackActiveLocked(cur, to)
	}
	s.mu.Unlock()

	if ok && s.onState != nil {
		s.onState(cur, to)
	}
	return ok
}

// trackActiveLocked runs the activity clock while the session is
// initializing or uploading.
func (s *TransferSession) trackActiveLocked(from, to State) {
	now := s.u.now()
	if isRunning(from) && !s.activeSince.IsZero() {
		s.active += now.Sub(s.activeSince)
		s.activeSince = time.Time{}
	}
	if isRunning(to) {
		s.activeSince = now
	}
}

func isRunning(st State) bool {
	return st == StateInitializing || st == StateUploading
}

func (s *TransferSession) aborted(cause error) error {
	if err := s.transition(StateAborted); err != nil {
		return err
	}
	s.u.metrics.uploadEnded(StateAborted)
	s.log.Info().Int("chunk_index", s.NextIndex()).Msg("upload aborted")
	if cause != nil {
		return fmt.Errorf("%w: %w", ErrAborted, cause)
	}
	return ErrAborted
}

func (s *TransferSession) fail(err error) {
	if terr := s.transition(StateFailed); terr != nil {
		s.log.Error().Err(terr).Msg("cannot mark session failed")
		return
	}
	s.u.metrics.uploadEnded(StateFailed)
	s.log.Debug().Err(err).Msg("upload failed")
}
