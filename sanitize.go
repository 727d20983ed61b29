package ingestkit

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gobeaver/ingestkit/sanitizer"
)

const (
	// DefaultSanitizeChunkSize is the chunk length in characters.
	DefaultSanitizeChunkSize = 5000

	// PreviewChunkSize is the chunk length used by Preview.
	PreviewChunkSize = 1000

	// DefaultMaxProcessingTime is the budget used when a request sets none.
	DefaultMaxProcessingTime = 5 * time.Second
)

// SanitizeState is the lifecycle state of a sanitization session.
type SanitizeState int

const (
	SanitizeIdle SanitizeState = iota
	SanitizeRunning
	SanitizeCompleted
	SanitizeAborted
	SanitizeTimeBudgetExceeded
)

var sanitizeStateNames = [...]string{
	SanitizeIdle:               "idle",
	SanitizeRunning:            "running",
	SanitizeCompleted:          "completed",
	SanitizeAborted:            "aborted",
	SanitizeTimeBudgetExceeded: "time_budget_exceeded",
}

func (s SanitizeState) String() string {
	if s < 0 || int(s) >= len(sanitizeStateNames) {
		return fmt.Sprintf("sanitize_state(%d)", int(s))
	}
	return sanitizeStateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s SanitizeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SanitizeState) UnmarshalText(b []byte) error {
	for i, name := range sanitizeStateNames {
		if name == string(b) {
			*s = SanitizeState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown sanitize state %q", b)
}

// Request is one sanitization call.
type Request struct {
	Content string

	// ChunkSize is in characters. Zero uses DefaultSanitizeChunkSize.
	ChunkSize int

	StrictMode         bool
	PreserveFormatting bool

	// Enabled false returns Content untouched.
	Enabled bool

	// MaxProcessingTime is the wall-clock budget. Zero uses
	// DefaultMaxProcessingTime; a negative value disables the budget.
	MaxProcessingTime time.Duration
}

// Result is the aggregated outcome of a session. Results served from the
// cache are shared and must not be modified.
type Result struct {
	SanitizedContent string        `json:"sanitized_content"`
	RemovedElements  []string      `json:"removed_elements"`
	Warnings         []string      `json:"warnings"`
	State            SanitizeState `json:"state"`
	ProcessedChars   int           `json:"processed_chars"`
	TotalChars       int           `json:"total_chars"`
	ChunksProcessed  int           `json:"chunks_processed"`
	Duration         time.Duration `json:"duration"`
}

// SanitizeProgress reports how far the active session is.
type SanitizeProgress struct {
	ProcessedChars int
	TotalChars     int
	Percentage     float64
	Processing     bool
	Cached         bool
}

// Sanitizer runs sanitization sessions one at a time and memoizes
// completed results.
type Sanitizer struct {
	cache      ResultCache
	logger     zerolog.Logger
	metrics    *Metrics
	workers    int
	onProgress func(SanitizeProgress)
	active     *semaphore.Weighted
	abort      atomic.Bool
	clock      func() time.Time
}

// NewSanitizer creates a Sanitizer. Without WithCache it uses a
// MemoryResultCache of DefaultCacheCapacity in FIFO order.
func NewSanitizer(opts ...Option) *Sanitizer {
	o := applyOptions(opts)
	if o.Cache == nil {
		o.Cache = NewMemoryResultCache(DefaultCacheCapacity, EvictFIFO)
	}
	return &Sanitizer{
		cache:      o.Cache,
		logger:     o.Logger,
		metrics:    o.Metrics,
		workers:    o.Workers,
		onProgress: o.SanitizeProgress,
		active:     semaphore.NewWeighted(1),
		clock:      time.Now,
	}
}

// Cache returns the result cache.
func (s *Sanitizer) Cache() ResultCache {
	return s.cache
}

// Abort stops the active session before its next chunk. The session returns
// ErrAborted and no result.
func (s *Sanitizer) Abort() {
	s.abort.Store(true)
}

// Preview sanitizes content for a quick, strict rendering.
func (s *Sanitizer) Preview(ctx context.Context, content string) (*Result, error) {
	return s.Sanitize(ctx, Request{
		Content:    content,
		ChunkSize:  PreviewChunkSize,
		StrictMode: true,
		Enabled:    true,
	})
}

// FullView sanitizes content keeping layout markup.
func (s *Sanitizer) FullView(ctx context.Context, content string) (*Result, error) {
	return s.Sanitize(ctx, Request{
		Content:            content,
		PreserveFormatting: true,
		Enabled:            true,
	})
}

// Sanitize runs one session. A concurrent call returns ErrBusy. Running out
// of time budget is not an error: the result has state
// SanitizeTimeBudgetExceeded and the remainder only had forbidden tags
// removed.
func (s *Sanitizer) Sanitize(ctx context.Context, req Request) (*Result, error) {
	total := utf8.RuneCountInString(req.Content)
	if !req.Enabled {
		return &Result{
			SanitizedContent: req.Content,
			State:            SanitizeCompleted,
			ProcessedChars:   total,
			TotalChars:       total,
		}, nil
	}

	if !s.active.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer s.active.Release(1)
	s.abort.Store(false)

	key := Fingerprint(req.Content, req.StrictMode, req.PreserveFormatting)
	log := s.logger.With().Str("cache_key", key).Logger()

	if cached, ok := s.cache.Get(ctx, key); ok {
		s.metrics.cacheLookup(true)
		s.metrics.sanitizeEnded(SanitizeCompleted, 0)
		s.emit(SanitizeProgress{ProcessedChars: cached.TotalChars, TotalChars: cached.TotalChars, Percentage: 100, Cached: true})
		log.Debug().Msg("sanitize cache hit")
		return cached, nil
	}
	s.metrics.cacheLookup(false)

	res, err := s.run(ctx, req, total, log)
	if err != nil {
		return nil, err
	}
	if res.State == SanitizeCompleted {
		s.cache.Set(ctx, key, res)
	}
	return res, nil
}

func (s *Sanitizer) run(ctx context.Context, req Request, total int, log zerolog.Logger) (*Result, error) {
	start := s.clock()
	rs := sanitizer.NewRuleSet(req.StrictMode, req.PreserveFormatting)

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultSanitizeChunkSize
	}
	budget := req.MaxProcessingTime
	if budget == 0 {
		budget = DefaultMaxProcessingTime
	}

	content := req.Content
	spans := sanitizer.AlignBoundaries(content, Boundaries(SplitText(content, chunkSize)), rs)
	log.Debug().
		Str("ruleset", rs.Name()).
		Int("chunks", len(spans)).
		Int("total_chars", total).
		Msg("sanitize started")

	// Passes that need no cross-chunk state run ahead in a bounded pool;
	// ready[i] closes once prepared[i] is available.
	prepared := make([]sanitizer.ChunkResult, len(spans))
	ready := make([]chan struct{}, len(spans))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	mapCtx, cancelMap := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(mapCtx)
	g.SetLimit(s.workers)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for i, sp := range spans {
			g.Go(func() error {
				defer close(ready[i])
				if err := gctx.Err(); err != nil {
					return err
				}
				prepared[i] = sanitizer.Prepare(content[sp.Start:sp.End], rs)
				return nil
			})
		}
	}()
	defer func() {
		cancelMap()
		<-dispatched
		_ = g.Wait()
	}()

	var (
		out       strings.Builder
		removed   []string
		seen      = make(map[string]struct{})
		warnings  []string
		processed int
		chunks    int
		state     = SanitizeRunning
		depth     = sanitizer.NewState()
	)
	out.Grow(len(content))
	union := func(tags []string) {
		for _, tag := range tags {
			if _, ok := seen[tag]; !ok {
				seen[tag] = struct{}{}
				removed = append(removed, tag)
			}
		}
	}

	for i, sp := range spans {
		if err := s.checkAbort(ctx); err != nil {
			return nil, s.aborted(log, err, processed, total)
		}

		if elapsed := s.clock().Sub(start); budget > 0 && elapsed > budget {
			rest, rem := sanitizer.StripForbidden(content[sp.Start:], rs)
			out.WriteString(rest)
			union(rem)
			warnings = append(warnings, fmt.Sprintf(
				"time budget exceeded after %s: %d of %d characters fully sanitized, remainder had only forbidden tags removed",
				budget, processed, total))
			log.Warn().Dur("budget", budget).Int("processed_chars", processed).Msg("sanitize time budget exceeded")
			processed = total
			state = SanitizeTimeBudgetExceeded
			break
		}

		select {
		case <-ready[i]:
		case <-ctx.Done():
		}
		if err := s.checkAbort(ctx); err != nil {
			return nil, s.aborted(log, err, processed, total)
		}

		res := sanitizer.Finish(prepared[i], rs, depth)
		out.WriteString(res.Sanitized)
		union(res.RemovedElements)
		warnings = append(warnings, res.Warnings...)
		processed += sp.Chars(content)
		chunks++
		s.emit(SanitizeProgress{ProcessedChars: processed, TotalChars: total, Percentage: percentOf(processed, total), Processing: true})
	}

	if state == SanitizeRunning {
		state = SanitizeCompleted
	}
	if removed == nil {
		removed = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	res := &Result{
		SanitizedContent: out.String(),
		RemovedElements:  removed,
		Warnings:         warnings,
		State:            state,
		ProcessedChars:   processed,
		TotalChars:       total,
		ChunksProcessed:  chunks,
		Duration:         s.clock().Sub(start),
	}

	s.metrics.sanitizeEnded(state, res.Duration)
	s.emit(SanitizeProgress{ProcessedChars: processed, TotalChars: total, Percentage: 100})
	log.Info().
		Str("state", state.String()).
		Int("chunks", chunks).
		Int("removed", len(removed)).
		Int("warnings", len(warnings)).
		Dur("duration", res.Duration).
		Msg("sanitize finished")
	return res, nil
}

func (s *Sanitizer) checkAbort(ctx context.Context) error {
	if s.abort.Load() {
		return ErrAborted
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	return nil
}

func (s *Sanitizer) aborted(log zerolog.Logger, err error, processed, total int) error {
	s.metrics.sanitizeEnded(SanitizeAborted, 0)
	s.emit(SanitizeProgress{ProcessedChars: processed, TotalChars: total, Percentage: percentOf(processed, total)})
	log.Info().Int("processed_chars", processed).Msg("sanitize aborted")
	return err
}

func (s *Sanitizer) emit(p SanitizeProgress) {
	if s.onProgress != nil {
		s.onProgress(p)
	}
}

func percentOf(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}
