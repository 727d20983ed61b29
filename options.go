package ingestkit

import (
	"runtime"

	"github.com/rs/zerolog"

	"github.com/gobeaver/ingestkit/filevalidator"
)

// Option configures an Uploader or a Sanitizer
type Option func(*Options)

// Options contains the collaborators shared by the orchestrators
type Options struct {
	// Logger receives structured events. Defaults to a no-op logger.
	Logger zerolog.Logger

	// Metrics records counters and histograms. Nil disables metrics.
	Metrics *Metrics

	// Validator checks files before a transfer session is created.
	// Uploader only; defaults to constraints derived from UploadConfig.
	Validator filevalidator.Validator

	// Cache memoizes sanitization results. Sanitizer only; defaults to a
	// MemoryResultCache with the default capacity.
	Cache ResultCache

	// Workers bounds the parallel phase of sanitization.
	// Defaults to runtime.NumCPU().
	Workers int

	// SanitizeProgress is called after every sanitized chunk and once when
	// a session ends.
	SanitizeProgress func(SanitizeProgress)
}

func defaultOptions() Options {
	return Options{
		Logger:  zerolog.Nop(),
		Workers: runtime.NumCPU(),
	}
}

func applyOptions(opts []Option) Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	return o
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithValidator sets the file validator used by NewSession
func WithValidator(v filevalidator.Validator) Option {
	return func(o *Options) {
		o.Validator = v
	}
}

// WithCache sets the sanitization result cache
func WithCache(c ResultCache) Option {
	return func(o *Options) {
		o.Cache = c
	}
}

// WithSanitizeProgress sets the sanitization progress callback
func WithSanitizeProgress(fn func(SanitizeProgress)) Option {
	return func(o *Options) {
		o.SanitizeProgress = fn
	}
}

// WithWorkers sets the size of the sanitization worker pool
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}
