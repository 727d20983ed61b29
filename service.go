package ingestkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gobeaver/beaver-kit/config"
)

// Global instance
var (
	defaultService *Service
	defaultOnce    sync.Once
	defaultErr     error
)

// Service bundles the Uploader and the Sanitizer built from one Config.
type Service struct {
	cfg       *Config
	transport Transport
	uploader  *Uploader
	sanitizer *Sanitizer
}

// Builder provides a way to create Service instances with custom prefixes
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// Init initializes the global Service instance using the builder's prefix
func (b *Builder) Init(opts ...Option) error {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return err
	}
	return Init(cfg, opts...)
}

// New creates a new Service instance using the builder's prefix
func (b *Builder) New(opts ...Option) (*Service, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// Init initializes the global service instance. A nil cfg loads it from the
// environment.
func Init(cfg *Config, opts ...Option) error {
	defaultOnce.Do(func() {
		if cfg == nil {
			cfg, defaultErr = GetConfig()
			if defaultErr != nil {
				return
			}
		}

		defaultService, defaultErr = New(cfg, opts...)
	})

	return defaultErr
}

// New creates a new service with given config. Options apply to both the
// Uploader and the Sanitizer; an explicit WithCache wins over the
// configured cache.
func New(cfg *Config, opts ...Option) (*Service, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	transport, err := CreateTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	cache, err := createCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	sanitizeOpts := make([]Option, 0, len(opts)+2)
	sanitizeOpts = append(sanitizeOpts, WithCache(cache))
	if cfg.SanitizeWorkers > 0 {
		sanitizeOpts = append(sanitizeOpts, WithWorkers(cfg.SanitizeWorkers))
	}
	sanitizeOpts = append(sanitizeOpts, opts...)

	return &Service{
		cfg:       cfg,
		transport: transport,
		uploader:  NewUploader(transport, cfg.UploadConfig(), opts...),
		sanitizer: NewSanitizer(sanitizeOpts...),
	}, nil
}

// validateConfig checks configuration validity
func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.Driver == "" {
		return errors.New("driver is required")
	}

	switch cfg.Driver {
	case "local":
		if cfg.LocalBasePath == "" {
			return errors.New("local base path is required for local driver")
		}
	case "s3":
		if cfg.S3Bucket == "" {
			return errors.New("S3 bucket is required for S3 driver")
		}
		// Access keys can be provided via IAM roles, so not always required
	}

	if cfg.ChunkSize < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, cfg.ChunkSize)
	}
	for name, v := range map[string]string{
		"retry base delay":         cfg.RetryBaseDelay,
		"retry max delay":          cfg.RetryMaxDelay,
		"sanitize processing time": cfg.SanitizeMaxProcessingTime,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if _, err := ParseEvictionPolicy(cfg.CacheEviction); err != nil {
		return err
	}

	return nil
}

// createCache picks the shared cache when a Redis URL is configured and the
// in-memory one otherwise.
func createCache(cfg *Config) (ResultCache, error) {
	if cfg.RedisURL != "" {
		return CreateCache("redis", cfg)
	}
	policy, err := ParseEvictionPolicy(cfg.CacheEviction)
	if err != nil {
		return nil, err
	}
	return NewMemoryResultCache(cfg.CacheCapacity, policy), nil
}

// Config returns the configuration the service was built from.
func (s *Service) Config() *Config {
	return s.cfg
}

// Transport returns the remote store.
func (s *Service) Transport() Transport {
	return s.transport
}

// Uploader returns the upload orchestrator.
func (s *Service) Uploader() *Uploader {
	return s.uploader
}

// Sanitizer returns the sanitization orchestrator.
func (s *Service) Sanitizer() *Sanitizer {
	return s.sanitizer
}

// Sanitize runs a sanitization session with the configured chunk size and
// time budget.
func (s *Service) Sanitize(ctx context.Context, content string, strictMode, preserveFormatting bool) (*Result, error) {
	return s.sanitizer.Sanitize(ctx, Request{
		Content:            content,
		ChunkSize:          s.cfg.SanitizeChunkSize,
		StrictMode:         strictMode,
		PreserveFormatting: preserveFormatting,
		Enabled:            true,
		MaxProcessingTime:  s.cfg.MaxProcessingTime(),
	})
}

// Default returns the global instance, initializing if needed with error handling
func Default() (*Service, error) {
	if defaultService == nil {
		if err := Init(nil); err != nil {
			return nil, err
		}
	}
	return defaultService, nil
}

// NewFromEnv creates instance from environment variables (convenience constructor)
func NewFromEnv(opts ...Option) (*Service, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// Reset clears the global instance (for testing)
func Reset() {
	defaultService = nil
	defaultOnce = sync.Once{}
	defaultErr = nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
