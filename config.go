package ingestkit

import (
	"time"

	"github.com/gobeaver/beaver-kit/config"
)

type Config struct {
	// Remote store to upload to (memory, local, s3)
	Driver string `env:"INGESTKIT_DRIVER,default:local"`

	// Local driver configuration
	LocalBasePath string `env:"INGESTKIT_LOCAL_BASE_PATH,default:./storage"`

	// S3 driver configuration
	S3Region          string `env:"INGESTKIT_S3_REGION,default:us-east-1"`
	S3Bucket          string `env:"INGESTKIT_S3_BUCKET"`
	S3Prefix          string `env:"INGESTKIT_S3_PREFIX"`
	S3Endpoint        string `env:"INGESTKIT_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"INGESTKIT_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"INGESTKIT_S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"INGESTKIT_S3_FORCE_PATH_STYLE,default:false"`

	// Upload settings
	ChunkSize        int64  `env:"INGESTKIT_CHUNK_SIZE,default:1048576"` // 1MB, at least S3MinChunkSize for s3
	MaxRetries       int    `env:"INGESTKIT_MAX_RETRIES,default:3"`
	RetryBaseDelay   string `env:"INGESTKIT_RETRY_BASE_DELAY,default:500ms"`  // Go duration
	RetryMaxDelay    string `env:"INGESTKIT_RETRY_MAX_DELAY"`                 // Go duration, empty = uncapped
	MaxFileSize      int64  `env:"INGESTKIT_MAX_FILE_SIZE,default:104857600"` // 100MB
	AllowedMimeTypes string `env:"INGESTKIT_ALLOWED_MIME_TYPES"`              // comma-separated

	// Sanitization settings
	SanitizeChunkSize         int    `env:"INGESTKIT_SANITIZE_CHUNK_SIZE,default:5000"`        // characters
	SanitizeMaxProcessingTime string `env:"INGESTKIT_SANITIZE_MAX_PROCESSING_TIME,default:5s"` // Go duration
	SanitizeWorkers           int    `env:"INGESTKIT_SANITIZE_WORKERS"`                        // 0 = NumCPU

	// Result cache
	CacheCapacity int    `env:"INGESTKIT_CACHE_CAPACITY,default:50"`
	CacheEviction string `env:"INGESTKIT_CACHE_EVICTION,default:fifo"`
	RedisURL      string `env:"INGESTKIT_REDIS_URL"` // shared cache instead of the in-memory one
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// S3MinChunkSize is the smallest chunk size the s3 driver accepts for files
// of more than one chunk.
const S3MinChunkSize int64 = 5 << 20

// UploadConfig returns the upload settings of cfg. The s3 driver gets a
// chunk size of at least S3MinChunkSize.
func (cfg *Config) UploadConfig() UploadConfig {
	uc := DefaultUploadConfig()
	if cfg.ChunkSize > 0 {
		uc.ChunkSize = cfg.ChunkSize
	}
	if cfg.Driver == "s3" && uc.ChunkSize < S3MinChunkSize {
		uc.ChunkSize = S3MinChunkSize
	}
	if cfg.MaxRetries >= 0 {
		uc.MaxRetries = cfg.MaxRetries
	}
	if d, err := parseDuration(cfg.RetryBaseDelay); err == nil && d > 0 {
		uc.BaseDelay = d
	}
	if d, err := parseDuration(cfg.RetryMaxDelay); err == nil {
		uc.MaxDelay = d
	}
	if cfg.MaxFileSize > 0 {
		uc.MaxFileSize = cfg.MaxFileSize
	}
	if types := splitList(cfg.AllowedMimeTypes); len(types) > 0 {
		uc.AllowedTypes = types
	}
	return uc
}

// MaxProcessingTime returns the sanitization time budget. Empty or invalid
// values yield zero, which selects DefaultMaxProcessingTime.
func (cfg *Config) MaxProcessingTime() time.Duration {
	d, _ := parseDuration(cfg.SanitizeMaxProcessingTime)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
