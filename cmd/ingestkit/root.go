package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gobeaver/ingestkit"
	_ "github.com/gobeaver/ingestkit/driver/local"
	_ "github.com/gobeaver/ingestkit/driver/memory"
	_ "github.com/gobeaver/ingestkit/driver/s3"
	_ "github.com/gobeaver/ingestkit/rediscache"
)

var (
	cfgFile  string
	logLevel string
	logger   zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ingestkit",
	Short: "Chunked document uploads and progressive HTML sanitization",
	Long: `ingestkit moves documents to a remote store in resumable, checksummed
chunks and sanitizes HTML in time-boxed passes.

Usage:
  Upload a file:   ingestkit upload --file brief.pdf --driver s3
  Sanitize HTML:   ingestkit sanitize --file letter.html --strict

Settings come from flags, INGESTKIT_* variables, $HOME/.ingestkit.yaml and
the BEAVER_INGESTKIT_* variables read by the library, in that order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogger(logLevel); err != nil {
			return err
		}
		initConfig()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ingestkit.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("driver", "", "remote store (memory, local, s3)")
	rootCmd.PersistentFlags().String("redis-url", "", "share sanitization results through Redis")

	viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver"))
	viper.BindPFlag("redis_url", rootCmd.PersistentFlags().Lookup("redis-url"))

	viper.SetEnvPrefix("INGESTKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Warn().Err(err).Msg("could not find home directory")
			return
		}
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ingestkit")
	}

	if err := viper.ReadInConfig(); err == nil {
		logger.Info().Str("file", viper.ConfigFileUsed()).Msg("using config file")
	}
}

func setupLogger(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
	}).Level(lvl).With().Timestamp().Logger()
	return nil
}

// loadConfig reads the library configuration from the environment and
// applies the values viper knows about on top of it.
func loadConfig() (*ingestkit.Config, error) {
	cfg, err := ingestkit.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyOverrides(cfg, viper.GetViper())
	return cfg, nil
}

func applyOverrides(cfg *ingestkit.Config, v *viper.Viper) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setString("driver", &cfg.Driver)
	setString("local_base_path", &cfg.LocalBasePath)
	setString("s3_bucket", &cfg.S3Bucket)
	setString("s3_prefix", &cfg.S3Prefix)
	setString("s3_region", &cfg.S3Region)
	setString("s3_endpoint", &cfg.S3Endpoint)
	setString("redis_url", &cfg.RedisURL)
	setString("allowed_mime_types", &cfg.AllowedMimeTypes)

	if v.IsSet("chunk_size") {
		cfg.ChunkSize = v.GetInt64("chunk_size")
	}
	if v.IsSet("max_retries") {
		cfg.MaxRetries = v.GetInt("max_retries")
	}
	if v.IsSet("sanitize_chunk_size") {
		cfg.SanitizeChunkSize = v.GetInt("sanitize_chunk_size")
	}
	if v.IsSet("sanitize_workers") {
		cfg.SanitizeWorkers = v.GetInt("sanitize_workers")
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
