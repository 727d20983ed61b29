package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gobeaver/ingestkit"
)

type SanitizeFlags struct {
	FilePath           string
	Strict             bool
	PreserveFormatting bool
	ChunkSize          int
	Budget             time.Duration
	JSON               bool
	Progress           bool
}

var sanitizeFlags SanitizeFlags

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize",
	Short: "Sanitize an HTML document",
	Long: `Sanitize an HTML document chunk by chunk and write the result to stdout.
Warnings go to stderr. When the time budget runs out, the rest of the
document only has its forbidden tags removed.

Use --file - to read from stdin.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateSanitizeFlags(&sanitizeFlags)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSanitize(cmd.Context(), &sanitizeFlags, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(sanitizeCmd)

	sanitizeCmd.Flags().StringVarP(&sanitizeFlags.FilePath, "file", "f", "", "HTML file to sanitize, - for stdin (required)")
	sanitizeCmd.Flags().BoolVar(&sanitizeFlags.Strict, "strict", false, "keep only basic inline formatting")
	sanitizeCmd.Flags().BoolVar(&sanitizeFlags.PreserveFormatting, "preserve-formatting", false, "keep layout tags and classes")
	sanitizeCmd.Flags().IntVar(&sanitizeFlags.ChunkSize, "chunk-size", 0, "characters per chunk")
	sanitizeCmd.Flags().DurationVar(&sanitizeFlags.Budget, "budget", 0, "processing time budget (0 uses the configured one, negative disables it)")
	sanitizeCmd.Flags().BoolVar(&sanitizeFlags.JSON, "json", false, "print the full result as JSON")
	sanitizeCmd.Flags().BoolVar(&sanitizeFlags.Progress, "progress", false, "draw a progress bar on stderr")

	sanitizeCmd.MarkFlagRequired("file")

	viper.BindPFlag("sanitize_chunk_size", sanitizeCmd.Flags().Lookup("chunk-size"))
}

func validateSanitizeFlags(flags *SanitizeFlags) error {
	if flags.FilePath == "" {
		return fmt.Errorf("file path is required")
	}
	if flags.ChunkSize < 0 {
		return fmt.Errorf("chunk size must not be negative")
	}
	if flags.Strict && flags.PreserveFormatting {
		return fmt.Errorf("--strict and --preserve-formatting are mutually exclusive")
	}
	return nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func runSanitize(parent context.Context, flags *SanitizeFlags, stdin io.Reader, out, errOut io.Writer) error {
	ctx, stop := signalContext(parent)
	defer stop()

	data, err := readInput(flags.FilePath, stdin)
	if err != nil {
		return err
	}
	if ct := ingestkit.GuessContentType(flags.FilePath, data); !ingestkit.IsMarkup(ct) {
		logger.Warn().Str("content_type", ct).Msg("input does not look like HTML")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Sanitizing needs no remote store
	cfg.Driver = "memory"

	var bar *progressbar.ProgressBar
	opts := []ingestkit.Option{ingestkit.WithLogger(logger)}
	if flags.Progress {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription("Sanitizing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(50),
			progressbar.OptionClearOnFinish(),
		)
		opts = append(opts, ingestkit.WithSanitizeProgress(func(p ingestkit.SanitizeProgress) {
			_ = bar.Set(int(p.Percentage))
		}))
	}

	svc, err := ingestkit.New(cfg, opts...)
	if err != nil {
		return err
	}

	budget := flags.Budget
	if budget == 0 {
		budget = cfg.MaxProcessingTime()
	}
	res, err := svc.Sanitizer().Sanitize(ctx, ingestkit.Request{
		Content:            string(data),
		ChunkSize:          cfg.SanitizeChunkSize,
		StrictMode:         flags.Strict,
		PreserveFormatting: flags.PreserveFormatting,
		Enabled:            true,
		MaxProcessingTime:  budget,
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	if flags.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(errOut, "warning: %s\n", w)
	}
	if len(res.RemovedElements) > 0 {
		logger.Info().Strs("removed", res.RemovedElements).Str("state", res.State.String()).Msg("sanitized")
	}
	_, err = io.WriteString(out, res.SanitizedContent)
	return err
}
