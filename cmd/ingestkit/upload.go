package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gobeaver/ingestkit"
)

type UploadFlags struct {
	FilePath  string
	MimeType  string
	FileID    string
	ChunkSize int64
	Quiet     bool
}

var uploadFlags UploadFlags

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a file in resumable chunks",
	Long: `Upload a file to the configured remote store. The file is validated,
split into fixed-size chunks and sent in order; a chunk that fails with a
transient error is retried with exponential backoff.

Ctrl-C stops after the chunk in flight and discards the partial upload.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateUploadFlags(&uploadFlags)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpload(cmd.Context(), &uploadFlags, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().StringVarP(&uploadFlags.FilePath, "file", "f", "", "path to the file to upload (required)")
	uploadCmd.Flags().StringVar(&uploadFlags.MimeType, "mime", "", "declared content type (guessed when empty)")
	uploadCmd.Flags().StringVar(&uploadFlags.FileID, "id", "", "file id (generated when empty)")
	uploadCmd.Flags().Int64Var(&uploadFlags.ChunkSize, "chunk-size", 0, "chunk size in bytes")
	uploadCmd.Flags().BoolVarP(&uploadFlags.Quiet, "quiet", "q", false, "do not draw a progress bar")

	uploadCmd.MarkFlagRequired("file")

	viper.BindPFlag("chunk_size", uploadCmd.Flags().Lookup("chunk-size"))
}

func validateUploadFlags(flags *UploadFlags) error {
	if flags.FilePath == "" {
		return fmt.Errorf("file path is required")
	}
	if flags.ChunkSize < 0 {
		return fmt.Errorf("chunk size must not be negative")
	}
	return nil
}

func runUpload(parent context.Context, flags *UploadFlags, out io.Writer) error {
	ctx, stop := signalContext(parent)
	defer stop()

	f, err := os.Open(flags.FilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := ingestkit.New(cfg, ingestkit.WithLogger(logger))
	if err != nil {
		return err
	}

	mimeType := flags.MimeType
	if mimeType == "" {
		head := make([]byte, 512)
		n, _ := f.ReadAt(head, 0)
		mimeType = ingestkit.GuessContentType(info.Name(), head[:n])
	}

	var bar *progressbar.ProgressBar
	if !flags.Quiet {
		bar = progressbar.NewOptions64(info.Size(),
			progressbar.OptionSetDescription(fmt.Sprintf("Uploading %s", filepath.Base(flags.FilePath))),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(50),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	opts := []ingestkit.SessionOption{
		ingestkit.WithFileID(flags.FileID),
		ingestkit.WithProgress(func(p ingestkit.ProgressSnapshot) {
			if bar != nil {
				_ = bar.Set64(p.LoadedBytes)
			}
		}),
	}
	s, err := svc.Uploader().NewSession(ctx, ingestkit.FileMeta{
		Name:     info.Name(),
		Size:     info.Size(),
		MimeType: mimeType,
	}, f, opts...)
	if err != nil {
		return err
	}

	logger.Info().
		Str("file_id", s.FileID()).
		Str("driver", cfg.Driver).
		Int("chunks", s.TotalChunks()).
		Msg("starting upload")

	res, err := s.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		if errors.Is(err, ingestkit.ErrAborted) {
			discardCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if derr := s.Discard(discardCtx); derr != nil && !errors.Is(derr, ingestkit.ErrNotSupported) {
				logger.Warn().Err(derr).Str("file_id", s.FileID()).Msg("failed to discard partial upload")
			}
			return fmt.Errorf("upload cancelled after %d of %d chunks", len(s.UploadedIndices()), s.TotalChunks())
		}
		return err
	}

	fmt.Fprintln(out, res.URL)
	return nil
}
