// Package ingestkit moves documents to a remote store in resumable,
// checksummed chunks and sanitizes HTML progressively under a time budget.
//
// The package has two orchestrators that share configuration, logging and
// metrics: the [Uploader], which drives a [TransferSession] through
// init, chunk and finalize calls on a [Transport], and the [Sanitizer],
// which cleans markup chunk by chunk and caches finished results.
//
// # Transports
//
// A remote store implements [Transport]. Drivers register themselves on
// import and are selected by name:
//
//   - In-memory (github.com/gobeaver/ingestkit/driver/memory)
//   - Local filesystem (github.com/gobeaver/ingestkit/driver/local)
//   - Amazon S3 multipart uploads, 5 MiB parts or larger (github.com/gobeaver/ingestkit/driver/s3)
//
// A transport that can drop a partial upload also implements [CanAbort].
//
// # Uploading
//
//	store := memory.New()
//	u := ingestkit.NewUploader(store, ingestkit.DefaultUploadConfig())
//
//	s, err := u.NewSession(ctx, ingestkit.FileMeta{
//	    Name:     "brief.pdf",
//	    Size:     size,
//	    MimeType: "application/pdf",
//	}, file, ingestkit.WithProgress(func(p ingestkit.ProgressSnapshot) {
//	    fmt.Printf("%.0f%%\n", p.Percentage)
//	}))
//	if err != nil {
//	    // validation failed; errors.Is(err, ingestkit.ErrValidation)
//	}
//	res, err := s.Run(ctx)
//
// Chunks are sent strictly in order. A chunk that fails with a retryable
// error is resent with exponential backoff; a permanent error or an
// exhausted retry budget fails the session. [TransferSession.Pause] and
// [TransferSession.Resume] continue from the first unacknowledged chunk,
// and [Uploader.ResumeFrom] rebuilds a session from the chunk indices a
// store already holds.
//
// # Sanitizing
//
//	s := ingestkit.NewSanitizer()
//	res, err := s.Sanitize(ctx, ingestkit.Request{
//	    Content: html,
//	    Enabled: true,
//	})
//	fmt.Println(res.SanitizedContent, res.State)
//
// Chunks are prepared concurrently and finished in document order. When
// [Request.MaxProcessingTime] runs out the rest of the document only has
// its forbidden tags removed and the result ends in
// [SanitizeTimeBudgetExceeded]. Completed results are stored in a
// [ResultCache] keyed by the content fingerprint and the mode flags;
// the rediscache package shares them between processes.
//
// # Error Handling
//
//	_, err := s.Run(ctx)
//	switch {
//	case ingestkit.IsBusy(err):
//	    // another transfer is active
//	case errors.Is(err, ingestkit.ErrPaused):
//	    // call Resume
//	}
//
//	var upErr *ingestkit.UploadError
//	if errors.As(err, &upErr) {
//	    fmt.Printf("Operation: %s, File: %s\n", upErr.Op, upErr.FileID)
//	}
//
// # Configuration
//
// The [Service] bundles both orchestrators. It can be configured via
// environment variables with the BEAVER_INGESTKIT_ prefix, or
// programmatically via the [Config] struct:
//
//	svc, err := ingestkit.New(&ingestkit.Config{
//	    Driver:   "s3",
//	    S3Bucket: "case-files",
//	    S3Region: "us-west-2",
//	})
package ingestkit
