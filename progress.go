package ingestkit

import (
	"math"
	"time"
)

// Progress is a point-in-time view of a transfer.
type Progress struct {
	// Percentage is in [0, 100].
	Percentage float64

	// SpeedBytesPerSec is the average rate while the transfer was active.
	SpeedBytesPerSec float64

	// ETA estimates the remaining time. Zero when unknown or done.
	ETA time.Duration
}

// ProgressSnapshot is the event emitted after every acknowledged chunk.
type ProgressSnapshot struct {
	Progress
	FileID       string
	LoadedBytes  int64
	TotalBytes   int64
	CurrentChunk int // chunks acknowledged so far
	TotalChunks  int
}

// ComputeProgress derives percentage, speed and ETA from byte counts and the
// elapsed time. It has no side effects.
func ComputeProgress(loaded, total int64, elapsed time.Duration) Progress {
	return ComputeTransferProgress(loaded, loaded, total, elapsed)
}

// ComputeTransferProgress is ComputeProgress for a transfer that may have
// started with bytes already stored. The speed counts only the sent bytes
// over the active time; the ETA covers total-loaded at that speed.
func ComputeTransferProgress(loaded, sent, total int64, active time.Duration) Progress {
	var p Progress
	sent = max(sent, 0)
	switch {
	case total <= 0:
		if loaded >= 0 {
			p.Percentage = 100
		}
	default:
		loaded = min(max(loaded, 0), total)
		sent = min(sent, loaded)
		p.Percentage = float64(loaded) / float64(total) * 100
	}

	if active > 0 && sent > 0 {
		p.SpeedBytesPerSec = float64(sent) / active.Seconds()
	}

	remaining := total - loaded
	if p.SpeedBytesPerSec > 0 && remaining > 0 {
		secs := float64(remaining) / p.SpeedBytesPerSec
		if secs < math.MaxInt64/float64(time.Second) {
			p.ETA = time.Duration(secs * float64(time.Second))
		}
	}
	return p
}
