// Package upload turns validated files into Drive attachments. It keeps a bounded queue per
// batch, drives each task through compression, upload and sharing, and reports every change
// to a notify.Sink.
package upload

import (
	"fmt"
	"time"

	"github.com/commons-systems/atelier/internal/compress"
	"github.com/commons-systems/atelier/internal/notify"
	"github.com/commons-systems/atelier/internal/validate"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const (
	DefaultConcurrency = 3
	MaxConcurrency     = 10
)

// Task is a snapshot of one file moving through the pipeline.
type Task struct {
	ID       string
	BatchID  string
	Name     string
	Size     int64
	MimeType string

	Status   Status
	Progress float64 // 0–100
	Error    string  // set only when Status is StatusFailed

	RemoteURL  string // set only when Status is StatusCompleted
	FileID     string
	UploadedAt time.Time

	Warnings       []string
	SharingWarning string
	Compressed     bool
}

// ProcessedFile is what OnComplete receives for each task that finished. RemoteURL is empty
// when the upload failed.
type ProcessedFile struct {
	TaskID     string
	Name       string
	Size       int64
	MimeType   string
	RemoteURL  string
	FileID     string
	UploadedAt time.Time
	Error      string
}

// SubmitOptions customises a single batch.
type SubmitOptions struct {
	// Policy overrides the orchestrator policy for this batch.
	Policy *validate.Policy
	// Concurrency overrides the orchestrator concurrency. It is clamped to 1–10.
	Concurrency int
	// OnComplete runs once, on the event goroutine, the first time every task has settled.
	OnComplete func([]ProcessedFile)
	// Progress, when set and the batch holds exactly one file, receives that file's progress.
	Progress notify.ProgressSink
}

// Config holds the orchestrator defaults.
type Config struct {
	Policy         validate.Policy
	Concurrency    int
	ParentFolderID string
	// UploadTimeout bounds each attempt. Zero means no deadline.
	UploadTimeout  time.Duration
	CompressImages bool
	Compression    compress.Options
}

// DefaultConfig returns the attachment defaults: the default policy, three concurrent
// uploads and image compression enabled.
func DefaultConfig() Config {
	return Config{
		Policy:         validate.DefaultPolicy(),
		Concurrency:    DefaultConcurrency,
		CompressImages: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return fmt.Errorf("Concurrency must be between 1 and %d, got %d", MaxConcurrency, c.Concurrency)
	}
	if c.UploadTimeout < 0 {
		return fmt.Errorf("UploadTimeout must be >= 0, got %v", c.UploadTimeout)
	}
	if c.Policy.MaxSizeBytes < 0 {
		return fmt.Errorf("Policy.MaxSizeBytes must be >= 0, got %d", c.Policy.MaxSizeBytes)
	}
	return nil
}

func clampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
