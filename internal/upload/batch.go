package upload

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/commons-systems/atelier/internal/notify"
	"github.com/commons-systems/atelier/internal/validate"
)

// Batch is the handle returned by Submit. Its state lives in the orchestrator and every
// method takes the orchestrator lock.
type Batch struct {
	o    *Orchestrator
	id   string
	sem  *semaphore.Weighted
	opts SubmitOptions

	tasks           []*task
	rejected        []validate.Rejection
	accepted        int
	sharingWarnings int

	progress     notify.ProgressSink
	progressTask *task

	finished bool
	done     chan struct{}
}

// ID returns the batch id carried by every task event.
func (b *Batch) ID() string {
	return b.id
}

// Tasks returns snapshots of the remaining tasks in submission order.
func (b *Batch) Tasks() []Task {
	b.o.mu.Lock()
	defer b.o.mu.Unlock()
	out := make([]Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		out = append(out, t.snapshot())
	}
	return out
}

// Rejected returns the files that failed validation.
func (b *Batch) Rejected() []validate.Rejection {
	b.o.mu.Lock()
	defer b.o.mu.Unlock()
	return append([]validate.Rejection(nil), b.rejected...)
}

// Summary counts the batch tasks by status.
func (b *Batch) Summary() notify.BatchSummary {
	b.o.mu.Lock()
	defer b.o.mu.Unlock()
	return b.summaryLocked()
}

// Done is closed the first time every task has completed, failed or been cancelled, or when
// the orchestrator is closed.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until Done is closed and every event emitted up to then, including the
// OnComplete callback, has been delivered. It must not be called from a sink or callback.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.o.events.flush()
	return nil
}

// Cancel cancels every task of the batch that has not completed.
func (b *Batch) Cancel() {
	o := b.o
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	cancelled := 0
	for _, t := range b.tasks {
		if !CanTransition(t.Status, StatusCancelled) {
			continue
		}
		if err := o.cancelLocked(t); err == nil {
			cancelled++
		}
	}
	if cancelled > 0 {
		o.notifyLocked(notify.LevelInfo, fmt.Sprintf("Cancelled %d uploads", cancelled))
	}
	o.afterChangeLocked(b)
}

func (b *Batch) summaryLocked() notify.BatchSummary {
	s := notify.BatchSummary{
		BatchID:         b.id,
		Total:           len(b.tasks),
		Rejected:        len(b.rejected),
		SharingWarnings: b.sharingWarnings,
	}
	for _, t := range b.tasks {
		switch t.Status {
		case StatusPending:
			s.Pending++
		case StatusUploading:
			s.Uploading++
		case StatusPaused:
			s.Paused++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	if s.Total > 0 {
		s.Progress = float64(s.Completed) / float64(s.Total) * 100
	}
	return s
}

// settleLocked fires OnComplete and the closing notification the first time no task of the
// batch can make progress on its own.
func (b *Batch) settleLocked() {
	if b.finished {
		return
	}
	for _, t := range b.tasks {
		if !IsSettled(t.Status) {
			return
		}
	}
	b.finished = true
	o := b.o

	var processed []ProcessedFile
	for _, t := range b.tasks {
		if t.Status == StatusCancelled {
			continue
		}
		processed = append(processed, ProcessedFile{
			TaskID:     t.ID,
			Name:       t.Name,
			Size:       t.Size,
			MimeType:   t.MimeType,
			RemoteURL:  t.RemoteURL,
			FileID:     t.FileID,
			UploadedAt: t.UploadedAt,
			Error:      t.Error,
		})
	}
	if cb := b.opts.OnComplete; cb != nil && b.accepted > 0 {
		o.events.enqueue(func() { cb(processed) })
	}

	s := b.summaryLocked()
	level, msg := completionMessage(s)
	o.notifyLocked(level, msg)
	close(b.done)
}

func completionMessage(s notify.BatchSummary) (notify.Level, string) {
	msg := fmt.Sprintf("Processed %d of %d files", s.Completed, s.Total+s.Rejected)
	var details []string
	if s.Failed > 0 {
		details = append(details, fmt.Sprintf("%d failed", s.Failed))
	}
	if s.Cancelled > 0 {
		details = append(details, fmt.Sprintf("%d cancelled", s.Cancelled))
	}
	if s.Rejected > 0 {
		details = append(details, fmt.Sprintf("%d rejected", s.Rejected))
	}
	if s.SharingWarnings > 0 {
		details = append(details, fmt.Sprintf("%d not shared", s.SharingWarnings))
	}
	if len(details) > 0 {
		msg += " (" + strings.Join(details, ", ") + ")"
	}
	if s.Completed == s.Total+s.Rejected && s.SharingWarnings == 0 {
		return notify.LevelSuccess, msg
	}
	return notify.LevelInfo, msg
}

func (b *Batch) startProgressLocked() {
	t := b.tasks[0]
	b.progress = b.opts.Progress
	b.progressTask = t
	sink, id, o := b.progress, t.ID, b.o
	cfg := notify.ProgressConfig{
		Label:    t.Name,
		OnCancel: func() { _ = o.Cancel(id) },
	}
	o.events.enqueue(func() { sink.Start(cfg) })
}

func (b *Batch) stopProgressLocked() {
	if b.progress == nil {
		return
	}
	sink := b.progress
	b.progress = nil
	b.o.events.enqueue(sink.Stop)
}
