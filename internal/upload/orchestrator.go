package upload

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/commons-systems/atelier/internal/auth"
	"github.com/commons-systems/atelier/internal/drive"
	"github.com/commons-systems/atelier/internal/files"
	"github.com/commons-systems/atelier/internal/notify"
	"github.com/commons-systems/atelier/internal/validate"
)

// Orchestrator owns every task. All task state is guarded by mu; uploads run on their own
// goroutines and report back through progress and finish, which drop stale attempts.
type Orchestrator struct {
	storage    Storage
	session    Authenticator
	compressor Compressor
	sink       notify.Sink
	config     Config

	ctx    context.Context
	cancel context.CancelFunc
	events *dispatcher
	stats  statsAccumulator
	wg     sync.WaitGroup

	unsubscribe func()

	mu           sync.Mutex
	batches      []*Batch
	tasks        map[string]*task
	loginPending bool
	closed       bool
}

// task is the mutable record behind a Task snapshot.
type task struct {
	Task
	file  files.File
	batch *Batch

	attempt   int
	cancel    context.CancelFunc
	holdsSlot bool
	resume    bool
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithCompressor enables image compression before upload.
func WithCompressor(c Compressor) Option {
	return func(o *Orchestrator) {
		o.compressor = c
	}
}

// WithSink sets where notifications and task events go.
func WithSink(s notify.Sink) Option {
	return func(o *Orchestrator) {
		o.sink = s
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(o *Orchestrator) {
		o.config = c
	}
}

// WithConcurrency sets the default number of concurrent uploads per batch, clamped to
// 1..MaxConcurrency.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		o.config.Concurrency = clampConcurrency(n)
	}
}

// WithParentFolder sets the destination folder id.
func WithParentFolder(id string) Option {
	return func(o *Orchestrator) {
		o.config.ParentFolderID = id
	}
}

// WithUploadTimeout bounds each upload attempt.
func WithUploadTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.config.UploadTimeout = d
	}
}

// New creates an Orchestrator and subscribes it to session events.
func New(storage Storage, session Authenticator, opts ...Option) (*Orchestrator, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}

	o := &Orchestrator{
		storage: storage,
		session: session,
		sink:    notify.Discard,
		config:  DefaultConfig(),
		tasks:   make(map[string]*task),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sink == nil {
		o.sink = notify.Discard
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid upload configuration: %w", err)
	}

	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.events = newDispatcher()
	o.unsubscribe = session.Subscribe(auth.ListenerFunc(o.authChanged))
	return o, nil
}

// Submit validates files and queues the accepted ones as a new batch. Rejected files are
// reported and never become tasks. The only errors are validate.ErrTooManyFiles and
// ErrClosed.
func (o *Orchestrator) Submit(batch []files.File, opts SubmitOptions) (*Batch, error) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	policy := o.config.Policy
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	concurrency := o.config.Concurrency
	if opts.Concurrency != 0 {
		concurrency = opts.Concurrency
	}
	concurrency = clampConcurrency(concurrency)

	result, err := validate.ValidateBatch(batch, policy)
	if err != nil {
		var countErr *validate.CountError
		if errors.As(err, &countErr) {
			o.notify(notify.LevelError, fmt.Sprintf("You can upload at most %d files at a time", countErr.Max))
		}
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}

	b := &Batch{
		o:        o,
		id:       uuid.NewString(),
		sem:      semaphore.NewWeighted(int64(concurrency)),
		opts:     opts,
		rejected: result.Rejected,
		accepted: len(result.Accepted),
		done:     make(chan struct{}),
	}
	o.batches = append(o.batches, b)
	o.stats.addSubmitted(len(batch))
	o.stats.addRejected(len(result.Rejected))

	for _, r := range result.Rejected {
		o.notifyLocked(notify.LevelError, fmt.Sprintf("%s: %s", r.File.Name, r.Reason))
	}

	for _, a := range result.Accepted {
		t := &task{
			Task: Task{
				ID:       uuid.NewString(),
				BatchID:  b.id,
				Name:     a.File.Name,
				Size:     a.File.Size,
				MimeType: a.File.MimeType,
				Status:   StatusPending,
				Warnings: a.Warnings,
			},
			file:  a.File,
			batch: b,
		}
		b.tasks = append(b.tasks, t)
		o.tasks[t.ID] = t
		for _, w := range a.Warnings {
			o.notifyLocked(notify.LevelWarning, fmt.Sprintf("%s: %s", a.File.Name, w))
		}
		o.emitTaskLocked(t)
	}

	if opts.Progress != nil && len(b.tasks) == 1 {
		b.startProgressLocked()
	}
	o.emitBatchLocked(b)

	if len(b.tasks) == 0 {
		b.finished = true
		close(b.done)
		return b, nil
	}

	o.scheduleLocked()
	return b, nil
}

// Task returns a snapshot of one task.
func (o *Orchestrator) Task(id string) (Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.snapshot(), true
}

// Cancel aborts a pending, uploading, paused or failed task. The slot it held is freed
// immediately and the next pending task starts.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, err := o.lookupLocked(id)
	if err != nil {
		return err
	}
	if err := o.cancelLocked(t); err != nil {
		return err
	}
	o.notifyLocked(notify.LevelInfo, fmt.Sprintf("Upload of %s cancelled", t.Name))
	o.afterChangeLocked(t.batch)
	return nil
}

// Retry puts a failed task back in the queue.
func (o *Orchestrator) Retry(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, err := o.lookupLocked(id)
	if err != nil {
		return err
	}
	if err := o.transitionLocked(t, StatusPending); err != nil {
		return err
	}
	t.Progress = 0
	t.Error = ""
	o.emitTaskLocked(t)
	o.afterChangeLocked(t.batch)
	return nil
}

// Remove deletes a task in any state, aborting it first if it is running. The uploaded
// file, if any, is left in storage.
func (o *Orchestrator) Remove(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, err := o.lookupLocked(id)
	if err != nil {
		return err
	}
	o.abortLocked(t)
	t.attempt++
	delete(o.tasks, id)
	b := t.batch
	for i, bt := range b.tasks {
		if bt == t {
			b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
			break
		}
	}
	ev := o.taskEvent(t)
	ev.Removed = true
	o.events.enqueue(func() { o.sink.TaskChanged(ev) })
	if b.progressTask == t {
		b.stopProgressLocked()
	}
	o.afterChangeLocked(b)
	return nil
}

// Pause stops an uploading task and frees its slot. Progress shown so far is kept.
func (o *Orchestrator) Pause(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, err := o.lookupLocked(id)
	if err != nil {
		return err
	}
	if err := o.transitionLocked(t, StatusPaused); err != nil {
		return err
	}
	o.abortLocked(t)
	o.emitTaskLocked(t)
	o.afterChangeLocked(t.batch)
	return nil
}

// Resume queues a paused task for the next free slot of its batch.
func (o *Orchestrator) Resume(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, err := o.lookupLocked(id)
	if err != nil {
		return err
	}
	if t.Status != StatusPaused {
		return &TransitionError{TaskID: t.ID, From: t.Status, To: StatusUploading}
	}
	t.resume = true
	o.scheduleLocked()
	return nil
}

// SignIn asks for a new login when tasks are waiting for one, typically after a failed
// sign-in. It does nothing while a login is already running or the session is valid.
func (o *Orchestrator) SignIn() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.scheduleLocked()
	return nil
}

// Stats returns counters accumulated since New.
func (o *Orchestrator) Stats() Stats {
	return o.stats.snapshot()
}

// Close aborts every running upload, waits for their goroutines and delivers the remaining
// events. Batches that never settled are released from Wait without OnComplete.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	for _, t := range o.tasks {
		o.abortLocked(t)
	}
	for _, b := range o.batches {
		if !b.finished {
			b.finished = true
			b.stopProgressLocked()
			close(b.done)
		}
	}
	o.tasks = make(map[string]*task)
	o.batches = nil
	o.mu.Unlock()

	o.unsubscribe()
	o.cancel()
	o.wg.Wait()
	o.events.close()
	return nil
}

func (o *Orchestrator) lookupLocked(id string) (*task, error) {
	if o.closed {
		return nil, ErrClosed
	}
	t, ok := o.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

func (o *Orchestrator) transitionLocked(t *task, to Status) error {
	if err := validateTransition(t.ID, t.Status, to); err != nil {
		return err
	}
	t.Status = to
	return nil
}

func (o *Orchestrator) cancelLocked(t *task) error {
	if err := o.transitionLocked(t, StatusCancelled); err != nil {
		return err
	}
	o.abortLocked(t)
	t.Error = ""
	t.resume = false
	o.stats.incrementCancelled()
	o.emitTaskLocked(t)
	return nil
}

// abortLocked cancels the running attempt, if any, and returns its slot.
func (o *Orchestrator) abortLocked(t *task) {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.holdsSlot {
		t.batch.sem.Release(1)
		t.holdsSlot = false
	}
}

// afterChangeLocked refreshes the batch summary, settles the batch if it can and fills any
// freed slots.
func (o *Orchestrator) afterChangeLocked(b *Batch) {
	o.emitBatchLocked(b)
	b.settleLocked()
	o.scheduleLocked()
}

// scheduleLocked starts queued tasks in submission order while their batch has free slots.
// Nothing starts without a session; a single login is requested instead.
func (o *Orchestrator) scheduleLocked() {
	if o.closed {
		return
	}
	for _, b := range o.batches {
		for _, t := range b.tasks {
			if !t.dispatchable() {
				continue
			}
			if !o.session.IsAuthenticated() {
				o.requestLoginLocked()
				return
			}
			if !b.sem.TryAcquire(1) {
				break
			}
			o.startLocked(t)
		}
	}
}

func (o *Orchestrator) requestLoginLocked() {
	if o.loginPending {
		return
	}
	o.loginPending = true
	o.notifyLocked(notify.LevelInfo, "Sign in to Google Drive to start uploading")
	go o.session.Login(o.ctx)
}

func (o *Orchestrator) authChanged(e auth.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.loginPending = false
	switch e.Kind {
	case auth.EventSucceeded:
		o.scheduleLocked()
	case auth.EventFailed:
		if o.hasQueuedLocked() {
			o.notifyLocked(notify.LevelError, fmt.Sprintf("Sign-in failed: %s. Uploads are waiting.", e.Reason))
		}
	}
}

func (o *Orchestrator) hasQueuedLocked() bool {
	for _, b := range o.batches {
		for _, t := range b.tasks {
			if t.dispatchable() {
				return true
			}
		}
	}
	return false
}

func (o *Orchestrator) startLocked(t *task) {
	if err := o.transitionLocked(t, StatusUploading); err != nil {
		log.Printf("WARNING: cannot start task %s: %v", t.ID, err)
		t.batch.sem.Release(1)
		return
	}
	t.attempt++
	t.holdsSlot = true
	t.resume = false

	ctx, cancel := context.WithCancel(o.ctx)
	if o.config.UploadTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, o.config.UploadTimeout)
		parent := cancel
		cancel = func() {
			cancelTimeout()
			parent()
		}
	}
	t.cancel = cancel
	o.emitTaskLocked(t)
	o.emitBatchLocked(t.batch)

	o.wg.Add(1)
	go o.run(ctx, t, t.attempt, t.file)
}

// run performs one attempt without holding the lock.
func (o *Orchestrator) run(ctx context.Context, t *task, attempt int, file files.File) {
	defer o.wg.Done()

	base, span := 0.0, 100.0
	compressed := false
	if file.IsImage() && o.compressor != nil && o.config.CompressImages {
		opts := o.config.Compression
		if opts.MaxSizeBytes <= 0 {
			opts.MaxSizeBytes = o.config.Policy.MaxSizeBytes
		}
		opts.OnProgress = func(f float64) { o.progress(t, attempt, f*50) }
		out, err := o.compressor.Compress(ctx, file, opts)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Printf("WARNING: compression of %s failed, uploading original: %v", file.Name, err)
		case err == nil:
			compressed = out.Size < file.Size
			file = out
		}
		base, span = 50, 50
	}

	if err := ctx.Err(); err != nil {
		o.finish(t, attempt, nil, err, compressed, 0)
		return
	}

	res, err := o.storage.UploadFile(ctx, file, drive.UploadOptions{
		ParentFolderID: o.config.ParentFolderID,
		OnProgress:     func(f float64) { o.progress(t, attempt, base+f*span) },
	})
	if err == nil && res == nil {
		err = errors.New("storage returned no result")
	}
	o.finish(t, attempt, res, err, compressed, file.Size)
}

func (o *Orchestrator) progress(t *task, attempt int, pct float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || t.attempt != attempt || t.Status != StatusUploading {
		return
	}
	if pct > 100 {
		pct = 100
	}
	if pct <= t.Progress {
		return
	}
	t.Progress = pct
	o.emitTaskLocked(t)
}

func (o *Orchestrator) finish(t *task, attempt int, res *drive.UploadResult, err error, compressed bool, size int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || t.attempt != attempt || t.Status != StatusUploading {
		return
	}
	o.abortLocked(t)
	t.Compressed = compressed

	if err != nil {
		_ = o.transitionLocked(t, StatusFailed)
		t.Error = shortError(err)
		o.stats.incrementFailed()
		o.emitTaskLocked(t)
		o.notifyLocked(notify.LevelError, fmt.Sprintf("Failed to upload %s: %s", t.Name, t.Error))
		if drive.IsUnauthorized(err) {
			// Queued tasks must wait for a new login instead of failing with the same token.
			o.session.Invalidate(o.ctx)
		}
		o.afterChangeLocked(t.batch)
		return
	}

	_ = o.transitionLocked(t, StatusCompleted)
	t.Progress = 100
	t.RemoteURL = res.URL
	t.FileID = res.FileID
	t.UploadedAt = time.Now()
	o.stats.incrementCompleted(size)
	if res.SharingErr != nil {
		t.SharingWarning = "uploaded but could not be shared by link"
		t.batch.sharingWarnings++
		o.stats.incrementSharingWarnings()
		log.Printf("WARNING: sharing %s failed: %v", t.Name, res.SharingErr)
	}
	o.emitTaskLocked(t)
	o.notifyLocked(notify.LevelSuccess, fmt.Sprintf("Uploaded %s: %s", t.Name, t.RemoteURL))
	if t.SharingWarning != "" {
		o.notifyLocked(notify.LevelWarning, fmt.Sprintf("%s was %s; open it in Drive to share it", t.Name, t.SharingWarning))
	}
	o.afterChangeLocked(t.batch)
}

func (o *Orchestrator) notify(level notify.Level, msg string) {
	n := notify.Notification{Level: level, Message: msg}.Normalize()
	o.events.enqueue(func() { o.sink.Notify(n) })
}

func (o *Orchestrator) notifyLocked(level notify.Level, msg string) {
	o.notify(level, msg)
}

func (o *Orchestrator) taskEvent(t *task) notify.TaskEvent {
	return notify.TaskEvent{
		BatchID:   t.BatchID,
		TaskID:    t.ID,
		Name:      t.Name,
		Size:      t.Size,
		Status:    string(t.Status),
		Progress:  t.Progress,
		Error:     t.Error,
		RemoteURL: t.RemoteURL,
		Warning:   t.SharingWarning,
	}
}

func (o *Orchestrator) emitTaskLocked(t *task) {
	ev := o.taskEvent(t)
	o.events.enqueue(func() { o.sink.TaskChanged(ev) })
	if b := t.batch; b.progressTask == t && b.progress != nil {
		sink, pct := b.progress, t.Progress
		o.events.enqueue(func() { sink.Update(pct) })
		if IsSettled(t.Status) {
			b.stopProgressLocked()
		}
	}
}

func (o *Orchestrator) emitBatchLocked(b *Batch) {
	s := b.summaryLocked()
	o.events.enqueue(func() { o.sink.BatchChanged(s) })
}

func (t *task) snapshot() Task {
	s := t.Task
	s.Warnings = append([]string(nil), t.Warnings...)
	return s
}

func (t *task) dispatchable() bool {
	return t.Status == StatusPending || (t.Status == StatusPaused && t.resume)
}
