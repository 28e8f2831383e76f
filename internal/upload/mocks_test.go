package upload

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/commons-systems/atelier/internal/auth"
	"github.com/commons-systems/atelier/internal/compress"
	"github.com/commons-systems/atelier/internal/drive"
	"github.com/commons-systems/atelier/internal/files"
	"github.com/commons-systems/atelier/internal/notify"
)

// mockStorage uploads instantly unless a gate is set, in which case every upload blocks
// until the gate is closed or its context ends.
type mockStorage struct {
	mu       sync.Mutex
	gate     chan struct{}
	errFor   map[string]error
	shareErr map[string]error
	names    []string

	calls    int64
	inFlight int64
	maxSeen  int64
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		errFor:   make(map[string]error),
		shareErr: make(map[string]error),
	}
}

func (m *mockStorage) UploadFile(ctx context.Context, file files.File, opts drive.UploadOptions) (*drive.UploadResult, error) {
	n := atomic.AddInt64(&m.calls, 1)
	cur := atomic.AddInt64(&m.inFlight, 1)
	defer atomic.AddInt64(&m.inFlight, -1)
	for {
		seen := atomic.LoadInt64(&m.maxSeen)
		if cur <= seen || atomic.CompareAndSwapInt64(&m.maxSeen, seen, cur) {
			break
		}
	}

	m.mu.Lock()
	gate := m.gate
	err := m.errFor[file.Name]
	shareErr := m.shareErr[file.Name]
	m.names = append(m.names, file.Name)
	m.mu.Unlock()

	if opts.OnProgress != nil {
		opts.OnProgress(0.5)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if opts.OnProgress != nil {
		opts.OnProgress(1)
	}
	id := fmt.Sprintf("id-%d", n)
	return &drive.UploadResult{
		FileID:     id,
		Name:       file.Name,
		URL:        drive.ViewURL(id),
		SharingErr: shareErr,
	}, nil
}

func (m *mockStorage) setGate(ch chan struct{}) {
	m.mu.Lock()
	m.gate = ch
	m.mu.Unlock()
}

func (m *mockStorage) failWith(name string, err error) {
	m.mu.Lock()
	m.errFor[name] = err
	m.mu.Unlock()
}

func (m *mockStorage) clearFailure(name string) {
	m.mu.Lock()
	delete(m.errFor, name)
	m.mu.Unlock()
}

func (m *mockStorage) uploadedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.names...)
}

// mockSession is an Authenticator whose login outcome is chosen by the test.
type mockSession struct {
	mu            sync.Mutex
	authenticated bool
	loginErr      string
	autoLogin     bool
	listeners     map[int]auth.Listener
	nextID        int

	loginCalls      int64
	invalidateCalls int64
}

func newMockSession(authenticated bool) *mockSession {
	return &mockSession{
		authenticated: authenticated,
		autoLogin:     true,
		listeners:     make(map[int]auth.Listener),
	}
}

func (m *mockSession) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

func (m *mockSession) Login(ctx context.Context) {
	atomic.AddInt64(&m.loginCalls, 1)
	m.mu.Lock()
	auto, reason := m.autoLogin, m.loginErr
	m.mu.Unlock()
	if !auto {
		return
	}
	if reason != "" {
		m.complete(auth.Event{Kind: auth.EventFailed, Reason: reason})
		return
	}
	m.complete(auth.Event{Kind: auth.EventSucceeded})
}

// complete finishes a login and notifies listeners the way auth.Session does.
func (m *mockSession) complete(e auth.Event) {
	m.mu.Lock()
	if e.Kind == auth.EventSucceeded {
		m.authenticated = true
	}
	listeners := make([]auth.Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()
	for _, l := range listeners {
		l.AuthChanged(e)
	}
}

func (m *mockSession) Subscribe(l auth.Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *mockSession) Invalidate(ctx context.Context) {
	atomic.AddInt64(&m.invalidateCalls, 1)
	m.mu.Lock()
	m.authenticated = false
	m.mu.Unlock()
}

type mockCompressor struct {
	err   error
	calls int64
}

func (m *mockCompressor) Compress(ctx context.Context, file files.File, opts compress.Options) (files.File, error) {
	atomic.AddInt64(&m.calls, 1)
	if opts.OnProgress != nil {
		opts.OnProgress(1)
	}
	if m.err != nil {
		return file, m.err
	}
	half := file.Data[:len(file.Data)/2]
	return files.New("small-"+file.Name, half, "image/jpeg"), nil
}

// recordingSink keeps everything it receives.
type recordingSink struct {
	mu            sync.Mutex
	notifications []notify.Notification
	tasks         []notify.TaskEvent
	batches       []notify.BatchSummary
}

func (r *recordingSink) Notify(n notify.Notification) {
	r.mu.Lock()
	r.notifications = append(r.notifications, n)
	r.mu.Unlock()
}

func (r *recordingSink) TaskChanged(e notify.TaskEvent) {
	r.mu.Lock()
	r.tasks = append(r.tasks, e)
	r.mu.Unlock()
}

func (r *recordingSink) BatchChanged(s notify.BatchSummary) {
	r.mu.Lock()
	r.batches = append(r.batches, s)
	r.mu.Unlock()
}

func (r *recordingSink) messages(level notify.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.notifications {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}

func (r *recordingSink) taskEvents(id string) []notify.TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.TaskEvent
	for _, e := range r.tasks {
		if e.TaskID == id {
			out = append(out, e)
		}
	}
	return out
}

// recordingProgress is a notify.ProgressSink that records calls.
type recordingProgress struct {
	mu       sync.Mutex
	started  int
	stopped  int
	updates  []float64
	onCancel func()
}

func (r *recordingProgress) Start(cfg notify.ProgressConfig) {
	r.mu.Lock()
	r.started++
	r.onCancel = cfg.OnCancel
	r.mu.Unlock()
}

func (r *recordingProgress) Update(p float64) {
	r.mu.Lock()
	r.updates = append(r.updates, p)
	r.mu.Unlock()
}

func (r *recordingProgress) Stop() {
	r.mu.Lock()
	r.stopped++
	r.mu.Unlock()
}
