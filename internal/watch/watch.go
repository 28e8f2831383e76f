// Package watch reports files dropped into a directory once they have finished being written.
package watch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettleDelay is how long a file's size must stay unchanged before it is reported.
const DefaultSettleDelay = 500 * time.Millisecond

var debugEnabled = os.Getenv("ATELIER_DEBUG") != ""

func debugLog(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[ATELIER_DEBUG] "+format, args...)
	}
}

// Event is a settled file, or an error from the underlying watcher.
type Event struct {
	Path string
	Err  error
}

type candidate struct {
	size    int64
	changed time.Time
}

// Watcher watches one directory, non-recursively.
type Watcher struct {
	fs     *fsnotify.Watcher
	dir    string
	settle time.Duration

	events chan Event
	done   chan struct{}
	ready  chan struct{}
	exited chan struct{}

	mu     sync.Mutex
	closed bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// New starts watching dir, creating it if needed.
func New(dir string, opts ...Option) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create drop directory %s: %w", dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch drop directory %s: %w", dir, err)
	}

	w := &Watcher{
		fs:     fsw,
		dir:    dir,
		settle: DefaultSettleDelay,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
		exited: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.loop()
	return w, nil
}

// Events returns the channel of settled files. It is closed by Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Ready is closed once the watch loop is running.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	err := w.fs.Close()
	<-w.exited
	return err
}

// Ignored reports whether a file name looks hidden or still being downloaded.
func Ignored(name string) bool {
	base := filepath.Base(name)
	switch {
	case strings.HasPrefix(base, "."):
		return true
	case strings.HasSuffix(base, "~"):
		return true
	case strings.HasSuffix(base, ".part"), strings.HasSuffix(base, ".crdownload"):
		return true
	}
	return false
}

func (w *Watcher) loop() {
	defer close(w.exited)
	defer close(w.events)
	close(w.ready)

	pending := make(map[string]candidate)
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if Ignored(event.Name) {
				continue
			}
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				info, err := os.Stat(event.Name)
				if err != nil || info.IsDir() {
					continue
				}
				pending[event.Name] = candidate{size: info.Size(), changed: time.Now()}
				debugLog("watch: %s changed, size %d", event.Name, info.Size())
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, event.Name)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if !w.send(Event{Err: err}) {
				return
			}

		case now := <-ticker.C:
			for path, c := range pending {
				info, err := os.Stat(path)
				if err != nil {
					delete(pending, path)
					continue
				}
				if info.Size() != c.size {
					pending[path] = candidate{size: info.Size(), changed: now}
					continue
				}
				if now.Sub(c.changed) < w.settle {
					continue
				}
				delete(pending, path)
				if !w.send(Event{Path: path}) {
					return
				}
			}
		}
	}
}

func (w *Watcher) send(e Event) bool {
	select {
	case w.events <- e:
		return true
	case <-w.done:
		return false
	}
}
