package notify

import "sync"

// EventKind identifies which field of Event is set.
type EventKind string

const (
	KindNotification EventKind = "notification"
	KindTask         EventKind = "task"
	KindBatch        EventKind = "batch"
)

// Event is a Sink call captured as a value so it can travel over a channel.
type Event struct {
	Kind         EventKind
	Notification Notification
	Task         TaskEvent
	Batch        BatchSummary
}

// Subscriber receives broadcast events. A subscriber that falls behind never loses a
// notification, a status change or a batch summary: while it catches up, queued progress
// updates of the same task and status collapse into the latest one, and a newer summary
// of a batch replaces the queued one.
type Subscriber struct {
	Events <-chan Event

	out     chan Event
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	closed  bool
	stopped bool
	stop    chan struct{}
}

func newSubscriber(bufferSize int) *Subscriber {
	out := make(chan Event, bufferSize)
	s := &Subscriber{Events: out, out: out, stop: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

func (s *Subscriber) push(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	switch e.Kind {
	case KindTask:
		if i := s.lastTaskLocked(e.Task.TaskID); i >= 0 {
			queued := s.queue[i].Task
			if !e.Task.Removed && !queued.Removed && queued.Status == e.Task.Status {
				s.queue[i] = e
				return
			}
		}
	case KindBatch:
		for i := len(s.queue) - 1; i >= 0; i-- {
			if s.queue[i].Kind == KindBatch && s.queue[i].Batch.BatchID == e.Batch.BatchID {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
	}
	s.queue = append(s.queue, e)
	s.cond.Signal()
}

func (s *Subscriber) lastTaskLocked(taskID string) int {
	for i := len(s.queue) - 1; i >= 0; i-- {
		if s.queue[i].Kind == KindTask && s.queue[i].Task.TaskID == taskID {
			return i
		}
	}
	return -1
}

// pump moves queued events to the channel and closes it once the queue is drained after
// close, or at once after stop.
func (s *Subscriber) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 || s.stopped {
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.stop:
			return
		}
	}
}

// close stops accepting events; what is queued is still delivered.
func (s *Subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

// abort stops accepting events and discards what is queued.
func (s *Subscriber) abort() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	if !s.stopped {
		s.stopped = true
		close(s.stop)
	}
	s.cond.Signal()
	s.mu.Unlock()
}

// Broadcaster is a Sink that fans events out to subscribers without waiting for them.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]bool
	bufferSize  int
}

// NewBroadcaster creates a Broadcaster whose subscriber channels buffer bufferSize events.
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Broadcaster{
		subscribers: make(map[*Subscriber]bool),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new subscriber.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := newSubscriber(b.bufferSize)
	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub, drops anything it has not read yet and closes its channel.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		sub.abort()
	}
}

// Close removes every subscriber. Each channel closes after its queued events are read.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		delete(b.subscribers, sub)
		sub.close()
	}
}

func (b *Broadcaster) Notify(n Notification) {
	b.broadcast(Event{Kind: KindNotification, Notification: n})
}

func (b *Broadcaster) TaskChanged(e TaskEvent) {
	b.broadcast(Event{Kind: KindTask, Task: e})
}

func (b *Broadcaster) BatchChanged(s BatchSummary) {
	b.broadcast(Event{Kind: KindBatch, Batch: s})
}

func (b *Broadcaster) broadcast(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		sub.push(e)
	}
}
