package upload

import "sync"

// dispatcher runs queued callbacks one at a time on its own goroutine so sinks are called in
// emission order without holding the orchestrator lock.
type dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	pending int
	closed  bool
	done    chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

func (d *dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.pending++
	d.cond.Broadcast()
}

// flush blocks until every callback queued so far has returned. It must not be called from
// a callback.
func (d *dispatcher) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.pending > 0 {
		d.cond.Wait()
	}
}

// close drains the queue and stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()

		d.mu.Lock()
		d.pending--
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}
