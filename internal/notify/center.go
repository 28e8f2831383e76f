package notify

import (
	"sync"
	"time"
)

// Center keeps the currently visible notifications and dismisses each one once its
// duration has elapsed.
type Center struct {
	mu       sync.Mutex
	active   []Notification
	timers   map[string]*time.Timer
	onChange func([]Notification)
}

// NewCenter creates an empty Center. onChange, if not nil, receives the visible list after
// every change.
func NewCenter(onChange func([]Notification)) *Center {
	return &Center{
		timers:   make(map[string]*time.Timer),
		onChange: onChange,
	}
}

// Show adds a notification and schedules its dismissal.
func (c *Center) Show(n Notification) Notification {
	n = n.Normalize()

	c.mu.Lock()
	c.active = append(c.active, n)
	c.timers[n.ID] = time.AfterFunc(n.Duration, func() { c.Dismiss(n.ID) })
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.changed(snapshot)
	return n
}

// Dismiss removes a notification before its timer fires. Unknown ids are ignored.
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	idx := -1
	for i, n := range c.active {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return
	}
	c.active = append(c.active[:idx], c.active[idx+1:]...)
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.changed(snapshot)
}

// Active returns the visible notifications, oldest first.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close stops every pending dismissal timer.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

// Notify implements part of Sink so a Center can be combined with Funcs or Multi.
func (c *Center) Notify(n Notification) {
	c.Show(n)
}

func (c *Center) snapshotLocked() []Notification {
	out := make([]Notification, len(c.active))
	copy(out, c.active)
	return out
}

func (c *Center) changed(snapshot []Notification) {
	if c.onChange != nil {
		c.onChange(snapshot)
	}
}
