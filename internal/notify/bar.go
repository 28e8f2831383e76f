package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
)

// Bar is a ProgressSink that redraws a single line on a terminal.
type Bar struct {
	w     io.Writer
	model progress.Model

	mu      sync.Mutex
	label   string
	percent float64
	active  bool
	cancel  func()
}

// NewBar creates a Bar of the given width writing to w.
func NewBar(w io.Writer, width int) *Bar {
	if width <= 0 {
		width = 40
	}
	return &Bar{
		w:     w,
		model: progress.New(progress.WithDefaultGradient(), progress.WithWidth(width), progress.WithoutPercentage()),
	}
}

// Start implements ProgressSink.
func (b *Bar) Start(cfg ProgressConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.label = cfg.Label
	b.percent = 0
	b.active = true
	b.cancel = cfg.OnCancel
	b.drawLocked()
}

// Update implements ProgressSink. Values outside 0–100 are clamped and regressions ignored.
func (b *Bar) Update(percent float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return
	}
	if percent > 100 {
		percent = 100
	}
	if percent <= b.percent {
		return
	}
	b.percent = percent
	b.drawLocked()
}

// Stop implements ProgressSink.
func (b *Bar) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return
	}
	b.active = false
	b.cancel = nil
	fmt.Fprintln(b.w)
}

// Cancel invokes the OnCancel callback of the running display, if any.
func (b *Bar) Cancel() bool {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Percent returns the last drawn value.
func (b *Bar) Percent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.percent
}

func (b *Bar) drawLocked() {
	fmt.Fprintf(b.w, "\r%s %s %3.0f%%", b.label, b.model.ViewAs(b.percent/100), b.percent)
}
