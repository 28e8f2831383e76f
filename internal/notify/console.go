package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Console writes notifications, task transitions and batch summaries as colored lines.
// Progress-only updates are not printed; use a ProgressSink or the panel for those.
type Console struct {
	w       io.Writer
	verbose bool

	mu         sync.Mutex
	lastStatus map[string]string

	green  *color.Color
	yellow *color.Color
	blue   *color.Color
	red    *color.Color
}

// NewConsole creates a Console writing to w. With verbose, every task transition is printed.
func NewConsole(w io.Writer, verbose bool) *Console {
	return &Console{
		w:          w,
		verbose:    verbose,
		lastStatus: make(map[string]string),
		green:      color.New(color.FgGreen),
		yellow:     color.New(color.FgYellow, color.Bold),
		blue:       color.New(color.FgBlue),
		red:        color.New(color.FgRed),
	}
}

// Notify implements Sink.
func (c *Console) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch n.Level {
	case LevelSuccess:
		c.green.Fprintf(c.w, "  ✓ %s\n", n.Message)
	case LevelWarning:
		c.yellow.Fprintf(c.w, "  ⚠ %s\n", n.Message)
	case LevelError:
		c.red.Fprintf(c.w, "  ✗ %s\n", n.Message)
	default:
		fmt.Fprintf(c.w, "  → %s\n", n.Message)
	}
}

// TaskChanged implements Sink.
func (c *Console) TaskChanged(e TaskEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.Removed {
		delete(c.lastStatus, e.TaskID)
		if c.verbose {
			fmt.Fprintf(c.w, "  - %s removed\n", e.Name)
		}
		return
	}
	if c.lastStatus[e.TaskID] == e.Status {
		return
	}
	c.lastStatus[e.TaskID] = e.Status
	if c.verbose {
		c.blue.Fprintf(c.w, "  [%s] %s\n", e.Status, e.Name)
	}
}

// BatchChanged implements Sink. Only settled batches are printed.
func (c *Console) BatchChanged(s BatchSummary) {
	if !s.Settled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	line := fmt.Sprintf("Batch complete: %d of %d uploaded, %d failed, %d cancelled",
		s.Completed, s.Total, s.Failed, s.Cancelled)
	if s.SharingWarnings > 0 {
		line += fmt.Sprintf(", %d not shared", s.SharingWarnings)
	}
	if s.Rejected > 0 {
		line += fmt.Sprintf(", %d rejected", s.Rejected)
	}
	if s.Failed > 0 {
		c.yellow.Fprintln(c.w, line)
		return
	}
	c.green.Fprintln(c.w, line)
}
