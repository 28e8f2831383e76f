package notify

// Sink receives everything the upload pipeline reports. Calls arrive in emission order
// from a single goroutine and must not block for long.
type Sink interface {
	Notify(Notification)
	TaskChanged(TaskEvent)
	BatchChanged(BatchSummary)
}

// ProgressConfig configures a single-file progress display.
type ProgressConfig struct {
	Label string
	// OnCancel, when set, lets the display offer a cancel action.
	OnCancel func()
}

// ProgressSink is the loading-bar contract used when a single file is uploaded.
type ProgressSink interface {
	Start(ProgressConfig)
	Update(percent float64)
	Stop()
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Notify(Notification)       {}
func (discard) TaskChanged(TaskEvent)     {}
func (discard) BatchChanged(BatchSummary) {}

// Multi fans events out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Notify(n Notification) {
	for _, s := range m {
		s.Notify(n)
	}
}

func (m multi) TaskChanged(e TaskEvent) {
	for _, s := range m {
		s.TaskChanged(e)
	}
}

func (m multi) BatchChanged(b BatchSummary) {
	for _, s := range m {
		s.BatchChanged(b)
	}
}

// Funcs adapts plain functions to Sink. Nil fields are skipped.
type Funcs struct {
	OnNotify func(Notification)
	OnTask   func(TaskEvent)
	OnBatch  func(BatchSummary)
}

func (f Funcs) Notify(n Notification) {
	if f.OnNotify != nil {
		f.OnNotify(n)
	}
}

func (f Funcs) TaskChanged(e TaskEvent) {
	if f.OnTask != nil {
		f.OnTask(e)
	}
}

func (f Funcs) BatchChanged(b BatchSummary) {
	if f.OnBatch != nil {
		f.OnBatch(b)
	}
}
