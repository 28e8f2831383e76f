// Package panel is the interactive terminal view of running uploads.
package panel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/commons-systems/atelier/internal/files"
	"github.com/commons-systems/atelier/internal/notify"
)

// Controller performs the actions offered by the panel. *upload.Orchestrator satisfies it.
type Controller interface {
	Cancel(taskID string) error
	Retry(taskID string) error
	Remove(taskID string) error
	Pause(taskID string) error
	Resume(taskID string) error
	// SignIn starts a new login for tasks left waiting by a failed one.
	SignIn() error
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("63")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
)

type eventMsg notify.Event

type closedMsg struct{}

// noticesMsg means the set of visible notifications changed.
type noticesMsg struct{}

// Model is the bubbletea model of the panel.
type Model struct {
	ctrl   Controller
	events <-chan notify.Event
	keys   keyMap
	bar    progress.Model

	center  *notify.Center
	changed chan struct{}

	rows     []notify.TaskEvent
	summary  notify.BatchSummary
	notices  []notify.Notification
	actErr   string
	selected int
	width    int

	exitOnSettle bool
	quitting     bool
}

// Option configures a Model.
type Option func(*Model)

// WithExitOnSettle quits the panel once the batch has settled.
func WithExitOnSettle() Option {
	return func(m *Model) {
		m.exitOnSettle = true
	}
}

// New builds a panel reading from events and acting through ctrl.
func New(ctrl Controller, events <-chan notify.Event, opts ...Option) Model {
	changed := make(chan struct{}, 1)
	center := notify.NewCenter(func([]notify.Notification) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	m := Model{
		ctrl:    ctrl,
		events:  events,
		keys:    defaultKeyMap(),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(24), progress.WithoutPercentage()),
		width:   80,
		center:  center,
		changed: changed,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Run shows the panel until the user quits, ctx ends or, with WithExitOnSettle, the batch
// settles.
func Run(ctx context.Context, ctrl Controller, sub *notify.Subscriber, opts ...Option) error {
	m := New(ctrl, sub.Events, opts...)
	defer m.center.Close()
	p := tea.NewProgram(m, tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run upload panel: %w", err)
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), waitForNotices(m.changed))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case closedMsg:
		m.quitting = true
		return m, tea.Quit

	case noticesMsg:
		m.notices = m.center.Active()
		return m, waitForNotices(m.changed)

	case eventMsg:
		m.apply(notify.Event(msg))
		if m.exitOnSettle && m.finished() {
			m.quitting = true
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.rows)-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.Cancel):
		m.act(m.ctrl.Cancel)
	case key.Matches(msg, m.keys.Retry):
		m.act(m.ctrl.Retry)
	case key.Matches(msg, m.keys.Remove):
		m.act(m.ctrl.Remove)
	case key.Matches(msg, m.keys.SignIn):
		if m.ctrl != nil {
			if err := m.ctrl.SignIn(); err != nil {
				m.actErr = err.Error()
			} else {
				m.actErr = ""
			}
		}
	case key.Matches(msg, m.keys.Pause):
		if row, ok := m.current(); ok && row.Status == "paused" {
			m.act(m.ctrl.Resume)
		} else {
			m.act(m.ctrl.Pause)
		}
	}
	return m, nil
}

// act runs an action on the selected row and records its error for the footer.
func (m *Model) act(fn func(string) error) {
	row, ok := m.current()
	if !ok || m.ctrl == nil {
		return
	}
	if err := fn(row.TaskID); err != nil {
		m.actErr = err.Error()
		return
	}
	m.actErr = ""
}

func (m Model) current() (notify.TaskEvent, bool) {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return notify.TaskEvent{}, false
	}
	return m.rows[m.selected], true
}

func (m *Model) apply(e notify.Event) {
	switch e.Kind {
	case notify.KindNotification:
		m.center.Show(e.Notification)
	case notify.KindBatch:
		m.summary = e.Batch
	case notify.KindTask:
		m.applyTask(e.Task)
	}
}

func (m *Model) applyTask(ev notify.TaskEvent) {
	idx := -1
	for i, r := range m.rows {
		if r.TaskID == ev.TaskID {
			idx = i
			break
		}
	}
	if ev.Removed {
		if idx >= 0 {
			m.rows = append(m.rows[:idx], m.rows[idx+1:]...)
			if m.selected >= len(m.rows) && m.selected > 0 {
				m.selected = len(m.rows) - 1
			}
		}
		return
	}
	if idx < 0 {
		m.rows = append(m.rows, ev)
		return
	}
	m.rows[idx] = ev
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var lines []string
	lines = append(lines, titleStyle.Render("Uploads"))

	if len(m.rows) == 0 {
		lines = append(lines, dimStyle.Render("  No files queued"))
	}
	for i, r := range m.rows {
		line := fmt.Sprintf("%-28s %s %3.0f%% %-10s",
			truncate(r.Name, 28), m.bar.ViewAs(r.Progress/100), r.Progress, r.Status)
		if i == m.selected {
			lines = append(lines, selectedStyle.Render("> "+line))
		} else {
			lines = append(lines, normalStyle.Render("  "+line))
		}
		switch {
		case r.Error != "":
			lines = append(lines, errorStyle.Render("    "+r.Error))
		case r.Warning != "":
			lines = append(lines, warningStyle.Render("    "+r.Warning))
		case r.RemoteURL != "":
			lines = append(lines, dimStyle.Render("    "+r.RemoteURL))
		}
	}

	lines = append(lines, "", m.summaryLine())

	for _, n := range m.notices {
		lines = append(lines, notificationStyle(n.Level).Render(n.Message))
	}
	if m.actErr != "" {
		lines = append(lines, errorStyle.Render(m.actErr))
	}

	lines = append(lines, helpStyle.Render(m.help()))
	return strings.Join(lines, "\n")
}

// finished reports whether the batch needs nothing more from the user. Failed tasks keep
// the panel open so they can be retried.
func (m Model) finished() bool {
	s := m.summary
	if s.Total == 0 {
		return s.Rejected > 0
	}
	return s.Settled() && s.Failed == 0
}

func (m Model) summaryLine() string {
	s := m.summary
	var size int64
	for _, r := range m.rows {
		size += r.Size
	}
	line := fmt.Sprintf("%d/%d completed · %d uploading · %d pending · %d failed · %s",
		s.Completed, s.Total, s.Uploading, s.Pending, s.Failed, files.FormatSize(size))
	if s.Paused > 0 {
		line += fmt.Sprintf(" · %d paused", s.Paused)
	}
	if s.Rejected > 0 {
		line += fmt.Sprintf(" · %d rejected", s.Rejected)
	}
	if s.Total > 0 && s.Settled() && s.Failed > 0 {
		line += " · r to retry, q to quit"
	}
	return line
}

func (m Model) help() string {
	parts := make([]string, 0, len(m.keys.bindings()))
	for _, b := range m.keys.bindings() {
		h := b.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return strings.Join(parts, "  ")
}

func notificationStyle(level notify.Level) lipgloss.Style {
	switch level {
	case notify.LevelError:
		return errorStyle
	case notify.LevelWarning:
		return warningStyle
	case notify.LevelSuccess:
		return successStyle
	}
	return normalStyle
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func waitForNotices(changed <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changed
		return noticesMsg{}
	}
}

func waitForEvent(events <-chan notify.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(e)
	}
}
