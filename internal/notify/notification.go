// Package notify defines what the upload pipeline reports to the user and provides
// terminal renderers for it.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// DefaultDuration is how long a notification stays visible when none is given.
const DefaultDuration = 5 * time.Second

// Notification is a transient message for the user.
type Notification struct {
	ID        string
	Level     Level
	Message   string
	Duration  time.Duration
	CreatedAt time.Time
}

// Normalize fills in the id, creation time and default duration.
func (n Notification) Normalize() Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Duration <= 0 {
		n.Duration = DefaultDuration
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}
	return n
}

// TaskEvent is one entry of the per-task stream shown in batch mode.
type TaskEvent struct {
	BatchID   string  `json:"batchId"`
	TaskID    string  `json:"id"`
	Name      string  `json:"name"`
	Size      int64   `json:"size"`
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	Error     string  `json:"error,omitempty"`
	RemoteURL string  `json:"remoteUrl,omitempty"`
	Warning   string  `json:"warning,omitempty"`
	Removed   bool    `json:"removed,omitempty"`
}

// BatchSummary aggregates a batch by file count.
type BatchSummary struct {
	BatchID         string  `json:"batchId"`
	Total           int     `json:"total"`
	Pending         int     `json:"pending"`
	Uploading       int     `json:"uploading"`
	Paused          int     `json:"paused"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	Cancelled       int     `json:"cancelled"`
	Rejected        int     `json:"rejected"`
	SharingWarnings int     `json:"sharingWarnings"`
	Progress        float64 `json:"progress"`
}

// Settled reports whether no task in the batch can still make progress on its own.
func (s BatchSummary) Settled() bool {
	return s.Pending == 0 && s.Uploading == 0 && s.Paused == 0
}
