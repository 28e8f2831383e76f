package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/commons-systems/atelier/internal/drive"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("orchestrator closed")

	// ErrTaskNotFound is returned for unknown or removed task ids.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition matches every TransitionError.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// TransitionError reports an operation that is not allowed from the task's current state.
type TransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: invalid state transition from %s to %s", e.TaskID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// shortError turns an upload failure into the message shown next to the task.
func shortError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "upload timed out"
	}
	if errors.Is(err, drive.ErrUnauthenticated) {
		return "not signed in"
	}
	var opErr *drive.OperationError
	if errors.As(err, &opErr) {
		switch {
		case opErr.Unauthorized():
			return "authorization expired, sign in again"
		case opErr.StatusCode != 0 && opErr.Err != nil && opErr.Err.Error() != "":
			return fmt.Sprintf("%s (%d)", opErr.Err.Error(), opErr.StatusCode)
		case opErr.StatusCode != 0:
			return fmt.Sprintf("%s (%d)", opErr.Status, opErr.StatusCode)
		case opErr.Err != nil:
			return opErr.Err.Error()
		}
	}
	return err.Error()
}
