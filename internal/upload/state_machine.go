package upload

// transition is one edge of the task lifecycle.
type transition struct {
	From Status
	To   Status
}

var validTransitions = map[transition]bool{
	{StatusPending, StatusUploading}: true,
	{StatusPending, StatusCancelled}: true,

	{StatusUploading, StatusCompleted}: true,
	{StatusUploading, StatusFailed}:    true,
	{StatusUploading, StatusPaused}:    true,
	{StatusUploading, StatusCancelled}: true,

	{StatusPaused, StatusUploading}: true,
	{StatusPaused, StatusCancelled}: true,

	// Retry
	{StatusFailed, StatusPending}:   true,
	{StatusFailed, StatusCancelled}: true,
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to Status) bool {
	return validTransitions[transition{From: from, To: to}]
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status Status) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// IsSettled reports whether a task no longer needs the scheduler: it is terminal or failed.
func IsSettled(status Status) bool {
	return IsTerminal(status) || status == StatusFailed
}

func validateTransition(taskID string, from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{TaskID: taskID, From: from, To: to}
	}
	return nil
}
