package model

// WorkflowStatus is the single state of the studio workflow
type WorkflowStatus string

const (
	StatusIdle       WorkflowStatus = "idle"
	StatusPreparing  WorkflowStatus = "preparing"
	StatusGenerating WorkflowStatus = "generating"
	StatusPolling    WorkflowStatus = "polling"
	StatusCompleted  WorkflowStatus = "completed"
	StatusError      WorkflowStatus = "error"
)

// IsBusy reports whether a generation is in flight.
func (s WorkflowStatus) IsBusy() bool {
	switch s {
	case StatusPreparing, StatusGenerating, StatusPolling:
		return true
	}
	return false
}

// IsTerminal reports whether a run has finished, successfully or not.
func (s WorkflowStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}
