package job

import "time"

// State is a step of the retry state machine driven by Executor.
type State string

const (
	StateRunning  State = "running"
	StateRetrying State = "retrying"
	StateSuccess  State = "success"
	StateAborted  State = "aborted"
)

// IsTerminal returns true for states that end the execution.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateAborted
}

// Transition is a state change of one job execution.
type Transition struct {
	JobID     string
	Backend   string
	From      State
	To        State
	Attempt   int
	Err       error
	Timestamp time.Time
}
