package events

// ExecutorOutput is the payload of TypeExecutorOutput.
type ExecutorOutput struct {
	Line string `json:"line"`
}

// ExecutorState is the payload of TypeExecutorState.
type ExecutorState struct {
	State    string `json:"state"`
	PID      int    `json:"pid,omitempty"`
	ExitCode int    `json:"exit_code"`
}
