package workflow

import "fmt"

// Status of a workflow instance.
type Status string

const (
	Running          Status = "running"
	Succeeded        Status = "succeeded"
	Failed           Status = "failed"
	UnmatchedFailure Status = "unmatched-failure"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether the instance has stopped.
func (s Status) Terminal() bool {
	switch s {
	case Succeeded, Failed, UnmatchedFailure:
		return true
	}
	return false
}

func AsStatus(s string) (Status, error) {
	switch Status(s) {
	case Running, Succeeded, Failed, UnmatchedFailure:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown workflow status: %s", s)
}

// Terminal tags a terminal state.
type Terminal string

const (
	// the state is not terminal.
	NotTerminal Terminal = ""

	SuccessTerminal Terminal = "success"
	FailureTerminal Terminal = "failure"
)

// Status of an instance stopped at a terminal state with this tag.
func (t Terminal) Status() Status {
	switch t {
	case SuccessTerminal:
		return Succeeded
	case FailureTerminal:
		return Failed
	}
	return Running
}

// Name of a workflow graph.
type Name string

func (n Name) String() string {
	return string(n)
}
