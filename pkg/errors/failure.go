package errors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies failures raised by workflow actions.
//
// Catch clauses of a workflow state match failures by Kind.
type Kind string

const (
	// The remote operation did not reach a terminal status within the allotted attempts.
	MaxPollsExceeded Kind = "MaxPollsExceeded"

	// The stack provisioner rejected a stack creation.
	StackFailedToCreate Kind = "StackFailedToCreate"

	// The stack provisioner reported a state which never becomes ready.
	UnexpectedStackState Kind = "UnexpectedStackState"

	// A remote system explicitly reported failure.
	RemoteFailure Kind = "RemoteFailure"

	// The job given to a workflow is malformed.
	InvalidRequest Kind = "InvalidRequest"

	// An action did not finish within its timeout.
	Timeout Kind = "Timeout"

	// Errors which are not *Failure.
	Unclassified Kind = "Unclassified"
)

func (k Kind) String() string {
	return string(k)
}

// Failure is a typed failure of a workflow action.
type Failure struct {
	Kind    Kind
	Message string
	cause   error
}

func (f *Failure) Error() string {
	if f.cause == nil {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s: %s", f.Kind, f.Message, f.cause.Error())
}

func (f *Failure) Unwrap() error {
	return f.cause
}

// Fail creates a Failure of kind with formatted message.
func Fail(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FailBy creates a Failure of kind caused by err.
func FailBy(kind Kind, message string, err error) *Failure {
	return &Failure{Kind: kind, Message: message, cause: err}
}

// AsFailure classifies err as a Failure.
//
// When err (or an error in its chain) is a *Failure, it is returned.
// context.DeadlineExceeded becomes a Failure of kind Timeout.
// Otherwise, err is wrapped as a Failure of kind Unclassified.
//
// AsFailure(nil) is nil.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	if f := new(Failure); errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailBy(Timeout, "action timed out", err)
	}
	return FailBy(Unclassified, "unexpected error", err)
}

// KindOf returns the Kind of err as AsFailure classifies.
func KindOf(err error) Kind {
	if f := AsFailure(err); f != nil {
		return f.Kind
	}
	return ""
}
