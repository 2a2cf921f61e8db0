// Package errors provides the failure taxonomy of model workflows and
// an error wrapper which remembers where it has been wrapped.
//
// A wrapped error reads like
//
//	@ pkg.Func "/path/file.go" l42 (note) <- cause
//
// so that replacing "<-" with newlines gives you the trail of wrapping sites.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// Traced is an error which knows the site where it has been wrapped.
type Traced struct {
	file     string
	line     int
	funcname string
	note     string
	err      error
}

func (e *Traced) File() string {
	return e.file
}

func (e *Traced) Line() int {
	return e.line
}

func (e *Traced) Error() string {
	if e.note == "" {
		return fmt.Sprintf(`@ %s "%s" l%d <- %s`, e.funcname, e.file, e.line, e.err.Error())
	}
	return fmt.Sprintf(`@ %s "%s" l%d (%s) <- %s`, e.funcname, e.file, e.line, e.note, e.err.Error())
}

func (e *Traced) Unwrap() error {
	return e.err
}

// New creates a new error which knows where it is created.
func New(text string) error {
	return trace("", errors.New(text), 1)
}

// Wrap wraps err with the caller's location.
//
// Wrap(nil) is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return trace("", err, 1)
}

// WrapWithNote wraps err with the caller's location and a short note.
//
// WrapWithNote(_, nil) is nil.
func WrapWithNote(note string, err error) error {
	if err == nil {
		return nil
	}
	return trace(note, err, 1)
}

func trace(note string, err error, depth int) error {
	pc, file, line, ok := runtime.Caller(depth + 1)
	if !ok {
		file = "?"
		line = -1
	}
	funcname := "(unknown func)"
	if fn := runtime.FuncForPC(pc); fn != nil {
		funcname = fn.Name()
	}

	return &Traced{
		funcname: funcname,
		file:     file,
		line:     line,
		note:     note,
		err:      err,
	}
}
