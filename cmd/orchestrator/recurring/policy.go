// Package recurring decides how the orchestrator loop goes on after each cycle.
package recurring

import (
	"fmt"
	"strings"
	"time"

	"github.com/opst/modelflow/pkg/loop"
)

// Policy decides the next of a loop cycle, from whether the cycle has made
// progress and its error.
type Policy interface {
	Next(progressed bool, err error) loop.Next
	String() string
}

// ParsePolicy reads "forever[:COOLDOWN]" or "backlog".
func ParsePolicy(s string) (Policy, error) {
	typ, param, ok := strings.Cut(s, ":")
	switch typ {
	case "forever":
		if !ok || param == "" {
			return Forever(0), nil
		}

		cooldown, err := time.ParseDuration(param)
		if err != nil {
			return nil, fmt.Errorf(`failed to parse: %s as "forever:COOLDOWN": %w`, s, err)
		}
		if cooldown < 0 {
			return nil, fmt.Errorf("cooldown should not be negative: %s", s)
		}
		return Forever(cooldown), nil
	case "backlog":
		if ok {
			return nil, fmt.Errorf("backlog policy does not take paramters: %s", s)
		}
		return Backlog(), nil
	}
	return nil, fmt.Errorf("unknown policy name: %s (should be one of -- forever|backlog)", typ)
}

// Flag is a flag.Value of Policy.
type Flag struct {
	Policy
}

// NewFlag returns Flag with the default policy.
func NewFlag(def Policy) *Flag {
	return &Flag{Policy: def}
}

func (f *Flag) Set(s string) error {
	p, err := ParsePolicy(s)
	if err != nil {
		return err
	}
	f.Policy = p
	return nil
}

func (f *Flag) String() string {
	if f == nil || f.Policy == nil {
		return ""
	}
	return f.Policy.String()
}

// Forever restarts immediately while there are due instances.
// Otherwise, it restarts after cooldown.
func Forever(cooldown time.Duration) Policy {
	return forever(cooldown)
}

type forever time.Duration

func (f forever) String() string {
	return fmt.Sprintf("forever:%s", time.Duration(f).String())
}

func (f forever) Next(progressed bool, err error) loop.Next {
	if progressed {
		return loop.Continue(0)
	}
	return loop.Continue(time.Duration(f))
}

// Backlog restarts immediately while there are due instances.
// Otherwise, it breaks the loop.
func Backlog() Policy {
	return backlog{}
}

type backlog struct{}

func (backlog) String() string {
	return "backlog"
}

func (backlog) Next(progressed bool, err error) loop.Next {
	if progressed {
		return loop.Continue(0)
	}
	return loop.Break(nil)
}

// UntilError breaks the loop with the error of a cycle.
// Otherwise, it follows p.
func UntilError(p Policy) Policy {
	return untilError{base: p}
}

type untilError struct {
	base Policy
}

func (u untilError) String() string {
	return fmt.Sprintf("%s (until error)", u.base.String())
}

func (u untilError) Next(progressed bool, err error) loop.Next {
	if err != nil {
		return loop.Break(err)
	}
	return u.base.Next(progressed, err)
}
