package workflow

import (
	"errors"
	"fmt"
	"slices"
	"time"

	xe "github.com/opst/modelflow/pkg/errors"
)

var ErrInvalidGraph = errors.New("invalid workflow graph")

// Condition holds when the flag in the Context equals the expected value.
type Condition struct {
	Flag   string `json:"flag" yaml:"flag"`
	Equals bool   `json:"equals" yaml:"equals"`
}

// When is a shorthand of &Condition{Flag: flag, Equals: equals}.
func When(flag string, equals bool) *Condition {
	return &Condition{Flag: flag, Equals: equals}
}

// Holds reports the condition against c. nil condition always holds.
func (cond *Condition) Holds(c Context) bool {
	if cond == nil {
		return true
	}
	return c.Flag(cond.Flag) == cond.Equals
}

func (cond *Condition) String() string {
	if cond == nil {
		return "(otherwise)"
	}
	return fmt.Sprintf("%s == %t", cond.Flag, cond.Equals)
}

// Transition is an outgoing edge of a state.
type Transition struct {
	// nil means unconditional.
	When *Condition `json:"when,omitempty" yaml:"when,omitempty"`

	Next string `json:"next" yaml:"next"`

	// When positive, the instance is suspended for Wait before entering Next.
	// A wait-edge pointing back to a polling state forms a polling loop.
	Wait time.Duration `json:"wait,omitempty" yaml:"wait,omitempty"`
}

// Catch redirects failures of the listed kinds to Next.
type Catch struct {
	Kinds []xe.Kind `json:"kinds" yaml:"kinds"`
	Next  string    `json:"next" yaml:"next"`
}

func (c Catch) Matches(kind xe.Kind) bool {
	return slices.Contains(c.Kinds, kind)
}

// State is a node of a workflow graph.
type State struct {
	Name string `json:"name" yaml:"name"`

	// Name of the action run on entering this state.
	// Empty means this state is a decision node.
	Action string `json:"action,omitempty" yaml:"action,omitempty"`

	// Outgoing transitions, evaluated in order. The first one which holds is taken.
	// The last one must be unconditional.
	Transitions []Transition `json:"transitions,omitempty" yaml:"transitions,omitempty"`

	// Catch clauses, evaluated in order when the action fails.
	Catch []Catch `json:"catch,omitempty" yaml:"catch,omitempty"`

	// Timeout of the action. Zero means the engine default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Name of the polling loop this state polls in.
	// Entering a state of another loop resets pollCount.
	PollLoop string `json:"pollLoop,omitempty" yaml:"pollLoop,omitempty"`

	Terminal Terminal `json:"terminal,omitempty" yaml:"terminal,omitempty"`
}

func (s State) IsTerminal() bool {
	return s.Terminal != NotTerminal
}

// IsDecision reports whether the state has no action.
func (s State) IsDecision() bool {
	return !s.IsTerminal() && s.Action == ""
}

// Next finds the transition to be taken from this state.
func (s State) Next(c Context) (Transition, bool) {
	for _, t := range s.Transitions {
		if t.When.Holds(c) {
			return t, true
		}
	}
	return Transition{}, false
}

// Caught finds the catch clause for the failure kind.
func (s State) Caught(kind xe.Kind) (Catch, bool) {
	for _, c := range s.Catch {
		if c.Matches(kind) {
			return c, true
		}
	}
	return Catch{}, false
}

// Goto is an unconditional transition to next.
func Goto(next string) Transition {
	return Transition{Next: next}
}

// Graph is a state table of a workflow.
type Graph struct {
	Name    Name    `json:"name" yaml:"name"`
	Initial string  `json:"initial" yaml:"initial"`
	States  []State `json:"states" yaml:"states"`

	index map[string]int
}

// NewGraph builds and validates a graph.
func NewGraph(name Name, initial string, states ...State) (*Graph, error) {
	g := &Graph{Name: name, Initial: initial, States: states}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// State looks up a state by name.
func (g *Graph) State(name string) (State, bool) {
	if g.index == nil {
		g.reindex()
	}
	i, ok := g.index[name]
	if !ok {
		return State{}, false
	}
	return g.States[i], true
}

// Actions lists action names referred by states, in declaration order.
func (g *Graph) Actions() []string {
	actions := []string{}
	for _, s := range g.States {
		if s.Action != "" && !slices.Contains(actions, s.Action) {
			actions = append(actions, s.Action)
		}
	}
	return actions
}

func (g *Graph) reindex() {
	g.index = make(map[string]int, len(g.States))
	for i, s := range g.States {
		g.index[s.Name] = i
	}
}

func invalid(graph Name, format string, args ...any) error {
	return fmt.Errorf("%w (%s): %s", ErrInvalidGraph, graph, fmt.Sprintf(format, args...))
}

// Validate checks structure of the graph.
func (g *Graph) Validate() error {
	g.reindex()
	if len(g.index) != len(g.States) {
		return invalid(g.Name, "state names are not unique")
	}
	if _, ok := g.index[""]; ok {
		return invalid(g.Name, "a state has no name")
	}
	if _, ok := g.index[g.Initial]; !ok {
		return invalid(g.Name, "initial state %q is missing", g.Initial)
	}

	exists := func(name string) bool {
		_, ok := g.index[name]
		return ok
	}

	terminals := 0
	for _, s := range g.States {
		if s.IsTerminal() {
			terminals += 1
			if s.Terminal != SuccessTerminal && s.Terminal != FailureTerminal {
				return invalid(g.Name, "state %s: unknown terminal tag %q", s.Name, s.Terminal)
			}
			if s.Action != "" || len(s.Transitions) != 0 || len(s.Catch) != 0 {
				return invalid(g.Name, "terminal state %s has action or outgoing edges", s.Name)
			}
			continue
		}

		if len(s.Transitions) == 0 {
			return invalid(g.Name, "state %s has no transitions", s.Name)
		}
		for i, t := range s.Transitions {
			last := i == len(s.Transitions)-1
			if last && t.When != nil {
				return invalid(g.Name, "state %s: the last transition must be unconditional", s.Name)
			}
			if !last && t.When == nil {
				return invalid(g.Name, "state %s: unconditional transition #%d shadows following ones", s.Name, i)
			}
			if !exists(t.Next) {
				return invalid(g.Name, "state %s: transition to unknown state %q", s.Name, t.Next)
			}
			if t.Wait < 0 {
				return invalid(g.Name, "state %s: negative wait", s.Name)
			}
		}

		if s.IsDecision() && len(s.Catch) != 0 {
			return invalid(g.Name, "decision state %s can not catch failures", s.Name)
		}
		for _, c := range s.Catch {
			if len(c.Kinds) == 0 {
				return invalid(g.Name, "state %s: catch clause without kinds", s.Name)
			}
			if !exists(c.Next) {
				return invalid(g.Name, "state %s: catch to unknown state %q", s.Name, c.Next)
			}
		}
	}
	if terminals == 0 {
		return invalid(g.Name, "no terminal states")
	}
	return nil
}
