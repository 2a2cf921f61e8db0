package workflow_test

import (
	"errors"
	"testing"
	"time"

	"github.com/opst/modelflow/pkg/domain/workflow"
	xe "github.com/opst/modelflow/pkg/errors"
)

func TestNewGraph(t *testing.T) {
	valid := func() []workflow.State {
		return []workflow.State{
			{
				Name: "Poll", Action: "poll", PollLoop: "loop",
				Transitions: []workflow.Transition{workflow.Goto("Done?")},
				Catch:       []workflow.Catch{{Kinds: []xe.Kind{xe.MaxPollsExceeded}, Next: "Fail"}},
			},
			{
				Name: "Done?",
				Transitions: []workflow.Transition{
					{When: workflow.When(workflow.FieldContinuePolling, true), Next: "Poll", Wait: time.Minute},
					workflow.Goto("Ok"),
				},
			},
			{Name: "Ok", Terminal: workflow.SuccessTerminal},
			{Name: "Fail", Terminal: workflow.FailureTerminal},
		}
	}

	t.Run("it accepts a valid graph", func(t *testing.T) {
		g, err := workflow.NewGraph("test", "Poll", valid()...)
		if err != nil {
			t.Fatal(err)
		}
		if s, ok := g.State("Done?"); !ok || !s.IsDecision() {
			t.Errorf("unexpected state: %+v", s)
		}
		if actions := g.Actions(); len(actions) != 1 || actions[0] != "poll" {
			t.Errorf("unexpected actions: %v", actions)
		}
	})

	for name, mutate := range map[string]func(states []workflow.State) (string, []workflow.State){
		"missing initial state": func(s []workflow.State) (string, []workflow.State) {
			return "Nowhere", s
		},
		"duplicated state": func(s []workflow.State) (string, []workflow.State) {
			return "Poll", append(s, workflow.State{Name: "Ok", Terminal: workflow.SuccessTerminal})
		},
		"transition to unknown state": func(s []workflow.State) (string, []workflow.State) {
			s[0].Transitions = []workflow.Transition{workflow.Goto("Unknown")}
			return "Poll", s
		},
		"conditional last transition": func(s []workflow.State) (string, []workflow.State) {
			s[1].Transitions = s[1].Transitions[:1]
			return "Poll", s
		},
		"shadowing default transition": func(s []workflow.State) (string, []workflow.State) {
			s[1].Transitions = []workflow.Transition{workflow.Goto("Ok"), workflow.Goto("Poll")}
			return "Poll", s
		},
		"catch to unknown state": func(s []workflow.State) (string, []workflow.State) {
			s[0].Catch[0].Next = "Unknown"
			return "Poll", s
		},
		"catch without kinds": func(s []workflow.State) (string, []workflow.State) {
			s[0].Catch[0].Kinds = nil
			return "Poll", s
		},
		"terminal with transitions": func(s []workflow.State) (string, []workflow.State) {
			s[2].Transitions = []workflow.Transition{workflow.Goto("Poll")}
			return "Poll", s
		},
		"no terminal": func(s []workflow.State) (string, []workflow.State) {
			return "Poll", s[:2]
		},
		"non-terminal without transitions": func(s []workflow.State) (string, []workflow.State) {
			s[0].Transitions = nil
			return "Poll", s
		},
	} {
		t.Run("it rejects "+name, func(t *testing.T) {
			initial, states := mutate(valid())
			_, err := workflow.NewGraph("test", initial, states...)
			if !errors.Is(err, workflow.ErrInvalidGraph) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestState_Next(t *testing.T) {
	s := workflow.State{
		Name: "Choice",
		Transitions: []workflow.Transition{
			{When: workflow.When("a", true), Next: "A"},
			{When: workflow.When("b", true), Next: "B"},
			workflow.Goto("C"),
		},
	}

	for name, testcase := range map[string]struct {
		context  workflow.Context
		expected string
	}{
		"first true wins": {
			context:  workflow.NewContext("m").WithFlag("a", true).WithFlag("b", true),
			expected: "A",
		},
		"second one when first does not hold": {
			context:  workflow.NewContext("m").WithFlag("b", true),
			expected: "B",
		},
		"falls through to default": {
			context:  workflow.NewContext("m"),
			expected: "C",
		},
	} {
		t.Run(name, func(t *testing.T) {
			tr, ok := s.Next(testcase.context)
			if !ok || tr.Next != testcase.expected {
				t.Errorf("(actual, expected) = (%s, %s)", tr.Next, testcase.expected)
			}
		})
	}
}
