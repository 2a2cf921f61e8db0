package recurring_test

import (
	"context"
	"errors"
	"flag"
	"testing"
	"time"

	"github.com/opst/modelflow/cmd/orchestrator/recurring"
	"github.com/opst/modelflow/pkg/loop"
)

func TestParsePolicy(t *testing.T) {
	for name, testcase := range map[string]struct {
		when        string
		then        recurring.Policy
		expectError bool
	}{
		"forever means forever": {
			when: "forever",
			then: recurring.Forever(0),
		},
		"forever:3s means forever with cooldown 3 seconds": {
			when: "forever:3s",
			then: recurring.Forever(3 * time.Second),
		},
		"forever:someday can not be parsed": {
			when:        "forever:someday",
			expectError: true,
		},
		"forever:-1s can not be parsed": {
			when:        "forever:-1s",
			expectError: true,
		},
		"backlog means backlog": {
			when: "backlog",
			then: recurring.Backlog(),
		},
		"backlog:param can not be parsed": {
			when:        "backlog:param",
			expectError: true,
		},
		"empty string can not be parsed": {
			when:        "",
			expectError: true,
		},
		"unknown policy can not be parsed": {
			when:        "sometimes",
			expectError: true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			actual, err := recurring.ParsePolicy(testcase.when)

			if testcase.expectError {
				if err == nil {
					t.Fatal("expected error does not occur")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if actual != testcase.then {
				t.Errorf("unmatch: (actual, expected) = (%v, %v)", actual, testcase.then)
			}
		})
	}
}

func TestFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	policy := recurring.NewFlag(recurring.Forever(time.Second))
	fs.Var(policy, "policy", "loop policy")

	if policy.String() != "forever:1s" {
		t.Errorf("default: %s", policy)
	}
	if err := fs.Parse([]string{"-policy", "backlog"}); err != nil {
		t.Fatal(err)
	}
	if policy.Policy != recurring.Backlog() {
		t.Errorf("parsed: %s", policy)
	}
	if err := policy.Set("never"); err == nil {
		t.Error("unknown policy is accepted")
	}
}

func TestPolicy_Next(t *testing.T) {
	fakeErr := errors.New("fake error")

	theory := func(p recurring.Policy, progressed bool, err error, expected loop.Next) func(*testing.T) {
		return func(t *testing.T) {
			actual := p.Next(progressed, err)
			if actual.Breaking() != expected.Breaking() || actual.Interval() != expected.Interval() {
				t.Errorf("next: %s, expected %s", actual, expected)
			}
		}
	}

	t.Run("forever continues immediately after progress", theory(
		recurring.Forever(time.Minute), true, nil, loop.Continue(0),
	))
	t.Run("forever cools down without progress", theory(
		recurring.Forever(time.Minute), false, nil, loop.Continue(time.Minute),
	))
	t.Run("forever ignores errors", theory(
		recurring.Forever(time.Minute), false, fakeErr, loop.Continue(time.Minute),
	))
	t.Run("backlog continues after progress", theory(
		recurring.Backlog(), true, nil, loop.Continue(0),
	))
	t.Run("backlog breaks when backlog is over", theory(
		recurring.Backlog(), false, nil, loop.Break(nil),
	))
	t.Run("until error breaks on error", theory(
		recurring.UntilError(recurring.Forever(time.Minute)), true, fakeErr, loop.Break(fakeErr),
	))
	t.Run("until error follows its base", theory(
		recurring.UntilError(recurring.Backlog()), false, nil, loop.Break(nil),
	))
}

func TestTask_Applied(t *testing.T) {
	task := recurring.Task[int](func(_ context.Context, n int) (int, bool, error) {
		return n + 1, n+1 < 3, nil
	})

	last, err := loop.Start(context.Background(), 0, task.Applied(recurring.Backlog()))
	if err != nil {
		t.Fatal(err)
	}
	if last != 3 {
		t.Errorf("last value: %d", last)
	}
}
