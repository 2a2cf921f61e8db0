package runner_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/opst/modelflow/cmd/orchestrator/runner"
	"github.com/opst/modelflow/pkg/domain/instance"
	mockinstance "github.com/opst/modelflow/pkg/domain/instance/mock"
	"github.com/opst/modelflow/pkg/domain/workflow"
	"github.com/opst/modelflow/pkg/engine"
	xe "github.com/opst/modelflow/pkg/errors"
)

// testEngine:
//
//	Work --(wait 1m)--> Check -> Done
//	Work --(RemoteFailure)--> Broken
func testEngine(t *testing.T, work engine.Action) *engine.Engine {
	t.Helper()
	g, err := workflow.NewGraph(
		"test-workflow", "Work",
		workflow.State{
			Name: "Work", Action: "work",
			Transitions: []workflow.Transition{{Next: "Check", Wait: time.Minute}},
			Catch:       []workflow.Catch{{Kinds: []xe.Kind{xe.RemoteFailure}, Next: "Broken"}},
		},
		workflow.State{
			Name: "Check", Action: "work",
			Transitions: []workflow.Transition{workflow.Goto("Done")},
		},
		workflow.State{Name: "Done", Terminal: workflow.SuccessTerminal},
		workflow.State{Name: "Broken", Terminal: workflow.FailureTerminal},
	)
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(g, engine.Actions{"work": work})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func pickOnce(instances *mockinstance.InstanceInterface, picked instance.Instance, saved *instance.Step) {
	instances.Impl.PickAndStep = func(
		_ context.Context, cursor instance.Cursor, task func(instance.Instance) (instance.Step, error),
	) (instance.Cursor, bool, error) {
		step, err := task(picked)
		if err != nil {
			return cursor, false, err
		}
		*saved = step
		return instance.Cursor{Head: picked.Id, Workflows: cursor.Workflows}, true, nil
	}
}

func TestSeed(t *testing.T) {
	cursor := runner.Seed([]workflow.Name{"a", "b"})
	if cursor.Head != "" || len(cursor.Workflows) != 2 {
		t.Errorf("unexpected cursor: %+v", cursor)
	}
}

func TestTask(t *testing.T) {
	logger := log.New(new(bytes.Buffer), "", 0)

	type when struct {
		instance instance.Instance
		work     engine.Action
	}
	type then struct {
		state  string
		status workflow.Status
		wait   time.Duration
		kind   xe.Kind
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			instances := mockinstance.NewInstanceInterface()
			saved := instance.Step{}
			pickOnce(instances, when.instance, &saved)

			engines := runner.Engines{"test-workflow": testEngine(t, when.work)}
			seed := runner.Seed(engines.Names())

			next, progressed, err := runner.Task(logger, instances, engines)(context.Background(), seed)
			if err != nil {
				t.Fatal(err)
			}
			if !progressed {
				t.Error("it should make progress")
			}
			if next.Head != when.instance.Id {
				t.Errorf("cursor is not moved: %+v", next)
			}

			if saved.State != then.state || saved.Status != then.status || saved.Wait != then.wait {
				t.Errorf("saved step: %+v", saved)
			}
			if saved.Context.Version() != when.instance.Context.Version()+1 {
				t.Errorf("context is not stepped: version = %d", saved.Context.Version())
			}
			if then.kind == "" {
				if le := saved.Context.LastError(); le != nil {
					t.Errorf("unexpected last error: %+v", le)
				}
			} else if le := saved.Context.LastError(); le == nil || le.Kind != then.kind {
				t.Errorf("last error: %+v, expected kind %s", le, then.kind)
			}
		}
	}

	ok := func(_ context.Context, c workflow.Context) (workflow.Context, error) { return c, nil }

	t.Run("it steps the instance and saves the suspension", theory(
		when{
			instance: instance.Instance{
				Id: "i1", Workflow: "test-workflow", State: "Work",
				Context: workflow.NewContext("m"), Status: workflow.Running,
			},
			work: ok,
		},
		then{state: "Check", status: workflow.Running, wait: time.Minute},
	))

	t.Run("it resumes the instance from the saved state", theory(
		when{
			instance: instance.Instance{
				Id: "i1", Workflow: "test-workflow", State: "Check",
				Context: workflow.NewContext("m").Stepped(), Status: workflow.Running,
			},
			work: ok,
		},
		then{state: "Done", status: workflow.Succeeded},
	))

	t.Run("it routes caught failures", theory(
		when{
			instance: instance.Instance{
				Id: "i1", Workflow: "test-workflow", State: "Work",
				Context: workflow.NewContext("m"), Status: workflow.Running,
			},
			work: func(_ context.Context, c workflow.Context) (workflow.Context, error) {
				return c, xe.Fail(xe.RemoteFailure, "rejected")
			},
		},
		then{state: "Broken", status: workflow.Failed, kind: xe.RemoteFailure},
	))

	t.Run("it halts instances with uncaught failures", theory(
		when{
			instance: instance.Instance{
				Id: "i1", Workflow: "test-workflow", State: "Check",
				Context: workflow.NewContext("m"), Status: workflow.Running,
			},
			work: func(_ context.Context, c workflow.Context) (workflow.Context, error) {
				return c, xe.Fail(xe.RemoteFailure, "rejected")
			},
		},
		then{state: "Check", status: workflow.UnmatchedFailure, kind: xe.RemoteFailure},
	))

	t.Run("it halts instances at unknown states", theory(
		when{
			instance: instance.Instance{
				Id: "i1", Workflow: "test-workflow", State: "Vanished",
				Context: workflow.NewContext("m"), Status: workflow.Running,
			},
			work: ok,
		},
		then{state: "Vanished", status: workflow.UnmatchedFailure, kind: xe.Unclassified},
	))

	t.Run("it halts instances of unknown workflows", theory(
		when{
			instance: instance.Instance{
				Id: "i1", Workflow: "retired-workflow", State: "Work",
				Context: workflow.NewContext("m"), Status: workflow.Running,
			},
			work: ok,
		},
		then{state: "Work", status: workflow.UnmatchedFailure, kind: xe.Unclassified},
	))
}

func TestTask_NothingToDo(t *testing.T) {
	instances := mockinstance.NewInstanceInterface()
	instances.Impl.PickAndStep = func(
		_ context.Context, cursor instance.Cursor, _ func(instance.Instance) (instance.Step, error),
	) (instance.Cursor, bool, error) {
		return cursor, false, nil
	}

	engines := runner.Engines{}
	seed := instance.Cursor{Head: "i1"}
	next, progressed, err := runner.Task(log.New(new(bytes.Buffer), "", 0), instances, engines)(context.Background(), seed)
	if err != nil {
		t.Fatal(err)
	}
	if progressed || next.Head != "i1" {
		t.Errorf("unexpected result: (%+v, %v)", next, progressed)
	}
}

func TestTask_Errors(t *testing.T) {
	theory := func(err error, expectError bool) func(*testing.T) {
		return func(t *testing.T) {
			instances := mockinstance.NewInstanceInterface()
			instances.Impl.PickAndStep = func(
				_ context.Context, cursor instance.Cursor, _ func(instance.Instance) (instance.Step, error),
			) (instance.Cursor, bool, error) {
				return cursor, false, err
			}

			_, _, actual := runner.Task(log.New(new(bytes.Buffer), "", 0), instances, runner.Engines{})(
				context.Background(), instance.Cursor{},
			)
			if expectError {
				if !errors.Is(actual, err) {
					t.Errorf("unexpected error: %v", actual)
				}
			} else if actual != nil {
				t.Errorf("unexpected error: %v", actual)
			}
		}
	}

	t.Run("interruption is not an error", theory(context.Canceled, false))
	t.Run("deadline is not an error", theory(context.DeadlineExceeded, false))
	t.Run("expired lease is not an error", theory(instance.ErrLeaseExpired, false))
	t.Run("database error is an error", theory(errors.New("fake error"), true))
}
