package workflows_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opst/modelflow/pkg/domain/model"
	mockmodel "github.com/opst/modelflow/pkg/domain/model/mock"
	"github.com/opst/modelflow/pkg/domain/workflow"
	xe "github.com/opst/modelflow/pkg/errors"
	"github.com/opst/modelflow/pkg/poll"
	"github.com/opst/modelflow/pkg/workflows"
)

func TestPolling(t *testing.T) {
	type when struct {
		token     string
		pollCount int
		ceiling   int
		result    poll.Result
		err       error
	}
	type then struct {
		pollCount       int
		continuePolling bool
		ready           bool
		kind            xe.Kind
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			poller := poll.New(poll.BackendFunc(func(context.Context, string) (poll.Result, error) {
				return when.result, when.err
			}))
			readyCalled := false
			testee := workflows.Polling(poller, when.ceiling, func(c workflow.Context, r poll.Result) workflow.Context {
				readyCalled = true
				return c.WithField("detail", r.Detail)
			})

			c := workflow.NewContext("model").WithPoll(when.token).WithPollCount(when.pollCount)
			actual, err := testee(context.Background(), c)
			if then.kind != "" {
				if xe.KindOf(err) != then.kind {
					t.Fatalf("unexpected error: %v", err)
				}
				if !actual.Equal(c) {
					t.Errorf("context is changed on failure")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if actual.PollCount() != then.pollCount {
				t.Errorf("pollCount: (actual, expected) = (%d, %d)", actual.PollCount(), then.pollCount)
			}
			if actual.Flag(workflow.FieldContinuePolling) != then.continuePolling {
				t.Errorf("continuePolling: %t", actual.Flag(workflow.FieldContinuePolling))
			}
			if readyCalled != then.ready {
				t.Errorf("onReady called: %t", readyCalled)
			}
		}
	}

	t.Run("pending below the ceiling continues polling", theory(
		when{token: "t", pollCount: 1, ceiling: 3, result: poll.Result{Status: poll.Pending}},
		then{pollCount: 2, continuePolling: true},
	))
	t.Run("pending at the ceiling is MaxPollsExceeded", theory(
		when{token: "t", pollCount: 2, ceiling: 3, result: poll.Result{Status: poll.Pending}},
		then{kind: xe.MaxPollsExceeded},
	))
	t.Run("ready stops polling", theory(
		when{token: "t", pollCount: 2, ceiling: 3, result: poll.Result{Status: poll.Ready, Detail: "done"}},
		then{pollCount: 3, ready: true},
	))
	t.Run("failed is a failure of the kind", theory(
		when{token: "t", ceiling: 3, result: poll.Result{Status: poll.Failed, Kind: xe.UnexpectedStackState}},
		then{kind: xe.UnexpectedStackState},
	))
	t.Run("backend error below the ceiling is taken as pending", theory(
		when{token: "t", ceiling: 3, err: errors.New("connection reset")},
		then{pollCount: 1, continuePolling: true},
	))
	t.Run("backend error at the ceiling is MaxPollsExceeded", theory(
		when{token: "t", pollCount: 2, ceiling: 3, err: errors.New("connection reset")},
		then{kind: xe.MaxPollsExceeded},
	))
	t.Run("no token is InvalidRequest", theory(
		when{ceiling: 3, result: poll.Result{Status: poll.Ready}},
		then{kind: xe.InvalidRequest},
	))
}

func TestMarkFailed(t *testing.T) {
	models := mockmodel.NewModelInterface()
	models.Impl.SetStatus = func(context.Context, string, model.Status, string) error { return nil }

	c := workflow.NewContext("model-a").WithLastError(xe.Fail(xe.StackFailedToCreate, "quota"))
	if _, err := workflows.MarkFailed(models)(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	last, ok := models.Calls.SetStatus.Last()
	if !ok {
		t.Fatal("SetStatus is not called")
	}
	if last.ModelId != "model-a" || last.Status != model.Failed {
		t.Errorf("unexpected call: %+v", last)
	}
	if !strings.HasPrefix(last.Reason, "[StackFailedToCreate]") {
		t.Errorf("reason: %s", last.Reason)
	}
}
