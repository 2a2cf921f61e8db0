// Package workflows holds building blocks shared by model workflows.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opst/modelflow/pkg/configs"
	"github.com/opst/modelflow/pkg/domain/model"
	"github.com/opst/modelflow/pkg/domain/workflow"
	"github.com/opst/modelflow/pkg/engine"
	xe "github.com/opst/modelflow/pkg/errors"
	"github.com/opst/modelflow/pkg/poll"
)

// Policy is the tuning shared by model workflows.
type Policy struct {
	// wait-edge of polling loops.
	PollInterval time.Duration

	// ceiling of polls in a polling loop.
	MaxPolls int

	// timeout of actions without their own one.
	ActionTimeout time.Duration
}

func PolicyFrom(conf *configs.WorkflowsConfig) Policy {
	return Policy{
		PollInterval:  conf.PollInterval(),
		MaxPolls:      conf.MaxPolls(),
		ActionTimeout: conf.ActionTimeout(),
	}
}

// Polling creates an action which polls the remote operation whose token is in
// the context, as one iteration of a polling loop.
//
// Each call is counted as an attempt in pollCount, and continuePolling is set
// while the operation is pending. When the operation gets ready, onReady
// (if not nil) updates the context with the result.
//
// An error from the backend which is not a Failure is taken as a pending status,
// so it consumes an attempt.
func Polling(poller *poll.Client, ceiling int, onReady func(workflow.Context, poll.Result) workflow.Context) engine.Action {
	return func(ctx context.Context, c workflow.Context) (workflow.Context, error) {
		token := c.PollToken()
		if token == "" {
			return c, xe.Fail(xe.InvalidRequest, "no remote operation to be polled")
		}
		attempt := c.PollCount() + 1

		result, err := poller.Poll(ctx, token, attempt, ceiling)
		if err != nil {
			if f := new(xe.Failure); errors.As(err, &f) {
				return c, f
			}
			if ctx.Err() != nil {
				return c, err
			}
			if 0 < ceiling && ceiling <= attempt {
				return c, xe.FailBy(
					xe.MaxPollsExceeded,
					fmt.Sprintf("%s is not confirmed after %d polls", token, attempt),
					err,
				)
			}
			result = poll.Result{Status: poll.Pending}
		}

		c = c.WithPollCount(attempt).
			WithFlag(workflow.FieldContinuePolling, result.Status == poll.Pending)
		if result.Status == poll.Ready && onReady != nil {
			c = onReady(c, result)
		}
		return c, nil
	}
}

// FailureReason describes the failure carried by the context.
func FailureReason(c workflow.Context) string {
	le := c.LastError()
	if le == nil {
		return "unknown failure"
	}
	return fmt.Sprintf("[%s] %s", le.Kind, le.Message)
}

// MarkFailed creates an action compensating a failure: the model is marked
// as failed with the reason carried by the context.
func MarkFailed(models model.Interface) engine.Action {
	return func(ctx context.Context, c workflow.Context) (workflow.Context, error) {
		if err := models.SetStatus(ctx, c.ModelId(), model.Failed, FailureReason(c)); err != nil {
			return c, xe.WrapWithNote("marking model as failed", err)
		}
		return c, nil
	}
}
