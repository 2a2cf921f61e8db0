// Package updatemodel is the workflow changing capacity of a served model.
//
//	JobIntake -> HasCapacityUpdate --(hasCapacityUpdate)--> PollCapacity -> CapacityConverged
//	                                `-> FinishUpdate            ^                  |
//	                                                            `--(wait)----------+
//	CapacityConverged -> FinishUpdate -> Succeeded
//
// With the failure path enabled, failures of JobIntake and PollCapacity are
// compensated in HandleUpdateFailure, which marks the model as failed and ends in Failed.
// Otherwise they halt the workflow as unmatched failures.
package updatemodel

import (
	"context"
	"errors"
	"fmt"

	"github.com/opst/modelflow/pkg/configs"
	"github.com/opst/modelflow/pkg/domain"
	"github.com/opst/modelflow/pkg/domain/model"
	"github.com/opst/modelflow/pkg/domain/workflow"
	"github.com/opst/modelflow/pkg/engine"
	xe "github.com/opst/modelflow/pkg/errors"
	"github.com/opst/modelflow/pkg/poll"
	"github.com/opst/modelflow/pkg/workflows"
	"github.com/opst/modelflow/pkg/workloads/k8s"
)

const Name workflow.Name = "update-model"

// states
const (
	JobIntake           = "JobIntake"
	HasCapacityUpdate   = "HasCapacityUpdate"
	PollCapacity        = "PollCapacity"
	CapacityConverged   = "CapacityConverged"
	FinishUpdate        = "FinishUpdate"
	HandleUpdateFailure = "HandleUpdateFailure"
	Succeeded           = "Succeeded"
	Failed              = "Failed"
)

// actions
const (
	ActionJobIntake           = "jobIntake"
	ActionPollCapacity        = "pollCapacity"
	ActionFinishUpdate        = "finishUpdate"
	ActionHandleUpdateFailure = "handleUpdateFailure"
)

// Request is the capacity-change job starting the workflow.
type Request struct {
	Capacity model.Capacity `json:"capacity"`
}

// Start creates the initial context of the workflow for the model.
func Start(modelId string, req Request) workflow.Context {
	return workflow.NewContext(modelId).WithField(workflow.FieldRequest, req)
}

type Config struct {
	workflows.Policy

	// If true, failures are routed to HandleUpdateFailure.
	FailurePath bool
}

func ConfigFrom(conf *configs.Config) Config {
	return Config{
		Policy:      workflows.PolicyFrom(conf.Workflows()),
		FailurePath: conf.Workflows().Update().FailurePath(),
	}
}

// Scaler changes and observes capacity of model stacks.
//
// resource is the name of the stack.
type Scaler interface {
	Apply(ctx context.Context, resource string, desired int32) error
	Status(ctx context.Context, resource string) (poll.Result, error)
}

// Deps are collaborators of the workflow.
type Deps struct {
	Models model.Interface
	Scaler Scaler
}

// Graph builds the state graph of the workflow.
func Graph(conf Config) (*workflow.Graph, error) {
	var intakeCatch, pollCatch []workflow.Catch
	states := []workflow.State{}
	if conf.FailurePath {
		intakeCatch = []workflow.Catch{
			{Kinds: []xe.Kind{xe.InvalidRequest, xe.RemoteFailure}, Next: HandleUpdateFailure},
		}
		pollCatch = []workflow.Catch{
			{Kinds: []xe.Kind{xe.MaxPollsExceeded, xe.RemoteFailure}, Next: HandleUpdateFailure},
		}
		states = append(
			states,
			workflow.State{
				Name: HandleUpdateFailure, Action: ActionHandleUpdateFailure,
				Transitions: []workflow.Transition{workflow.Goto(Failed)},
			},
			workflow.State{Name: Failed, Terminal: workflow.FailureTerminal},
		)
	}

	states = append(
		[]workflow.State{
			{
				Name: JobIntake, Action: ActionJobIntake,
				Transitions: []workflow.Transition{workflow.Goto(HasCapacityUpdate)},
				Catch:       intakeCatch,
			},
			{
				Name: HasCapacityUpdate,
				Transitions: []workflow.Transition{
					{When: workflow.When(workflow.FieldHasCapacityUpdate, true), Next: PollCapacity},
					workflow.Goto(FinishUpdate),
				},
			},
			{
				Name: PollCapacity, Action: ActionPollCapacity, PollLoop: "capacity",
				Transitions: []workflow.Transition{workflow.Goto(CapacityConverged)},
				Catch:       pollCatch,
			},
			{
				Name: CapacityConverged,
				Transitions: []workflow.Transition{
					{
						When: workflow.When(workflow.FieldContinuePolling, true),
						Next: PollCapacity, Wait: conf.PollInterval,
					},
					workflow.Goto(FinishUpdate),
				},
			},
			{
				Name: FinishUpdate, Action: ActionFinishUpdate,
				Transitions: []workflow.Transition{workflow.Goto(Succeeded)},
			},
			{Name: Succeeded, Terminal: workflow.SuccessTerminal},
		},
		states...,
	)

	return workflow.NewGraph(Name, JobIntake, states...)
}

func request(c workflow.Context) (Request, error) {
	req := Request{}
	ok, err := c.Field(workflow.FieldRequest, &req)
	if err != nil {
		return req, xe.FailBy(xe.InvalidRequest, "request is broken", err)
	}
	if !ok {
		return req, xe.Fail(xe.InvalidRequest, "no request for model %s", c.ModelId())
	}
	if err := req.Capacity.Validate(); err != nil {
		return req, xe.FailBy(xe.InvalidRequest, "capacity", err)
	}
	return req, nil
}

// Actions binds actions of the graph to deps.
func Actions(conf Config, deps Deps) engine.Actions {
	capacity := poll.New(deps.Scaler)

	actions := engine.Actions{
		// JobIntake validates the job and marks the model as updating.
		// When the desired replicas change and the model has its stack,
		// the change is applied to the stack and its convergence is to be polled.
		ActionJobIntake: func(ctx context.Context, c workflow.Context) (workflow.Context, error) {
			req, err := request(c)
			if err != nil {
				return c, err
			}

			m, err := deps.Models.Get(ctx, c.ModelId())
			if err != nil {
				if errors.Is(err, domain.ErrMissing) {
					return c, xe.FailBy(xe.InvalidRequest, fmt.Sprintf("model %s", c.ModelId()), err)
				}
				return c, err
			}
			if err := deps.Models.SetStatus(ctx, m.Id, model.Updating, ""); err != nil {
				return c, xe.WrapWithNote("marking model as updating", err)
			}

			resource := k8s.StackName(m.Id)
			hasUpdate := req.Capacity.Desired != m.Spec.Capacity.Desired
			if hasUpdate {
				if err := deps.Scaler.Apply(ctx, resource, req.Capacity.Desired); err != nil {
					if !errors.Is(err, k8s.ErrStackMissing) {
						return c, err
					}
					// model without its own stack. nothing to be scaled.
					hasUpdate = false
				}
			}

			c = c.WithFlag(workflow.FieldHasCapacityUpdate, hasUpdate)
			if hasUpdate {
				c = c.WithPoll(resource)
			}
			return c, nil
		},

		ActionPollCapacity: workflows.Polling(capacity, conf.MaxPolls, nil),

		// FinishUpdate records the new capacity and makes the model active again.
		// The model gets free for other workflows when this instance terminates.
		ActionFinishUpdate: func(ctx context.Context, c workflow.Context) (workflow.Context, error) {
			req, err := request(c)
			if err != nil {
				return c, err
			}
			if err := deps.Models.SetCapacity(ctx, c.ModelId(), req.Capacity); err != nil {
				return c, xe.WrapWithNote("recording capacity", err)
			}
			if err := deps.Models.SetStatus(ctx, c.ModelId(), model.Active, ""); err != nil {
				return c, xe.WrapWithNote("marking model as active", err)
			}
			return c, nil
		},
	}
	if conf.FailurePath {
		actions[ActionHandleUpdateFailure] = workflows.MarkFailed(deps.Models)
	}
	return actions
}

// New creates an engine running the workflow.
func New(conf Config, deps Deps, options ...engine.Option) (*engine.Engine, error) {
	g, err := Graph(conf)
	if err != nil {
		return nil, err
	}
	options = append([]engine.Option{engine.WithDefaultTimeout(conf.ActionTimeout)}, options...)
	return engine.New(g, Actions(conf, deps), options...)
}
