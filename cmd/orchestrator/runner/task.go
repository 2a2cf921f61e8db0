// Package runner steps persisted workflow instances one by one.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/opst/modelflow/cmd/orchestrator/recurring"
	"github.com/opst/modelflow/pkg/domain/instance"
	"github.com/opst/modelflow/pkg/domain/workflow"
	"github.com/opst/modelflow/pkg/engine"
	xe "github.com/opst/modelflow/pkg/errors"
)

// Engines maps workflow names to engines driving them.
type Engines map[workflow.Name]*engine.Engine

// Names of workflows which engines can drive.
func (es Engines) Names() []workflow.Name {
	names := make([]workflow.Name, 0, len(es))
	for n := range es {
		names = append(names, n)
	}
	return names
}

// Seed returns the initial cursor picking instances of the workflows.
func Seed(workflows []workflow.Name) instance.Cursor {
	return instance.Cursor{Workflows: workflows}
}

// halt stops the instance at the state, as the engine can not drive it any more.
func halt(inst instance.Instance, err error) instance.Step {
	return instance.Step{
		State:   inst.State,
		Context: inst.Context.WithLastError(xe.FailBy(xe.Unclassified, "workflow can not be driven", err)).Stepped(),
		Status:  workflow.UnmatchedFailure,
	}
}

// Task picks a due instance and executes one of its states.
//
// The result is saved as the new position of the instance, so the instance is
// resumed from there in a later cycle, even after restart of the orchestrator.
//
// Instances whose state or workflow is not known to engines are halted
// with status unmatched-failure.
func Task(logger *log.Logger, instances instance.Interface, engines Engines) recurring.Task[instance.Cursor] {
	return func(ctx context.Context, cursor instance.Cursor) (instance.Cursor, bool, error) {
		next, picked, err := instances.PickAndStep(
			ctx, cursor,
			func(inst instance.Instance) (instance.Step, error) {
				e, ok := engines[inst.Workflow]
				if !ok {
					logger.Printf("instance %s: unknown workflow %s", inst.Id, inst.Workflow)
					return halt(inst, fmt.Errorf("unknown workflow: %s", inst.Workflow)), nil
				}

				cur, err := e.Step(ctx, engine.Cursor{
					State:   inst.State,
					Context: inst.Context,
					Status:  inst.Status,
				})
				if err != nil {
					if errors.Is(err, engine.ErrUnknownState) ||
						errors.Is(err, engine.ErrUnboundAction) ||
						errors.Is(err, workflow.ErrInvalidGraph) {
						logger.Printf("instance %s: halted: %s", inst.Id, err)
						return halt(inst, err), nil
					}
					return instance.Step{}, err
				}

				return instance.Step{
					State:   cur.State,
					Context: cur.Context,
					Status:  cur.Status,
					Wait:    cur.Wait,
				}, nil
			},
		)

		if errors.Is(err, instance.ErrLeaseExpired) {
			// the step is discarded, and the instance is driven by the new picker.
			logger.Printf("instance %s: step is discarded: %s", next.Head, err)
			return next, false, nil
		}

		// Interrupted steps are re-entered in later cycles.
		if err == nil ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return next, picked, nil
		}
		return next, picked, err
	}
}
