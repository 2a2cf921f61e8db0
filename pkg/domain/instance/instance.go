// Package instance is the persisted record of workflow instances.
//
// An instance is saved after every step, so a workflow survives restarts of
// the orchestrator: a suspended instance is picked again after its suspension,
// and resumed from the saved state and context.
package instance

import (
	"context"
	"errors"
	"time"

	"github.com/opst/modelflow/pkg/domain/model"
	"github.com/opst/modelflow/pkg/domain/workflow"
)

// ErrLeaseExpired is returned when an instance is not saved,
// since the lease of the picker has expired and it may be picked by others.
var ErrLeaseExpired = errors.New("lease of the instance has expired")

type Instance struct {
	Id       string
	Workflow workflow.Name
	ModelId  string

	// Name of the state to be executed next.
	State   string
	Context workflow.Context
	Status  workflow.Status

	// The instance is not picked until then.
	SuspendUntil time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New is a request to start a workflow instance.
type New struct {
	Workflow workflow.Name
	ModelId  string
	State    string
	Context  workflow.Context
}

// Step is a result of executing a state of an instance.
type Step struct {
	State   string
	Context workflow.Context
	Status  workflow.Status

	// Suspension before executing State.
	Wait time.Duration
}

// Cursor is a position in instances to be picked.
type Cursor struct {
	// Id of the instance picked last time.
	//
	// Instances are picked in order of ids, starting next to Head and wrapping around.
	Head string

	// Workflows of instances to be picked. Empty means any.
	Workflows []workflow.Name
}

type Interface interface {
	// Admit starts a new instance with running status.
	//
	// # Returns
	//
	// - Instance: the new instance.
	//
	// - error: domain.ErrConflict when the model has another running instance.
	Admit(ctx context.Context, n New) (Instance, error)

	// AdmitNewModel creates the model and starts a new instance for it at once.
	//
	// When the instance can not be started, the model is not created either.
	//
	// # Returns
	//
	// - Instance: the new instance.
	//
	// - error: domain.ErrConflict when the model exists.
	AdmitNewModel(ctx context.Context, m model.Model, n New) (Instance, error)

	// Get the instance.
	//
	// # Returns
	//
	// - error: domain.ErrMissing when not found.
	Get(ctx context.Context, instanceId string) (Instance, error)

	// Find instances of the model, newest first.
	Find(ctx context.Context, modelId string) ([]Instance, error)

	// PickAndStep picks a running instance whose suspension has been passed,
	// and saves the result of task as its new position.
	//
	// A picked instance is leased to the caller: it is not picked by others
	// until the task ends or the lease expires. The task runs outside of
	// database transactions.
	//
	// # Args
	//
	// - context.Context
	//
	// - Cursor: where to start picking.
	//
	// - func(Instance) (Step, error): task to execute the instance.
	// When it returns error, the instance is not updated.
	//
	// # Returns
	//
	// - Cursor: cursor pointing the picked instance.
	// If no instances can be picked, cursor is as it was passed.
	//
	// - bool: true if an instance is picked and updated.
	//
	// - error: from the task or the database, or ErrLeaseExpired when the lease
	// has expired before the task ends.
	PickAndStep(ctx context.Context, cursor Cursor, task func(Instance) (Step, error)) (Cursor, bool, error)
}
