// Package model is the record of served machine-learning models.
package model

import (
	"context"
	"fmt"
	"time"
)

type Status string

const (
	// infrastructure of the model is being created.
	Creating Status = "creating"

	// the model is serving.
	Active Status = "active"

	// creating the model has failed.
	Failed Status = "failed"

	// capacity of the model is being changed.
	Updating Status = "updating"
)

func (s Status) String() string {
	return string(s)
}

func AsStatus(s string) (Status, error) {
	switch Status(s) {
	case Creating, Active, Failed, Updating:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown model status: %s", s)
}

// Capacity is the number of replicas serving the model.
type Capacity struct {
	Min     int32 `json:"min"`
	Max     int32 `json:"max"`
	Desired int32 `json:"desired"`
}

// Validate checks 0 <= Min <= Desired <= Max.
func (c Capacity) Validate() error {
	if c.Min < 0 || c.Desired < 0 || c.Max < 0 {
		return fmt.Errorf("capacity should not be negative: %+v", c)
	}
	if c.Desired < c.Min || c.Max < c.Desired {
		return fmt.Errorf("capacity should be min <= desired <= max: %+v", c)
	}
	return nil
}

// Spec is how the model is served.
type Spec struct {
	// container image of the model, as given by users.
	Image string `json:"image"`

	// port where the container serves.
	Port int32 `json:"port"`

	Env map[string]string `json:"env,omitempty"`

	Capacity Capacity `json:"capacity"`
}

type Model struct {
	Id     string
	Name   string
	Status Status
	Spec   Spec

	// URL where the model serves. Empty until registered.
	Endpoint string

	// why the model has failed. Empty unless Status is Failed.
	FailureReason string

	UpdatedAt time.Time
}

type Interface interface {
	// Create a new model record.
	//
	// # Returns
	//
	// - error: domain.ErrConflict when a model with the same id exists.
	Create(ctx context.Context, m Model) error

	// Get the model.
	//
	// # Returns
	//
	// - error: domain.ErrMissing when not found.
	Get(ctx context.Context, modelId string) (Model, error)

	// List all models, ordered by id.
	List(ctx context.Context) ([]Model, error)

	// SetStatus updates status of the model.
	//
	// reason is recorded as FailureReason. It is cleared unless status is Failed.
	//
	// # Returns
	//
	// - error: domain.ErrMissing when not found.
	SetStatus(ctx context.Context, modelId string, status Status, reason string) error

	// SetEndpoint records the URL where the model serves.
	SetEndpoint(ctx context.Context, modelId string, endpoint string) error

	// SetCapacity records capacity of the model.
	SetCapacity(ctx context.Context, modelId string, capacity Capacity) error

	// Delete the model and its workflow instances.
	//
	// # Returns
	//
	// - error: domain.ErrMissing when not found,
	// or domain.ErrConflict when the model has a running workflow instance.
	Delete(ctx context.Context, modelId string) error
}
