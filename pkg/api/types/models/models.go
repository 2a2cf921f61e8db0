// Package models is the representation of models and their workflows in modelflow API.
package models

import (
	"time"

	"github.com/opst/modelflow/pkg/domain/instance"
	"github.com/opst/modelflow/pkg/domain/model"
)

type Capacity struct {
	Min     int32 `json:"min"`
	Max     int32 `json:"max"`
	Desired int32 `json:"desired"`
}

func (c Capacity) Domain() model.Capacity {
	return model.Capacity{Min: c.Min, Max: c.Max, Desired: c.Desired}
}

func ComposeCapacity(c model.Capacity) Capacity {
	return Capacity{Min: c.Min, Max: c.Max, Desired: c.Desired}
}

// CreateRequest is the body of `POST /api/models/`.
type CreateRequest struct {
	ModelId   string `json:"modelId"`
	ModelName string `json:"modelName"`

	// container image serving the model.
	Image string            `json:"image,omitempty"`
	Port  int32             `json:"port,omitempty"`
	Env   map[string]string `json:"env,omitempty"`

	Capacity Capacity `json:"capacity"`

	// If true, the image is copied and a stack is created for the model.
	// Otherwise, Endpoint is registered as it is.
	CreateInfra bool   `json:"createInfra"`
	Endpoint    string `json:"endpoint,omitempty"`
}

// UpdateRequest is the body of `PUT /api/models/:modelId/`.
type UpdateRequest struct {
	Capacity Capacity `json:"capacity"`
}

type Detail struct {
	ModelId       string            `json:"modelId"`
	ModelName     string            `json:"modelName"`
	Status        string            `json:"status"`
	Image         string            `json:"image,omitempty"`
	Port          int32             `json:"port,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Capacity      Capacity          `json:"capacity"`
	Endpoint      string            `json:"endpoint,omitempty"`
	FailureReason string            `json:"failureReason,omitempty"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func ComposeDetail(m model.Model) Detail {
	return Detail{
		ModelId:       m.Id,
		ModelName:     m.Name,
		Status:        m.Status.String(),
		Image:         m.Spec.Image,
		Port:          m.Spec.Port,
		Env:           m.Spec.Env,
		Capacity:      ComposeCapacity(m.Spec.Capacity),
		Endpoint:      m.Endpoint,
		FailureReason: m.FailureReason,
		UpdatedAt:     m.UpdatedAt,
	}
}

type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Workflow is an instance of a model workflow.
type Workflow struct {
	InstanceId string `json:"instanceId"`
	Workflow   string `json:"workflow"`
	ModelId    string `json:"modelId"`

	// state to be executed next, or where the workflow has stopped.
	State  string `json:"state"`
	Status string `json:"status"`

	// carried on the way to failure.
	LastError *Failure `json:"lastError,omitempty"`

	SuspendUntil time.Time `json:"suspendUntil"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func ComposeWorkflow(i instance.Instance) Workflow {
	w := Workflow{
		InstanceId:   i.Id,
		Workflow:     i.Workflow.String(),
		ModelId:      i.ModelId,
		State:        i.State,
		Status:       i.Status.String(),
		SuspendUntil: i.SuspendUntil,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
	if le := i.Context.LastError(); le != nil {
		w.LastError = &Failure{Kind: le.Kind.String(), Message: le.Message}
	}
	return w
}

// Accepted is the response to requests starting a workflow.
type Accepted struct {
	Model    Detail   `json:"model"`
	Workflow Workflow `json:"workflow"`
}
