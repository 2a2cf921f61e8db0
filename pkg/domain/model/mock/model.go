package mock

import (
	"context"
	"errors"

	mocks "github.com/opst/modelflow/pkg/domain/internal/db/mock"
	"github.com/opst/modelflow/pkg/domain/model"
)

type ModelInterface struct {
	Impl struct {
		Create      func(ctx context.Context, m model.Model) error
		Get         func(ctx context.Context, modelId string) (model.Model, error)
		List        func(ctx context.Context) ([]model.Model, error)
		SetStatus   func(ctx context.Context, modelId string, status model.Status, reason string) error
		SetEndpoint func(ctx context.Context, modelId string, endpoint string) error
		SetCapacity func(ctx context.Context, modelId string, capacity model.Capacity) error
		Delete      func(ctx context.Context, modelId string) error
	}

	Calls struct {
		Create    mocks.CallLog[model.Model]
		Get       mocks.CallLog[string]
		List      mocks.CallLog[struct{}]
		SetStatus mocks.CallLog[struct {
			ModelId string
			Status  model.Status
			Reason  string
		}]
		SetEndpoint mocks.CallLog[struct {
			ModelId  string
			Endpoint string
		}]
		SetCapacity mocks.CallLog[struct {
			ModelId  string
			Capacity model.Capacity
		}]
		Delete mocks.CallLog[string]
	}
}

func NewModelInterface() *ModelInterface {
	return &ModelInterface{}
}

var _ model.Interface = &ModelInterface{}

func (m *ModelInterface) Create(ctx context.Context, md model.Model) error {
	m.Calls.Create = append(m.Calls.Create, md)
	if m.Impl.Create != nil {
		return m.Impl.Create(ctx, md)
	}
	panic(errors.New("it should not be called"))
}

func (m *ModelInterface) Get(ctx context.Context, modelId string) (model.Model, error) {
	m.Calls.Get = append(m.Calls.Get, modelId)
	if m.Impl.Get != nil {
		return m.Impl.Get(ctx, modelId)
	}
	panic(errors.New("it should not be called"))
}

func (m *ModelInterface) List(ctx context.Context) ([]model.Model, error) {
	m.Calls.List = append(m.Calls.List, struct{}{})
	if m.Impl.List != nil {
		return m.Impl.List(ctx)
	}
	panic(errors.New("it should not be called"))
}

func (m *ModelInterface) SetStatus(ctx context.Context, modelId string, status model.Status, reason string) error {
	m.Calls.SetStatus = append(m.Calls.SetStatus, struct {
		ModelId string
		Status  model.Status
		Reason  string
	}{ModelId: modelId, Status: status, Reason: reason})
	if m.Impl.SetStatus != nil {
		return m.Impl.SetStatus(ctx, modelId, status, reason)
	}
	panic(errors.New("it should not be called"))
}

func (m *ModelInterface) SetEndpoint(ctx context.Context, modelId string, endpoint string) error {
	m.Calls.SetEndpoint = append(m.Calls.SetEndpoint, struct {
		ModelId  string
		Endpoint string
	}{ModelId: modelId, Endpoint: endpoint})
	if m.Impl.SetEndpoint != nil {
		return m.Impl.SetEndpoint(ctx, modelId, endpoint)
	}
	panic(errors.New("it should not be called"))
}

func (m *ModelInterface) SetCapacity(ctx context.Context, modelId string, capacity model.Capacity) error {
	m.Calls.SetCapacity = append(m.Calls.SetCapacity, struct {
		ModelId  string
		Capacity model.Capacity
	}{ModelId: modelId, Capacity: capacity})
	if m.Impl.SetCapacity != nil {
		return m.Impl.SetCapacity(ctx, modelId, capacity)
	}
	panic(errors.New("it should not be called"))
}

func (m *ModelInterface) Delete(ctx context.Context, modelId string) error {
	m.Calls.Delete = append(m.Calls.Delete, modelId)
	if m.Impl.Delete != nil {
		return m.Impl.Delete(ctx, modelId)
	}
	panic(errors.New("it should not be called"))
}
