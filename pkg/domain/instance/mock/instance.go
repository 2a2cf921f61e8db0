package mock

import (
	"context"
	"errors"

	"github.com/opst/modelflow/pkg/domain/instance"
	mocks "github.com/opst/modelflow/pkg/domain/internal/db/mock"
	"github.com/opst/modelflow/pkg/domain/model"
)

type InstanceInterface struct {
	Impl struct {
		Admit         func(ctx context.Context, n instance.New) (instance.Instance, error)
		AdmitNewModel func(ctx context.Context, m model.Model, n instance.New) (instance.Instance, error)
		Get           func(ctx context.Context, instanceId string) (instance.Instance, error)
		Find          func(ctx context.Context, modelId string) ([]instance.Instance, error)
		PickAndStep   func(ctx context.Context, cursor instance.Cursor, task func(instance.Instance) (instance.Step, error)) (instance.Cursor, bool, error)
	}

	Calls struct {
		Admit         mocks.CallLog[instance.New]
		AdmitNewModel mocks.CallLog[struct {
			Model model.Model
			New   instance.New
		}]
		Get         mocks.CallLog[string]
		Find        mocks.CallLog[string]
		PickAndStep mocks.CallLog[instance.Cursor]
	}
}

func NewInstanceInterface() *InstanceInterface {
	return &InstanceInterface{}
}

var _ instance.Interface = &InstanceInterface{}

func (m *InstanceInterface) Admit(ctx context.Context, n instance.New) (instance.Instance, error) {
	m.Calls.Admit = append(m.Calls.Admit, n)
	if m.Impl.Admit != nil {
		return m.Impl.Admit(ctx, n)
	}
	panic(errors.New("it should not be called"))
}

func (m *InstanceInterface) AdmitNewModel(ctx context.Context, md model.Model, n instance.New) (instance.Instance, error) {
	m.Calls.AdmitNewModel = append(m.Calls.AdmitNewModel, struct {
		Model model.Model
		New   instance.New
	}{Model: md, New: n})
	if m.Impl.AdmitNewModel != nil {
		return m.Impl.AdmitNewModel(ctx, md, n)
	}
	panic(errors.New("it should not be called"))
}

func (m *InstanceInterface) Get(ctx context.Context, instanceId string) (instance.Instance, error) {
	m.Calls.Get = append(m.Calls.Get, instanceId)
	if m.Impl.Get != nil {
		return m.Impl.Get(ctx, instanceId)
	}
	panic(errors.New("it should not be called"))
}

func (m *InstanceInterface) Find(ctx context.Context, modelId string) ([]instance.Instance, error) {
	m.Calls.Find = append(m.Calls.Find, modelId)
	if m.Impl.Find != nil {
		return m.Impl.Find(ctx, modelId)
	}
	panic(errors.New("it should not be called"))
}

func (m *InstanceInterface) PickAndStep(
	ctx context.Context, cursor instance.Cursor, task func(instance.Instance) (instance.Step, error),
) (instance.Cursor, bool, error) {
	m.Calls.PickAndStep = append(m.Calls.PickAndStep, cursor)
	if m.Impl.PickAndStep != nil {
		return m.Impl.PickAndStep(ctx, cursor, task)
	}
	panic(errors.New("it should not be called"))
}
