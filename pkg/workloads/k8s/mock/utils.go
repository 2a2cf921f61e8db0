package mock

import (
	"context"
	"errors"

	k8s "github.com/opst/modelflow/pkg/workloads/k8s"
	kubeapps "k8s.io/api/apps/v1"
	kubeautoscaling "k8s.io/api/autoscaling/v1"
	kubecore "k8s.io/api/core/v1"
)

// get mocked k8s.Cluster
//
// # returns
//
//   - k8s.Cluser : using *MockClient as base client
//   - *MockClient : mock object.
//     you can fake k8s behaviours or spy its usage.
func NewCluster() (k8s.Cluster, *MockClient) {
	clientset := NewMockClient()

	namespace := "fake-namespace"
	domain := "fake.local"

	return k8s.AttachCluster(clientset, namespace, domain), clientset
}

type MockClient struct {
	Impl struct {
		GetService    func(ctx context.Context, namespace string, svcname string) (*kubecore.Service, error)
		CreateService func(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error)

		GetDeployment    func(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error)
		CreateDeployment func(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error)

		GetScale    func(ctx context.Context, namespace string, deplname string) (*kubeautoscaling.Scale, error)
		UpdateScale func(ctx context.Context, namespace string, deplname string, scale *kubeautoscaling.Scale) (*kubeautoscaling.Scale, error)
	}
	Called struct {
		GetService    uint64
		CreateService uint64

		GetDeployment    uint64
		CreateDeployment uint64

		GetScale    uint64
		UpdateScale uint64
	}
}

// MockClient implements k8s.K8sClient
var _ k8s.K8sClient = &MockClient{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) GetService(ctx context.Context, namespace string, svcname string) (*kubecore.Service, error) {
	m.Called.GetService += 1
	if m.Impl.GetService == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetService(ctx, namespace, svcname)
}

func (m *MockClient) CreateService(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error) {
	m.Called.CreateService += 1
	if m.Impl.CreateService == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.CreateService(ctx, namespace, svc)
}

func (m *MockClient) GetDeployment(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error) {
	m.Called.GetDeployment += 1
	if m.Impl.GetDeployment == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetDeployment(ctx, namespace, deplname)
}

func (m *MockClient) CreateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	m.Called.CreateDeployment += 1
	if m.Impl.CreateDeployment == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.CreateDeployment(ctx, namespace, depl)
}

func (m *MockClient) GetScale(ctx context.Context, namespace string, deplname string) (*kubeautoscaling.Scale, error) {
	m.Called.GetScale += 1
	if m.Impl.GetScale == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetScale(ctx, namespace, deplname)
}

func (m *MockClient) UpdateScale(ctx context.Context, namespace string, deplname string, scale *kubeautoscaling.Scale) (*kubeautoscaling.Scale, error) {
	m.Called.UpdateScale += 1
	if m.Impl.UpdateScale == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.UpdateScale(ctx, namespace, deplname, scale)
}
