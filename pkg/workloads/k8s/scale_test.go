package k8s_test

import (
	"context"
	"errors"
	"testing"

	xe "github.com/opst/modelflow/pkg/errors"
	"github.com/opst/modelflow/pkg/poll"
	"github.com/opst/modelflow/pkg/workloads/k8s"
	"github.com/opst/modelflow/pkg/workloads/k8s/mock"
	kubeapps "k8s.io/api/apps/v1"
	kubeautoscaling "k8s.io/api/autoscaling/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestScaler_Apply(t *testing.T) {
	t.Run("it updates replicas in scale", func(t *testing.T) {
		cluster, client := mock.NewCluster()
		client.Impl.GetScale = func(_ context.Context, _ string, name string) (*kubeautoscaling.Scale, error) {
			return &kubeautoscaling.Scale{
				ObjectMeta: kubeapimeta.ObjectMeta{Name: name},
				Spec:       kubeautoscaling.ScaleSpec{Replicas: 1},
			}, nil
		}
		var updated *kubeautoscaling.Scale
		client.Impl.UpdateScale = func(_ context.Context, _ string, _ string, s *kubeautoscaling.Scale) (*kubeautoscaling.Scale, error) {
			updated = s
			return s, nil
		}

		if err := cluster.Scaler().Apply(context.Background(), "model-m", 3); err != nil {
			t.Fatal(err)
		}
		if updated == nil || updated.Spec.Replicas != 3 {
			t.Errorf("unexpected update: %+v", updated)
		}
	})

	t.Run("it does not update when replicas are already desired", func(t *testing.T) {
		cluster, client := mock.NewCluster()
		client.Impl.GetScale = func(context.Context, string, string) (*kubeautoscaling.Scale, error) {
			return &kubeautoscaling.Scale{Spec: kubeautoscaling.ScaleSpec{Replicas: 3}}, nil
		}
		if err := cluster.Scaler().Apply(context.Background(), "model-m", 3); err != nil {
			t.Fatal(err)
		}
		if client.Called.UpdateScale != 0 {
			t.Error("scale is updated")
		}
	})

	t.Run("rejection is RemoteFailure", func(t *testing.T) {
		cluster, client := mock.NewCluster()
		client.Impl.GetScale = func(context.Context, string, string) (*kubeautoscaling.Scale, error) {
			return &kubeautoscaling.Scale{Spec: kubeautoscaling.ScaleSpec{Replicas: 1}}, nil
		}
		client.Impl.UpdateScale = func(context.Context, string, string, *kubeautoscaling.Scale) (*kubeautoscaling.Scale, error) {
			return nil, errors.New("fake error")
		}
		err := cluster.Scaler().Apply(context.Background(), "model-m", 3)
		if xe.KindOf(err) != xe.RemoteFailure {
			t.Errorf("unexpected error: %v", err)
		}
		if errors.Is(err, k8s.ErrStackMissing) {
			t.Errorf("it is not missing: %v", err)
		}
	})

	t.Run("missing stack is RemoteFailure and ErrStackMissing", func(t *testing.T) {
		cluster, client := mock.NewCluster()
		client.Impl.GetScale = func(_ context.Context, _ string, name string) (*kubeautoscaling.Scale, error) {
			return nil, kubeerr.NewNotFound(schema.GroupResource{Group: "apps", Resource: "deployments"}, name)
		}
		err := cluster.Scaler().Apply(context.Background(), "model-m", 3)
		if xe.KindOf(err) != xe.RemoteFailure {
			t.Errorf("unexpected error: %v", err)
		}
		if !errors.Is(err, k8s.ErrStackMissing) {
			t.Errorf("it should be ErrStackMissing: %v", err)
		}
	})
}

func TestScaler_Status(t *testing.T) {
	theory := func(desired, replicas, available int32, expected poll.Status) func(*testing.T) {
		return func(t *testing.T) {
			cluster, client := mock.NewCluster()
			client.Impl.GetDeployment = func(context.Context, string, string) (*kubeapps.Deployment, error) {
				return &kubeapps.Deployment{
					Spec: kubeapps.DeploymentSpec{Replicas: ptr(desired)},
					Status: kubeapps.DeploymentStatus{
						Replicas: replicas, AvailableReplicas: available,
					},
				}, nil
			}
			actual, err := cluster.Scaler().Status(context.Background(), "model-m")
			if err != nil {
				t.Fatal(err)
			}
			if actual.Status != expected {
				t.Errorf("status: %s, expected %s", actual.Status, expected)
			}
		}
	}

	t.Run("converged when available equals desired", theory(3, 3, 3, poll.Ready))
	t.Run("pending while scaling out", theory(3, 3, 2, poll.Pending))
	t.Run("pending while scaling in", theory(1, 3, 3, poll.Pending))
}
