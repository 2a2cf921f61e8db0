package k8s

import (
	"context"
	"errors"
	"fmt"

	kubeerr "k8s.io/apimachinery/pkg/api/errors"

	xe "github.com/opst/modelflow/pkg/errors"
	"github.com/opst/modelflow/pkg/poll"
)

// The stack to be scaled does not exist.
var ErrStackMissing = errors.New("stack is missing")

// Scaler changes capacity of stacks via the scale subresource of deployments.
type Scaler struct {
	cluster *k8sCluster
}

// Apply sets desired replicas of the stack.
//
// # Returns
//
// - error: *errors.Failure of RemoteFailure when the stack is missing or
// kubernetes rejects the change. When the stack is missing, it also wraps ErrStackMissing.
// When ctx is done, ctx.Err().
func (s *Scaler) Apply(ctx context.Context, resource string, desired int32) error {
	scale, err := s.cluster.client.GetScale(ctx, s.cluster.namespace, resource)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if kubeerr.IsNotFound(err) {
			return xe.FailBy(
				xe.RemoteFailure, fmt.Sprintf("scale of %s", resource),
				fmt.Errorf("%w: %w", ErrStackMissing, err),
			)
		}
		return xe.FailBy(xe.RemoteFailure, fmt.Sprintf("scale of %s", resource), err)
	}
	if scale.Spec.Replicas == desired {
		return nil
	}

	scale.Spec.Replicas = desired
	if _, err := s.cluster.client.UpdateScale(ctx, s.cluster.namespace, resource, scale); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return xe.FailBy(xe.RemoteFailure, fmt.Sprintf("scaling %s to %d", resource, desired), err)
	}
	return nil
}

// Status tells whether the stack has converged to its desired replicas.
//
// Converged stacks are Ready, with "available/desired" in Detail.
func (s *Scaler) Status(ctx context.Context, resource string) (poll.Result, error) {
	dpl, err := s.cluster.client.GetDeployment(ctx, s.cluster.namespace, resource)
	if err != nil {
		if kubeerr.IsNotFound(err) {
			return poll.Result{
				Status: poll.Failed,
				Kind:   xe.RemoteFailure,
				Detail: fmt.Sprintf("deployment %s is missing", resource),
			}, nil
		}
		return poll.Result{}, err
	}

	detail := fmt.Sprintf("%d/%d", dpl.Status.AvailableReplicas, desiredReplicas(dpl))
	if satisfyAll(dpl, Observed, EnoughReplicas, NoExcessReplicas) {
		return poll.Result{Status: poll.Ready, Detail: detail}, nil
	}
	return poll.Result{Status: poll.Pending, Detail: detail}, nil
}
