package k8s

import (
	"context"
	"fmt"
	"sort"

	kubeapps "k8s.io/api/apps/v1"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	xe "github.com/opst/modelflow/pkg/errors"
	"github.com/opst/modelflow/pkg/poll"
)

const (
	LabelModel     = "modelflow.opst.github.io/model"
	LabelManagedBy = "app.kubernetes.io/managed-by"

	// name of the service port where the model serves.
	PortName = "http"
)

// StackSpec describes a compute stack serving a model.
type StackSpec struct {
	ModelId  string
	Image    string
	Port     int32
	Replicas int32
	Env      map[string]string
}

// Provisioner creates compute stacks as Deployment and Service.
type Provisioner struct {
	cluster *k8sCluster
}

func (p *Provisioner) objectMeta(spec StackSpec) kubeapimeta.ObjectMeta {
	return kubeapimeta.ObjectMeta{
		Name:      StackName(spec.ModelId),
		Namespace: p.cluster.namespace,
		Labels: map[string]string{
			LabelModel:     StackName(spec.ModelId),
			LabelManagedBy: "modelflow",
		},
	}
}

func (p *Provisioner) deployment(spec StackSpec) *kubeapps.Deployment {
	meta := p.objectMeta(spec)

	envKeys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	env := make([]kubecore.EnvVar, 0, len(envKeys))
	for _, k := range envKeys {
		env = append(env, kubecore.EnvVar{Name: k, Value: spec.Env[k]})
	}

	replicas := spec.Replicas
	if replicas <= 0 {
		replicas = 1
	}

	return &kubeapps.Deployment{
		ObjectMeta: meta,
		Spec: kubeapps.DeploymentSpec{
			Replicas: &replicas,
			Selector: &kubeapimeta.LabelSelector{
				MatchLabels: map[string]string{LabelModel: meta.Labels[LabelModel]},
			},
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: meta.Labels},
				Spec: kubecore.PodSpec{
					Containers: []kubecore.Container{
						{
							Name:  "model",
							Image: spec.Image,
							Env:   env,
							Ports: []kubecore.ContainerPort{
								{Name: PortName, ContainerPort: spec.Port},
							},
							ReadinessProbe: &kubecore.Probe{
								ProbeHandler: kubecore.ProbeHandler{
									TCPSocket: &kubecore.TCPSocketAction{Port: intstr.FromString(PortName)},
								},
							},
						},
					},
				},
			},
		},
	}
}

func (p *Provisioner) service(spec StackSpec) *kubecore.Service {
	meta := p.objectMeta(spec)
	return &kubecore.Service{
		ObjectMeta: meta,
		Spec: kubecore.ServiceSpec{
			Selector: map[string]string{LabelModel: meta.Labels[LabelModel]},
			Ports: []kubecore.ServicePort{
				{Name: PortName, Port: spec.Port, TargetPort: intstr.FromString(PortName)},
			},
		},
	}
}

// Submit requests creating the stack.
//
// Submitting a stack which already exists is not an error, so Submit can be
// retried after restart.
//
// # Returns
//
// - string: token to poll the stack.
//
// - error: *errors.Failure of StackFailedToCreate when kubernetes rejects the stack.
// When ctx is done, ctx.Err().
func (p *Provisioner) Submit(ctx context.Context, spec StackSpec) (string, error) {
	if spec.Image == "" || spec.Port <= 0 {
		return "", xe.Fail(xe.StackFailedToCreate, "stack for %s: image and port are required", spec.ModelId)
	}

	name := StackName(spec.ModelId)
	if _, err := p.cluster.client.CreateDeployment(ctx, p.cluster.namespace, p.deployment(spec)); err != nil && !kubeerr.IsAlreadyExists(err) {
		if cerr := ctx.Err(); cerr != nil {
			return "", cerr
		}
		return "", xe.FailBy(xe.StackFailedToCreate, fmt.Sprintf("deployment %s", name), err)
	}
	if _, err := p.cluster.client.CreateService(ctx, p.cluster.namespace, p.service(spec)); err != nil && !kubeerr.IsAlreadyExists(err) {
		if cerr := ctx.Err(); cerr != nil {
			return "", cerr
		}
		return "", xe.FailBy(xe.StackFailedToCreate, fmt.Sprintf("service %s", name), err)
	}
	return name, nil
}

// Status tells progress of the stack.
//
// When all replicas are available, the Result is Ready and its Detail is the
// endpoint URL of the stack.
// A stack which will not become ready (missing, failed to progress or to create
// replicas) is Failed with kind UnexpectedStackState.
func (p *Provisioner) Status(ctx context.Context, token string) (poll.Result, error) {
	unexpected := func(format string, args ...any) (poll.Result, error) {
		return poll.Result{
			Status: poll.Failed,
			Kind:   xe.UnexpectedStackState,
			Detail: fmt.Sprintf(format, args...),
		}, nil
	}

	dpl, err := p.cluster.client.GetDeployment(ctx, p.cluster.namespace, token)
	if err != nil {
		if kubeerr.IsNotFound(err) {
			return unexpected("deployment %s is missing", token)
		}
		return poll.Result{}, err
	}

	for _, cond := range dpl.Status.Conditions {
		switch {
		case cond.Type == kubeapps.DeploymentReplicaFailure && cond.Status == kubecore.ConditionTrue:
			return unexpected("deployment %s: %s: %s", token, cond.Reason, cond.Message)
		case cond.Type == kubeapps.DeploymentProgressing && cond.Status == kubecore.ConditionFalse:
			return unexpected("deployment %s: %s: %s", token, cond.Reason, cond.Message)
		}
	}

	if !satisfyAll(dpl, Observed, EnoughReplicas) {
		return poll.Result{
			Status: poll.Pending,
			Detail: fmt.Sprintf(
				"%d/%d replicas available", dpl.Status.AvailableReplicas, desiredReplicas(dpl),
			),
		}, nil
	}

	svc, err := p.cluster.client.GetService(ctx, p.cluster.namespace, token)
	if err != nil {
		if kubeerr.IsNotFound(err) {
			return unexpected("service %s is missing", token)
		}
		return poll.Result{}, err
	}
	return poll.Result{Status: poll.Ready, Detail: Endpoint(svc, p.cluster.domain, PortName)}, nil
}
