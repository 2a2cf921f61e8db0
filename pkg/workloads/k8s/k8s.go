package k8s

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	kubeapps "k8s.io/api/apps/v1"
	kubeautoscaling "k8s.io/api/autoscaling/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8s "k8s.io/client-go/kubernetes"
)

// subset of k8s.Clientset
type K8sClient interface {
	GetService(ctx context.Context, namespace string, svcname string) (*kubecore.Service, error)
	CreateService(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error)

	GetDeployment(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error)
	CreateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error)

	GetScale(ctx context.Context, namespace string, deplname string) (*kubeautoscaling.Scale, error)
	UpdateScale(ctx context.Context, namespace string, deplname string, scale *kubeautoscaling.Scale) (*kubeautoscaling.Scale, error)
}

// A wrapper for the type k8s.Clientset; because it does not prefer method chain-style invocations of that type.
type k8sClient struct {
	client *k8s.Clientset
}

// type check: k8sClient implements K8sClient
var _ K8sClient = &k8sClient{}

func (k *k8sClient) CreateService(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error) {
	return k.client.CoreV1().Services(namespace).Create(ctx, svc, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) GetService(ctx context.Context, namespace string, svcname string) (*kubecore.Service, error) {
	return k.client.CoreV1().Services(namespace).Get(ctx, svcname, kubeapimeta.GetOptions{})
}

func (k *k8sClient) CreateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	return k.client.AppsV1().Deployments(namespace).Create(ctx, depl, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) GetDeployment(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error) {
	return k.client.AppsV1().Deployments(namespace).Get(ctx, deplname, kubeapimeta.GetOptions{})
}

func (k *k8sClient) GetScale(ctx context.Context, namespace string, deplname string) (*kubeautoscaling.Scale, error) {
	return k.client.AppsV1().Deployments(namespace).GetScale(ctx, deplname, kubeapimeta.GetOptions{})
}

func (k *k8sClient) UpdateScale(ctx context.Context, namespace string, deplname string, scale *kubeautoscaling.Scale) (*kubeautoscaling.Scale, error) {
	return k.client.AppsV1().Deployments(namespace).UpdateScale(ctx, deplname, scale, kubeapimeta.UpdateOptions{})
}

func WrapK8sClient(c *k8s.Clientset) K8sClient {
	return &k8sClient{client: c}
}

// Cluster is a namespace of kubernetes where stacks of models are placed.
type Cluster interface {
	Namespace() string
	Domain() string

	// Stacks returns the provisioner of compute stacks in this cluster.
	Stacks() *Provisioner

	// Scaler returns the scaling resource of stacks in this cluster.
	Scaler() *Scaler
}

type k8sCluster struct {
	client    K8sClient
	namespace string
	domain    string
}

// type check: k8scluster implements Cluster
var _ Cluster = &k8sCluster{}

// Attch kubernetes cluster.
//
// args:
//   - client: k8s clientset
//   - namespace: k8s namespace
//   - domain: k8s-internal domain name. If empty string is passed, it uses`"cluster.local"` as default.
func AttachCluster(client K8sClient, namespace string, domain string) Cluster {
	if domain == "" {
		domain = "cluster.local"
	}
	return &k8sCluster{client: client, namespace: namespace, domain: domain}
}

func (c *k8sCluster) Namespace() string {
	return c.namespace
}

func (c *k8sCluster) Domain() string {
	return c.domain
}

func (c *k8sCluster) Stacks() *Provisioner {
	return &Provisioner{cluster: c}
}

func (c *k8sCluster) Scaler() *Scaler {
	return &Scaler{cluster: c}
}

// Requirement checks a kubernetes resource.
//
// # Return
//
// - bool: true when the value satisfies the requirement.
type Requirement[T any] func(value T) bool

func satisfyAll[T any](value T, req ...Requirement[T]) bool {
	for _, r := range req {
		if !r(value) {
			return false
		}
	}
	return true
}

// EnoughReplicas holds when all desired replicas are available.
var EnoughReplicas Requirement[*kubeapps.Deployment] = func(value *kubeapps.Deployment) bool {
	return desiredReplicas(value) <= value.Status.AvailableReplicas
}

// NoExcessReplicas holds when no more replicas than desired are running.
var NoExcessReplicas Requirement[*kubeapps.Deployment] = func(value *kubeapps.Deployment) bool {
	return value.Status.Replicas <= desiredReplicas(value)
}

// Observed holds when the controller has seen the latest spec of the deployment.
var Observed Requirement[*kubeapps.Deployment] = func(value *kubeapps.Deployment) bool {
	return value.Generation <= value.Status.ObservedGeneration
}

func desiredReplicas(d *kubeapps.Deployment) int32 {
	if d.Spec.Replicas != nil {
		return *d.Spec.Replicas
	}
	return 1
}

var reNonAcceptableInName = regexp.MustCompile("[^-a-z0-9]+")

const k8sname_maxlen int = 63

// StackName is the name of Deployment and Service serving the model.
//
// It is a DNS-1123 label derived from the model id.
func StackName(modelId string) string {
	name := strings.ToLower(modelId)
	name = reNonAcceptableInName.ReplaceAllString(name, "-")
	name = "model-" + strings.Trim(name, "-")
	if k8sname_maxlen < len(name) {
		name = name[:k8sname_maxlen]
	}
	return strings.TrimRight(name, "-")
}

// Endpoint returns the URL of a service in the cluster.
func Endpoint(svc *kubecore.Service, domain string, portName string) string {
	port := int32(0)
	for _, p := range svc.Spec.Ports {
		if p.Name == portName {
			port = p.Port
			break
		}
	}
	return fmt.Sprintf("http://%s.%s.svc.%s:%d", svc.Name, svc.Namespace, domain, port)
}
