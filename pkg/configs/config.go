package configs

import "time"

// Configuration of modelflow daemons.
//
// To get Config, use `TrySeal(*ConfigMarshall)` or `LoadConfig`.
type Config struct {
	database  string
	api       *APIConfig
	cluster   *ClusterConfig
	registry  *RegistryConfig
	routing   *RoutingConfig
	workflows *WorkflowsConfig
}

// Connection string for database.
func (c *Config) Database() string {
	return c.database
}

func (c *Config) API() *APIConfig {
	return c.api
}

func (c *Config) Cluster() *ClusterConfig {
	return c.cluster
}

func (c *Config) Registry() *RegistryConfig {
	return c.registry
}

func (c *Config) Routing() *RoutingConfig {
	return c.routing
}

func (c *Config) Workflows() *WorkflowsConfig {
	return c.workflows
}

type APIConfig struct {
	port int32
}

// port which the API server listens. default = 8080
func (a *APIConfig) Port() int32 {
	return a.port
}

// Configuration of the k8s cluster where model stacks are deployed.
type ClusterConfig struct {
	namespace  string
	domain     string
	kubeconfig string
}

// k8s namespace where model stacks are deployed.
func (c *ClusterConfig) Namespace() string {
	return c.namespace
}

// k8s domain of the cluster. default = "cluster.local"
func (c *ClusterConfig) Domain() string {
	return c.domain
}

// path to kubeconfig file.
//
// Empty means "search defaults, then try in-cluster config".
func (c *ClusterConfig) Kubeconfig() string {
	return c.kubeconfig
}

// Configuration of the private registry which model images are copied into.
type RegistryConfig struct {
	destination string
	insecure    bool
}

// repository prefix where model images are copied into, like "registry.example.com/models".
func (r *RegistryConfig) Destination() string {
	return r.destination
}

// if true, the registry is accessed with plain http.
func (r *RegistryConfig) Insecure() bool {
	return r.insecure
}

type RoutingConfig struct {
	url string
}

// base URL of the routing layer API.
func (r *RoutingConfig) URL() string {
	return r.url
}

// Policies of model workflows.
type WorkflowsConfig struct {
	pollInterval       time.Duration
	maxPolls           int
	actionTimeout      time.Duration
	stackSubmitTimeout time.Duration
	update             *UpdateWorkflowConfig
}

// interval of wait-edges in polling loops. default = 60s
func (w *WorkflowsConfig) PollInterval() time.Duration {
	return w.pollInterval
}

// how many times a polling loop may poll. default = 30
func (w *WorkflowsConfig) MaxPolls() int {
	return w.maxPolls
}

// timeout of each action. default = 60s
func (w *WorkflowsConfig) ActionTimeout() time.Duration {
	return w.actionTimeout
}

// timeout of submitting a model stack. default = 8m
func (w *WorkflowsConfig) StackSubmitTimeout() time.Duration {
	return w.stackSubmitTimeout
}

func (w *WorkflowsConfig) Update() *UpdateWorkflowConfig {
	return w.update
}

type UpdateWorkflowConfig struct {
	failurePath bool
}

// If true, failures in the update workflow are compensated and end as "failed".
// Otherwise they halt the workflow as "unmatched-failure". default = true
func (u *UpdateWorkflowConfig) FailurePath() bool {
	return u.failurePath
}
