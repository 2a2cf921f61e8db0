package configs

import (
	"fmt"
	"time"
)

const (
	DefaultPort               = 8080
	DefaultDomain             = "cluster.local"
	DefaultPollInterval       = 60 * time.Second
	DefaultMaxPolls           = 30
	DefaultActionTimeout      = 60 * time.Second
	DefaultStackSubmitTimeout = 8 * time.Minute
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

// Configuration of modelflow.
//
// This type is marshalling value and mutable.
// Consider to use immutable version, `Config`.
type ConfigMarshall struct {
	Database  string                   `yaml:"database"`
	API       *APIConfigMarshall       `yaml:"api,omitempty"`
	Cluster   *ClusterConfigMarshall   `yaml:"cluster"`
	Registry  *RegistryConfigMarshall  `yaml:"registry"`
	Routing   *RoutingConfigMarshall   `yaml:"routing"`
	Workflows *WorkflowsConfigMarshall `yaml:"workflows,omitempty"`
}

var _ Marshalled[*Config] = &ConfigMarshall{}

func (c *ConfigMarshall) trySeal(path string) *Config {
	api := c.API
	if api == nil {
		api = &APIConfigMarshall{}
	}
	wf := c.Workflows
	if wf == nil {
		wf = &WorkflowsConfigMarshall{}
	}
	return &Config{
		database:  required(c.Database, path+".database"),
		api:       api.trySeal(path + ".api"),
		cluster:   nonnil(c.Cluster, path+".cluster").trySeal(path + ".cluster"),
		registry:  nonnil(c.Registry, path+".registry").trySeal(path + ".registry"),
		routing:   nonnil(c.Routing, path+".routing").trySeal(path + ".routing"),
		workflows: wf.trySeal(path + ".workflows"),
	}
}

type APIConfigMarshall struct {
	Port int32 `yaml:"port,omitempty"`
}

func (a *APIConfigMarshall) trySeal(path string) *APIConfig {
	port := a.Port
	if port == 0 {
		port = DefaultPort
	}
	if port < 0 || 65535 < port {
		panic(fmt.Sprintf("%s.port should be in [1, 65535]: %d", path, port))
	}
	return &APIConfig{port: port}
}

type ClusterConfigMarshall struct {
	Namespace  string `yaml:"namespace"`
	Domain     string `yaml:"domain,omitempty"`
	Kubeconfig string `yaml:"kubeconfig,omitempty"`
}

func (c *ClusterConfigMarshall) trySeal(path string) *ClusterConfig {
	domain := c.Domain
	if domain == "" {
		domain = DefaultDomain
	}
	return &ClusterConfig{
		namespace:  required(c.Namespace, path+".namespace"),
		domain:     domain,
		kubeconfig: c.Kubeconfig,
	}
}

type RegistryConfigMarshall struct {
	Destination string `yaml:"destination"`
	Insecure    bool   `yaml:"insecure,omitempty"`
}

func (r *RegistryConfigMarshall) trySeal(path string) *RegistryConfig {
	return &RegistryConfig{
		destination: required(r.Destination, path+".destination"),
		insecure:    r.Insecure,
	}
}

type RoutingConfigMarshall struct {
	URL string `yaml:"url"`
}

func (r *RoutingConfigMarshall) trySeal(path string) *RoutingConfig {
	return &RoutingConfig{
		url: required(r.URL, path+".url"),
	}
}

type WorkflowsConfigMarshall struct {
	PollInterval       string                        `yaml:"pollInterval,omitempty"`
	MaxPolls           int                           `yaml:"maxPolls,omitempty"`
	ActionTimeout      string                        `yaml:"actionTimeout,omitempty"`
	StackSubmitTimeout string                        `yaml:"stackSubmitTimeout,omitempty"`
	Update             *UpdateWorkflowConfigMarshall `yaml:"update,omitempty"`
}

func (w *WorkflowsConfigMarshall) trySeal(path string) *WorkflowsConfig {
	maxPolls := w.MaxPolls
	if maxPolls == 0 {
		maxPolls = DefaultMaxPolls
	}
	if maxPolls < 0 {
		panic(fmt.Sprintf("%s.maxPolls should be positive: %d", path, maxPolls))
	}
	update := w.Update
	if update == nil {
		update = &UpdateWorkflowConfigMarshall{}
	}
	return &WorkflowsConfig{
		pollInterval:       duration(w.PollInterval, DefaultPollInterval, path+".pollInterval"),
		maxPolls:           maxPolls,
		actionTimeout:      duration(w.ActionTimeout, DefaultActionTimeout, path+".actionTimeout"),
		stackSubmitTimeout: duration(w.StackSubmitTimeout, DefaultStackSubmitTimeout, path+".stackSubmitTimeout"),
		update:             update.trySeal(path + ".update"),
	}
}

type UpdateWorkflowConfigMarshall struct {
	FailurePath *bool `yaml:"failurePath,omitempty"`
}

func (u *UpdateWorkflowConfigMarshall) trySeal(string) *UpdateWorkflowConfig {
	failurePath := true
	if u.FailurePath != nil {
		failurePath = *u.FailurePath
	}
	return &UpdateWorkflowConfig{failurePath: failurePath}
}

func duration(v string, defaultValue time.Duration, path string) time.Duration {
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s can not be parsed: %w", path, err))
	}
	if d <= 0 {
		panic(fmt.Sprintf("%s should be positive: %s", path, v))
	}
	return d
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
