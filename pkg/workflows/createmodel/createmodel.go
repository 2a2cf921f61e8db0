// Package createmodel is the workflow provisioning infrastructure of a new model.
//
//	SetCreating -> HasInfraFlag --(createInfra)--> StartImageCopy -> PollImageCopy -> ImageCopyDone
//	                            `-> RegisterModel                    ^                  |
//	                                                                 `--(wait)----------+
//	ImageCopyDone -> StartStackCreate -> PollStackCreate -> StackCreateDone --(wait)--> PollStackCreate
//	StackCreateDone -> RegisterModel -> Succeeded
//
// Failures of copying images or creating stacks are compensated in HandleFailure,
// which marks the model as failed and ends in Failed.
package createmodel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/opst/modelflow/pkg/configs"
	"github.com/opst/modelflow/pkg/domain"
	"github.com/opst/modelflow/pkg/domain/model"
	"github.com/opst/modelflow/pkg/domain/workflow"
	"github.com/opst/modelflow/pkg/engine"
	xe "github.com/opst/modelflow/pkg/errors"
	"github.com/opst/modelflow/pkg/poll"
	"github.com/opst/modelflow/pkg/routing"
	"github.com/opst/modelflow/pkg/workflows"
	"github.com/opst/modelflow/pkg/workloads/k8s"
)

const Name workflow.Name = "create-model"

// states
const (
	SetCreating      = "SetCreating"
	HasInfraFlag     = "HasInfraFlag"
	StartImageCopy   = "StartImageCopy"
	PollImageCopy    = "PollImageCopy"
	ImageCopyDone    = "ImageCopyDone"
	StartStackCreate = "StartStackCreate"
	PollStackCreate  = "PollStackCreate"
	StackCreateDone  = "StackCreateDone"
	RegisterModel    = "RegisterModel"
	HandleFailure    = "HandleFailure"
	Succeeded        = "Succeeded"
	Failed           = "Failed"
)

// actions
const (
	ActionSetCreating      = "setCreating"
	ActionStartImageCopy   = "startImageCopy"
	ActionPollImageCopy    = "pollImageCopy"
	ActionStartStackCreate = "startStackCreate"
	ActionPollStackCreate  = "pollStackCreate"
	ActionRegisterModel    = "registerModel"
	ActionHandleFailure    = "handleFailure"
)

// context fields
const (
	// image reference copied into the private registry.
	FieldImage = "image"

	// URL where the model serves.
	FieldEndpoint = "endpoint"

	// ImageCopy submitted in StartImageCopy.
	FieldImageCopy = "imageCopy"
)

// ImageCopy is a copy of an image into the private registry.
type ImageCopy struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Request is the job starting the workflow.
type Request struct {
	// If true, infrastructure (image and stack) is created for the model.
	CreateInfra bool `json:"createInfra"`

	// URL where the model already serves. Used when CreateInfra is false.
	Endpoint string `json:"endpoint,omitempty"`
}

// Start creates the initial context of the workflow for the model.
func Start(modelId string, req Request) workflow.Context {
	return workflow.NewContext(modelId).
		WithFlag(workflow.FieldCreateInfra, req.CreateInfra).
		WithField(workflow.FieldRequest, req)
}

type Config struct {
	workflows.Policy

	// timeout of submitting a stack.
	StackSubmitTimeout time.Duration

	// repository prefix where images are copied into.
	Destination string
}

func ConfigFrom(conf *configs.Config) Config {
	return Config{
		Policy:             workflows.PolicyFrom(conf.Workflows()),
		StackSubmitTimeout: conf.Workflows().StackSubmitTimeout(),
		Destination:        conf.Registry().Destination(),
	}
}

// ImageCopier copies container images into the private registry.
//
// Submit returns a token to be polled with Status.
// Resume takes over a copy submitted before, for example, by a process restarted since then.
type ImageCopier interface {
	Submit(ctx context.Context, src string, dst string) (string, error)
	Resume(ctx context.Context, src string, dst string, token string) error
	poll.Backend
}

// StackProvisioner creates compute stacks serving models.
//
// Submit returns a token to be polled with Status.
// For ready stacks, Status reports the endpoint in Result.Detail.
type StackProvisioner interface {
	Submit(ctx context.Context, spec k8s.StackSpec) (string, error)
	poll.Backend
}

// Registrar registers models to the routing layer.
type Registrar interface {
	Register(ctx context.Context, reg routing.Registration) error
}

// Deps are collaborators of the workflow.
type Deps struct {
	Models model.Interface
	Images ImageCopier
	Stacks StackProvisioner
	Router Registrar
}

// Graph builds the state graph of the workflow.
func Graph(conf Config) (*workflow.Graph, error) {
	toFailure := func(kinds ...xe.Kind) workflow.Catch {
		return workflow.Catch{Kinds: kinds, Next: HandleFailure}
	}

	return workflow.NewGraph(
		Name, SetCreating,
		workflow.State{
			Name: SetCreating, Action: ActionSetCreating,
			Transitions: []workflow.Transition{workflow.Goto(HasInfraFlag)},
		},
		workflow.State{
			Name: HasInfraFlag,
			Transitions: []workflow.Transition{
				{When: workflow.When(workflow.FieldCreateInfra, true), Next: StartImageCopy},
				workflow.Goto(RegisterModel),
			},
		},
		workflow.State{
			Name: StartImageCopy, Action: ActionStartImageCopy,
			Transitions: []workflow.Transition{workflow.Goto(PollImageCopy)},
		},
		workflow.State{
			Name: PollImageCopy, Action: ActionPollImageCopy, PollLoop: "imageCopy",
			Transitions: []workflow.Transition{workflow.Goto(ImageCopyDone)},
			Catch:       []workflow.Catch{toFailure(xe.MaxPollsExceeded, xe.RemoteFailure)},
		},
		workflow.State{
			Name: ImageCopyDone,
			Transitions: []workflow.Transition{
				{
					When: workflow.When(workflow.FieldContinuePolling, true),
					Next: PollImageCopy, Wait: conf.PollInterval,
				},
				workflow.Goto(StartStackCreate),
			},
		},
		workflow.State{
			Name: StartStackCreate, Action: ActionStartStackCreate, Timeout: conf.StackSubmitTimeout,
			Transitions: []workflow.Transition{workflow.Goto(PollStackCreate)},
			Catch:       []workflow.Catch{toFailure(xe.StackFailedToCreate)},
		},
		workflow.State{
			Name: PollStackCreate, Action: ActionPollStackCreate, PollLoop: "stackCreate",
			Transitions: []workflow.Transition{workflow.Goto(StackCreateDone)},
			Catch:       []workflow.Catch{toFailure(xe.MaxPollsExceeded, xe.UnexpectedStackState)},
		},
		workflow.State{
			Name: StackCreateDone,
			Transitions: []workflow.Transition{
				{
					When: workflow.When(workflow.FieldContinuePolling, true),
					Next: PollStackCreate, Wait: conf.PollInterval,
				},
				workflow.Goto(RegisterModel),
			},
		},
		workflow.State{
			Name: RegisterModel, Action: ActionRegisterModel,
			Transitions: []workflow.Transition{workflow.Goto(Succeeded)},
		},
		workflow.State{
			Name: HandleFailure, Action: ActionHandleFailure,
			Transitions: []workflow.Transition{workflow.Goto(Failed)},
		},
		workflow.State{Name: Succeeded, Terminal: workflow.SuccessTerminal},
		workflow.State{Name: Failed, Terminal: workflow.FailureTerminal},
	)
}

// Actions binds actions of the graph to deps.
func Actions(conf Config, deps Deps) engine.Actions {
	images := poll.New(deps.Images)
	stacks := poll.New(deps.Stacks)
	pollImages := workflows.Polling(
		images, conf.MaxPolls,
		func(c workflow.Context, _ poll.Result) workflow.Context {
			return c.WithField(FieldImage, c.PollToken())
		},
	)

	return engine.Actions{
		ActionSetCreating: func(ctx context.Context, c workflow.Context) (workflow.Context, error) {
			if err := deps.Models.SetStatus(ctx, c.ModelId(), model.Creating, ""); err != nil {
				return c, xe.WrapWithNote("marking model as creating", err)
			}
			return c, nil
		},

		ActionStartImageCopy: func(ctx context.Context, c workflow.Context) (workflow.Context, error) {
			m, err := getModel(ctx, deps.Models, c.ModelId())
			if err != nil {
				return c, err
			}
			dst, err := destination(conf.Destination, m)
			if err != nil {
				return c, err
			}
			token, err := deps.Images.Submit(ctx, m.Spec.Image, dst)
			if err != nil {
				return c, err
			}
			return c.WithPoll(token).
				WithField(FieldImageCopy, ImageCopy{Source: m.Spec.Image, Destination: dst}), nil
		},

		ActionPollImageCopy: func(ctx context.Context, c workflow.Context) (workflow.Context, error) {
			if err := resumeImageCopy(ctx, deps.Images, c); err != nil {
				return c, err
			}
			return pollImages(ctx, c)
		},

		ActionStartStackCreate: func(ctx context.Context, c workflow.Context) (workflow.Context, error) {
			m, err := getModel(ctx, deps.Models, c.ModelId())
			if err != nil {
				return c, err
			}
			image := m.Spec.Image
			if _, err := c.Field(FieldImage, &image); err != nil {
				return c, xe.FailBy(xe.InvalidRequest, "copied image is broken", err)
			}

			token, err := deps.Stacks.Submit(ctx, k8s.StackSpec{
				ModelId:  m.Id,
				Image:    image,
				Port:     m.Spec.Port,
				Replicas: m.Spec.Capacity.Desired,
				Env:      m.Spec.Env,
			})
			if err != nil {
				return c, err
			}
			return c.WithPoll(token), nil
		},

		ActionPollStackCreate: workflows.Polling(
			stacks, conf.MaxPolls,
			func(c workflow.Context, r poll.Result) workflow.Context {
				return c.WithField(FieldEndpoint, r.Detail)
			},
		),

		ActionRegisterModel: func(ctx context.Context, c workflow.Context) (workflow.Context, error) {
			endpoint, err := endpointOf(c)
			if err != nil {
				return c, err
			}
			m, err := getModel(ctx, deps.Models, c.ModelId())
			if err != nil {
				return c, err
			}

			if err := deps.Router.Register(ctx, routing.Registration{
				ModelId: m.Id, ModelName: m.Name, Endpoint: endpoint,
			}); err != nil {
				return c, err
			}
			if err := deps.Models.SetEndpoint(ctx, m.Id, endpoint); err != nil {
				return c, xe.WrapWithNote("recording endpoint", err)
			}
			if err := deps.Models.SetStatus(ctx, m.Id, model.Active, ""); err != nil {
				return c, xe.WrapWithNote("marking model as active", err)
			}
			return c.WithField(FieldEndpoint, endpoint), nil
		},

		ActionHandleFailure: workflows.MarkFailed(deps.Models),
	}
}

// New creates an engine running the workflow.
func New(conf Config, deps Deps, options ...engine.Option) (*engine.Engine, error) {
	g, err := Graph(conf)
	if err != nil {
		return nil, err
	}
	options = append([]engine.Option{engine.WithDefaultTimeout(conf.ActionTimeout)}, options...)
	return engine.New(g, Actions(conf, deps), options...)
}

// resumeImageCopy makes sure that the copy being polled is in progress.
//
// Errors other than Failures are left to the poll, which counts them as pending.
func resumeImageCopy(ctx context.Context, images ImageCopier, c workflow.Context) error {
	job := ImageCopy{}
	if found, err := c.Field(FieldImageCopy, &job); err != nil || !found || c.PollToken() == "" {
		return nil
	}
	err := images.Resume(ctx, job.Source, job.Destination, c.PollToken())
	if err == nil {
		return nil
	}
	if f := new(xe.Failure); errors.As(err, &f) {
		if f.Kind == xe.InvalidRequest {
			return xe.FailBy(xe.RemoteFailure, "resuming image copy", f)
		}
		return f
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return nil
}

func getModel(ctx context.Context, models model.Interface, modelId string) (model.Model, error) {
	m, err := models.Get(ctx, modelId)
	if errors.Is(err, domain.ErrMissing) {
		return m, xe.FailBy(xe.InvalidRequest, fmt.Sprintf("model %s", modelId), err)
	}
	return m, err
}

// destination decides where the image of the model is copied into.
//
// The repository is named after the stack, and the tag of the source image is kept.
func destination(prefix string, m model.Model) (string, error) {
	src, err := name.ParseReference(m.Spec.Image)
	if err != nil {
		return "", xe.FailBy(xe.InvalidRequest, "image of model "+m.Id, err)
	}
	tag := name.DefaultTag
	if t, ok := src.(name.Tag); ok {
		tag = t.TagStr()
	}
	return fmt.Sprintf("%s/%s:%s", prefix, k8s.StackName(m.Id), tag), nil
}

func endpointOf(c workflow.Context) (string, error) {
	endpoint := ""
	if _, err := c.Field(FieldEndpoint, &endpoint); err != nil {
		return "", xe.FailBy(xe.InvalidRequest, "endpoint is broken", err)
	}
	if endpoint != "" {
		return endpoint, nil
	}

	req := Request{}
	if _, err := c.Field(workflow.FieldRequest, &req); err != nil {
		return "", xe.FailBy(xe.InvalidRequest, "request is broken", err)
	}
	if req.Endpoint == "" {
		return "", xe.Fail(xe.InvalidRequest, "no endpoint to be registered for model %s", c.ModelId())
	}
	return req.Endpoint, nil
}
