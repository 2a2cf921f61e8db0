// Package registry copies container images into the private registry.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	xe "github.com/opst/modelflow/pkg/errors"
	"github.com/opst/modelflow/pkg/poll"
)

type copyJob struct {
	done bool
	err  error
}

// Copier copies images between registries in background.
//
// Copies are tracked by tokens in the form of "REPOSITORY@DIGEST" of the destination.
// Progress of copies is not persisted: Status asks the destination registry
// whether the digest exists, and only failures are remembered in memory.
// Copies lost by a restart are taken over with Resume.
type Copier struct {
	logger   *log.Logger
	remote   []remote.Option
	nameOpts []name.Option

	m    sync.Mutex
	jobs map[string]*copyJob
	wg   sync.WaitGroup
}

type Option func(*Copier) *Copier

func WithLogger(logger *log.Logger) Option {
	return func(c *Copier) *Copier {
		c.logger = logger
		return c
	}
}

// WithRemoteOptions passes options to go-containerregistry's remote package,
// for example, authentication or transport.
func WithRemoteOptions(options ...remote.Option) Option {
	return func(c *Copier) *Copier {
		c.remote = append(c.remote, options...)
		return c
	}
}

// Insecure allows plain HTTP registries.
func Insecure() Option {
	return func(c *Copier) *Copier {
		c.nameOpts = append(c.nameOpts, name.Insecure)
		return c
	}
}

func New(options ...Option) *Copier {
	c := &Copier{logger: log.Default(), jobs: map[string]*copyJob{}}
	for _, opt := range options {
		c = opt(c)
	}
	return c
}

func (c *Copier) remoteOptions(ctx context.Context) []remote.Option {
	return append([]remote.Option{remote.WithContext(ctx)}, c.remote...)
}

// Submit starts copying the image src into dst.
//
// # Returns
//
// - string: token to poll the copy.
//
// - error: *errors.Failure of InvalidRequest for malformed image names,
// or RemoteFailure when the source image can not be resolved.
func (c *Copier) Submit(ctx context.Context, src string, dst string) (string, error) {
	srcRef, err := name.ParseReference(src, c.nameOpts...)
	if err != nil {
		return "", xe.FailBy(xe.InvalidRequest, fmt.Sprintf("source image %q", src), err)
	}
	dstRef, err := name.ParseReference(dst, c.nameOpts...)
	if err != nil {
		return "", xe.FailBy(xe.InvalidRequest, fmt.Sprintf("destination image %q", dst), err)
	}

	desc, err := remote.Get(srcRef, c.remoteOptions(ctx)...)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return "", cerr
		}
		return "", xe.FailBy(xe.RemoteFailure, fmt.Sprintf("resolving %s", srcRef), err)
	}
	token := dstRef.Context().Digest(desc.Digest.String()).String()

	c.m.Lock()
	defer c.m.Unlock()
	if j, ok := c.jobs[token]; ok && (!j.done || j.err == nil) {
		// in progress or done.
		return token, nil
	}
	job := &copyJob{}
	c.jobs[token] = job

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		// copying outlives the step which has submitted it.
		opts := c.remoteOptions(context.Background())
		var err error
		if desc.MediaType.IsIndex() {
			idx, ierr := desc.ImageIndex()
			if ierr != nil {
				err = ierr
			} else {
				err = remote.WriteIndex(dstRef, idx, opts...)
			}
		} else {
			img, ierr := desc.Image()
			if ierr != nil {
				err = ierr
			} else {
				err = remote.Write(dstRef, img, opts...)
			}
		}

		if err != nil {
			c.logger.Printf("copying %s -> %s failed: %v", srcRef, dstRef, err)
		} else {
			c.logger.Printf("copied %s -> %s (%s)", srcRef, dstRef, desc.Digest)
		}

		c.m.Lock()
		defer c.m.Unlock()
		job.done = true
		job.err = err
	}()

	return token, nil
}

// Status tells whether the image identified by token is in the destination.
func (c *Copier) Status(ctx context.Context, token string) (poll.Result, error) {
	ref, err := name.NewDigest(token, c.nameOpts...)
	if err != nil {
		return poll.Result{
			Status: poll.Failed, Kind: xe.RemoteFailure,
			Detail: fmt.Sprintf("malformed token %q: %v", token, err),
		}, nil
	}

	c.m.Lock()
	job, known := c.jobs[token]
	var jobErr error
	if known && job.done {
		jobErr = job.err
	}
	c.m.Unlock()

	if jobErr != nil {
		return poll.Result{Status: poll.Failed, Kind: xe.RemoteFailure, Detail: jobErr.Error()}, nil
	}

	if _, err := remote.Head(ref, c.remoteOptions(ctx)...); err != nil {
		if terr := new(transport.Error); errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound {
			return poll.Result{Status: poll.Pending, Detail: "not yet in destination"}, nil
		}
		return poll.Result{}, err
	}
	return poll.Result{Status: poll.Ready, Detail: token}, nil
}

// Resume takes over the copy identified by token, which has been submitted
// as src -> dst by Submit possibly in another process.
//
// If this Copier does not track the copy and the image is not in the destination yet,
// the copy is submitted again.
//
// # Returns
//
// - error: *errors.Failure of RemoteFailure when the source has been changed
// into another digest, or errors from Submit.
func (c *Copier) Resume(ctx context.Context, src string, dst string, token string) error {
	c.m.Lock()
	_, known := c.jobs[token]
	c.m.Unlock()
	if known {
		return nil
	}

	result, err := c.Status(ctx, token)
	if err != nil {
		return err
	}
	if result.Status != poll.Pending {
		return nil
	}

	resubmitted, err := c.Submit(ctx, src, dst)
	if err != nil {
		return err
	}
	if resubmitted != token {
		return xe.Fail(
			xe.RemoteFailure, "source image %s has been changed: %s, but %s is awaited",
			src, resubmitted, token,
		)
	}
	c.logger.Printf("resumed copying %s -> %s", src, token)
	return nil
}

// Wait blocks until all copies in background have finished.
func (c *Copier) Wait() {
	c.wg.Wait()
}
