// Package poll implements one "submit work, then poll for completion" interaction
// with a remote backend.
//
// The Client re-derives the status from the backend on every call. It keeps only
// attempt bookkeeping, which is not persisted: after a restart, the attempt number
// carried in the workflow context is the source of truth.
package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	xe "github.com/opst/modelflow/pkg/errors"
)

type Status string

const (
	Pending Status = "pending"
	Ready   Status = "ready"
	Failed  Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

// Result is a status reported by a backend.
type Result struct {
	Status Status

	// Backend specific detail. For Ready, it may carry an output (e.g. an endpoint).
	// For Failed, it describes the failure.
	Detail string

	// Kind of failure for Failed. Empty means RemoteFailure.
	Kind xe.Kind
}

// Backend tells the status of a remote operation identified by a token.
type Backend interface {
	Status(ctx context.Context, token string) (Result, error)
}

// BackendFunc is a Backend as a function.
type BackendFunc func(ctx context.Context, token string) (Result, error)

func (f BackendFunc) Status(ctx context.Context, token string) (Result, error) {
	return f(ctx, token)
}

// Record is the bookkeeping of polls for a token.
type Record struct {
	Key          string
	Attempts     int
	FirstAttempt time.Time
	LastStatus   Status
}

type Client struct {
	backend Backend
	clock   func() time.Time

	m       sync.Mutex
	records map[string]Record
}

type Option func(*Client) *Client

func WithClock(clock func() time.Time) Option {
	return func(c *Client) *Client {
		c.clock = clock
		return c
	}
}

func New(backend Backend, options ...Option) *Client {
	c := &Client{backend: backend, clock: time.Now, records: map[string]Record{}}
	for _, opt := range options {
		c = opt(c)
	}
	return c
}

// Poll asks the backend the status of the operation identified by key.
//
// attempt is the 1-origin number of this poll in the polling loop, and ceiling
// is the maximum number of polls. A Pending status at attempt >= ceiling is a
// Failure of MaxPollsExceeded; so ceiling-1 pending polls keep the loop going.
// ceiling <= 0 means no ceiling.
//
// # Returns
//
// - Result: the status reported by the backend.
//
// - error: *errors.Failure for a Failed status or exceeding the ceiling.
// Errors from the backend are returned as they are.
func (c *Client) Poll(ctx context.Context, key string, attempt int, ceiling int) (Result, error) {
	result, err := c.backend.Status(ctx, key)
	if err != nil {
		return Result{}, err
	}
	c.record(key, attempt, result.Status)

	switch result.Status {
	case Ready:
		return result, nil
	case Failed:
		kind := result.Kind
		if kind == "" {
			kind = xe.RemoteFailure
		}
		return result, xe.Fail(kind, "%s: %s", key, result.Detail)
	case Pending:
		if 0 < ceiling && ceiling <= attempt {
			return result, xe.Fail(
				xe.MaxPollsExceeded, "%s is still pending after %d polls", key, attempt,
			)
		}
		return result, nil
	default:
		return result, fmt.Errorf("%s: unknown status from backend: %q", key, result.Status)
	}
}

func (c *Client) record(key string, attempt int, status Status) {
	c.m.Lock()
	defer c.m.Unlock()

	if status != Pending {
		delete(c.records, key)
		return
	}
	r, ok := c.records[key]
	if !ok {
		r = Record{Key: key, FirstAttempt: c.clock()}
	}
	// re-polling with the same attempt does not count twice.
	r.Attempts = max(r.Attempts, attempt)
	r.LastStatus = status
	c.records[key] = r
}

// Record returns the bookkeeping of an outstanding key.
//
// Keys which have reached a terminal status are forgotten.
func (c *Client) Record(key string) (Record, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	r, ok := c.records[key]
	return r, ok
}
