// Package engine interprets workflow graphs.
//
// An Engine executes one state at a time (Step) against a Cursor, and drives a
// Cursor to a terminal state (Run). The durable runner persists the Cursor
// after each Step and re-enters it later; Run keeps it in memory.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opst/modelflow/pkg/domain/workflow"
	xe "github.com/opst/modelflow/pkg/errors"
	"github.com/opst/modelflow/pkg/loop"
)

var (
	// The cursor points a state which is not in the graph.
	ErrUnknownState = errors.New("unknown state")

	// A state refers an action which is not bound to the engine.
	ErrUnboundAction = errors.New("action is not bound")

	// The workflow has halted by a failure which no catch clause matches.
	ErrUnmatchedFailure = errors.New("unmatched failure")
)

// Action is a unit of work run on entering a state.
//
// It receives a private copy of the Context and returns the updated one.
// To route the failure with catch clauses, return *errors.Failure.
// Other errors are classified as Unclassified (or Timeout, for deadline exceeded).
type Action func(ctx context.Context, c workflow.Context) (workflow.Context, error)

// Actions binds action names in a graph to implementations.
type Actions map[string]Action

// Cursor is the position of a workflow instance in its graph.
type Cursor struct {
	// Name of the state to be executed next.
	State string

	Context workflow.Context

	Status workflow.Status

	// Suspension to be taken before executing State.
	Wait time.Duration
}

// Stopped reports whether the cursor has reached the end of the workflow.
func (c Cursor) Stopped() bool {
	return c.Status.Terminal()
}

type Engine struct {
	graph          *workflow.Graph
	actions        Actions
	defaultTimeout time.Duration
	observers      []Observer
	waiter         loop.Waiter
	clock          func() time.Time
}

type Option func(*Engine) *Engine

// WithDefaultTimeout sets timeout of actions in states without their own one.
//
// Zero means no timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) *Engine {
		e.defaultTimeout = d
		return e
	}
}

// WithObserver adds an observer of engine events.
func WithObserver(o Observer) Option {
	return func(e *Engine) *Engine {
		if o != nil {
			e.observers = append(e.observers, o)
		}
		return e
	}
}

// WithWaiter replaces how Run suspends on wait-edges.
func WithWaiter(w loop.Waiter) Option {
	return func(e *Engine) *Engine {
		if w != nil {
			e.waiter = w
		}
		return e
	}
}

// WithClock replaces the clock measuring action durations.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) *Engine {
		if clock != nil {
			e.clock = clock
		}
		return e
	}
}

// New creates an Engine for the graph.
//
// Every action referred from the graph should be bound in actions.
func New(graph *workflow.Graph, actions Actions, options ...Option) (*Engine, error) {
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	for _, name := range graph.Actions() {
		if actions[name] == nil {
			return nil, fmt.Errorf("%w: %s (graph %s)", ErrUnboundAction, name, graph.Name)
		}
	}

	e := &Engine{
		graph:   graph,
		actions: actions,
		waiter:  loop.TimerWaiter,
		clock:   time.Now,
	}
	for _, opt := range options {
		e = opt(e)
	}
	return e, nil
}

func (e *Engine) Graph() *workflow.Graph {
	return e.graph
}

// Start creates a cursor at the initial state of the graph.
func (e *Engine) Start(c workflow.Context) Cursor {
	cur := Cursor{State: e.graph.Initial, Context: c, Status: workflow.Running}
	if s, ok := e.graph.State(cur.State); ok && s.IsTerminal() {
		cur.Status = s.Terminal.Status()
	}
	return cur
}

// Step executes the state pointed by the cursor, and returns the cursor
// pointing the next state.
//
// Step does not take the suspension in cur.Wait; it is the caller's business.
//
// # Returns
//
// - Cursor: the next position. When the action fails and no catch clause
// matches, the cursor stays at the state with status UnmatchedFailure.
//
// - error: when the step could not be completed. In that case the cursor is
// returned unchanged, and the step should be re-entered later.
// It is ctx.Err() when ctx has been cancelled during the step.
func (e *Engine) Step(ctx context.Context, cur Cursor) (Cursor, error) {
	if cur.Stopped() {
		return cur, nil
	}
	if err := ctx.Err(); err != nil {
		return cur, err
	}

	state, ok := e.graph.State(cur.State)
	if !ok {
		return cur, fmt.Errorf("%w: %s (graph %s)", ErrUnknownState, cur.State, e.graph.Name)
	}
	if state.IsTerminal() {
		cur.Status = state.Terminal.Status()
		cur.Wait = 0
		e.emit(Event{Type: Terminated, From: state.Name, To: state.Name, Context: cur.Context, Status: cur.Status})
		return cur, nil
	}

	c := cur.Context.EnterPollLoop(state.PollLoop)

	if state.Action != "" {
		next, failure, err := e.act(ctx, state, c)
		if err != nil {
			return cur, err
		}
		if failure != nil {
			c = c.WithLastError(failure)
			catch, ok := state.Caught(failure.Kind)
			if !ok {
				halted := Cursor{
					State:   state.Name,
					Context: c.Stepped(),
					Status:  workflow.UnmatchedFailure,
				}
				e.emit(Event{
					Type: Unmatched, From: state.Name, To: state.Name,
					Context: halted.Context, Status: halted.Status, Failure: failure,
				})
				return halted, nil
			}
			e.emit(Event{
				Type: Caught, From: state.Name, To: catch.Next,
				Context: c, Status: workflow.Running, Failure: failure,
			})
			return e.enter(state.Name, catch.Next, 0, c.Stepped()), nil
		}
		c = next
	}

	t, ok := state.Next(c)
	if !ok {
		// NewGraph rejects states without default transition.
		return cur, fmt.Errorf(
			"%w: no transition holds at %s (graph %s)", workflow.ErrInvalidGraph, state.Name, e.graph.Name,
		)
	}
	return e.enter(state.Name, t.Next, t.Wait, c.Stepped()), nil
}

func (e *Engine) enter(from, to string, wait time.Duration, c workflow.Context) Cursor {
	next := Cursor{State: to, Context: c, Status: workflow.Running, Wait: wait}
	if s, ok := e.graph.State(to); ok && s.IsTerminal() {
		next.Status = s.Terminal.Status()
		next.Wait = 0
	}

	typ := Transitioned
	if next.Wait > 0 {
		typ = Waiting
	}
	e.emit(Event{Type: typ, From: from, To: to, Wait: next.Wait, Context: c, Status: next.Status})
	if next.Stopped() {
		e.emit(Event{Type: Terminated, From: to, To: to, Context: c, Status: next.Status})
	}
	return next
}

// act runs the action of the state.
//
// It returns either the updated context, a failure to be routed, or an error
// meaning the step has been interrupted.
func (e *Engine) act(ctx context.Context, state workflow.State, c workflow.Context) (workflow.Context, *xe.Failure, error) {
	action := e.actions[state.Action]
	if action == nil {
		return c, nil, fmt.Errorf("%w: %s (graph %s)", ErrUnboundAction, state.Action, e.graph.Name)
	}

	timeout := state.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	actx, cancel := ctx, context.CancelFunc(func() {})
	if 0 < timeout {
		actx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	started := e.clock()
	next, err := action(actx, c.Clone())
	e.emit(Event{
		Type: Acted, From: state.Name, To: state.Name, Action: state.Action,
		Context: c, Status: workflow.Running, Duration: e.clock().Sub(started),
		Failure: xe.AsFailure(err),
	})

	if err == nil {
		return next, nil, nil
	}
	if cerr := ctx.Err(); cerr != nil {
		// interrupted from outside. the state will be re-entered.
		return c, nil, cerr
	}
	if errors.Is(actx.Err(), context.DeadlineExceeded) && xe.KindOf(err) == xe.Unclassified {
		return c, xe.FailBy(xe.Timeout, fmt.Sprintf("action %s did not finish in %s", state.Action, timeout), err), nil
	}
	return c, xe.AsFailure(err), nil
}

// Run drives a new workflow instance from the initial state to a terminal state.
//
// # Returns
//
// - workflow.Context: the context at last.
//
// - workflow.Status: Succeeded or Failed when a terminal state is reached.
// UnmatchedFailure when halted by an uncaught failure.
// Running when interrupted.
//
// - error: ErrUnmatchedFailure (wrapping the failure) for UnmatchedFailure,
// or the error which has interrupted the run.
func (e *Engine) Run(ctx context.Context, init workflow.Context) (workflow.Context, workflow.Status, error) {
	return e.Resume(ctx, e.Start(init))
}

// Resume drives the cursor to a terminal state, taking its pending suspension first.
func (e *Engine) Resume(ctx context.Context, cur Cursor) (workflow.Context, workflow.Status, error) {
	if cur.Wait > 0 && !cur.Stopped() {
		if err := e.waiter(ctx, cur.Wait); err != nil {
			return cur.Context, cur.Status, err
		}
	}

	last, err := loop.Start(
		ctx, cur,
		func(ctx context.Context, cur Cursor) (Cursor, loop.Next) {
			next, err := e.Step(ctx, cur)
			if err != nil {
				return cur, loop.Break(err)
			}
			if next.Stopped() {
				return next, loop.Break(nil)
			}
			return next, loop.Continue(next.Wait)
		},
		loop.WithWaiter(func(ctx context.Context, d time.Duration) error {
			if d <= 0 {
				return ctx.Err()
			}
			return e.waiter(ctx, d)
		}),
	)
	if err != nil {
		return last.Context, last.Status, err
	}
	if last.Status == workflow.UnmatchedFailure {
		le := last.Context.LastError()
		return last.Context, last.Status, fmt.Errorf(
			"%w at %s (graph %s): %s: %s", ErrUnmatchedFailure, last.State, e.graph.Name, le.Kind, le.Message,
		)
	}
	return last.Context, last.Status, nil
}
