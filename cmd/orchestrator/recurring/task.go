package recurring

import (
	"context"

	"github.com/opst/modelflow/pkg/loop"
)

// Task is a cycle of a recurring loop.
//
// # Returns
//
// - T: the value passed to the next cycle.
//
// - bool: true when the cycle has made progress, and there may be more to do.
//
// - error: error of the cycle. Policy decides whether the loop stops by it.
type Task[T any] func(context.Context, T) (T, bool, error)

// Applied makes the task a loop.Task, which goes on as p says.
func (rt Task[T]) Applied(p Policy) loop.Task[T] {
	return func(ctx context.Context, t T) (T, loop.Next) {
		next, progressed, err := rt(ctx, t)
		return next, p.Next(progressed, err)
	}
}
