package main

import (
	"context"
	"log"
	"time"

	"github.com/opst/modelflow/cmd/orchestrator/recurring"
	"github.com/opst/modelflow/cmd/orchestrator/runner"
	"github.com/opst/modelflow/pkg/domain/instance"
	"github.com/opst/modelflow/pkg/loop"
)

type LoggerOptions func(*log.Logger) *log.Logger

func byLogger(l *log.Logger, opt ...LoggerOptions) *log.Logger {
	for _, o := range opt {
		l = o(l)
	}
	return l
}

func Copied() LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		return log.New(l.Writer(), l.Prefix(), l.Flags())
	}
}

func WithPrefix(pre string) LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		l.SetPrefix(pre)
		return l
	}
}

func WithTimestamp() LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		l.SetFlags(l.Flags() | log.Ldate | log.Ltime | log.Lmicroseconds)
		return l
	}
}

// monitor logs start and end of each cycle of the task.
func monitor[T any](logger *log.Logger, task loop.Task[T]) loop.Task[T] {
	var counter uint64
	return func(ctx context.Context, t T) (ret T, next loop.Next) {
		counter += 1
		timestamp := time.Now()

		logger.Printf("task start: #0x%X", counter)
		defer func() {
			logger.Printf(
				"task end: #0x%X (takes %s): %s with value = %+v",
				counter, time.Since(timestamp), next, ret,
			)
		}()

		ret, next = task(ctx, t)
		return
	}
}

// RunnerManifest determines how the runner loop behaves.
type RunnerManifest struct {
	Policy recurring.Policy

	// Limit of a cycle, which executes one state of an instance.
	//
	// It should be longer than the longest timeout of actions.
	CycleTimeout time.Duration
}

// StartRunner starts the loop stepping workflow instances.
//
// It blocks until the loop is broken by the policy or ctx.
func StartRunner(
	ctx context.Context,
	logger *log.Logger,
	instances instance.Interface,
	engines runner.Engines,
	manifest RunnerManifest,
) error {
	l := byLogger(logger, Copied(), WithPrefix("[runner loop] "), WithTimestamp())
	options := []loop.Option{}
	if 0 < manifest.CycleTimeout {
		options = append(options, loop.WithTimeout(manifest.CycleTimeout))
	}

	_, err := loop.Start(
		ctx, runner.Seed(engines.Names()),
		monitor(
			l,
			runner.Task(l, instances, engines).Applied(manifest.Policy),
		),
		options...,
	)
	return err
}
