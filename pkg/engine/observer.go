package engine

import (
	"log"
	"time"

	"github.com/opst/modelflow/pkg/domain/workflow"
	xe "github.com/opst/modelflow/pkg/errors"
)

type EventType string

const (
	// an action has finished, successfully or not.
	Acted EventType = "acted"

	// moved to the next state without suspension.
	Transitioned EventType = "transitioned"

	// moved to the next state over a wait-edge.
	Waiting EventType = "waiting"

	// a failure is redirected by a catch clause.
	Caught EventType = "caught"

	// halted by a failure which no catch clause matches.
	Unmatched EventType = "unmatched"

	// reached a terminal state.
	Terminated EventType = "terminated"
)

// Event is a notification from the engine to observers.
type Event struct {
	Type EventType

	// Name of the graph.
	Workflow workflow.Name

	From string
	To   string

	// for Acted
	Action   string
	Duration time.Duration

	// for Waiting
	Wait time.Duration

	// for Acted, Caught and Unmatched. nil when the action has succeeded.
	Failure *xe.Failure

	Context workflow.Context
	Status  workflow.Status
}

type Observer interface {
	Observe(Event)
}

// ObserverFunc is an Observer as a function.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(ev Event) {
	f(ev)
}

func (e *Engine) emit(ev Event) {
	ev.Workflow = e.graph.Name
	for _, o := range e.observers {
		o.Observe(ev)
	}
}

// LogObserver writes events to the logger.
func LogObserver(logger *log.Logger) Observer {
	return ObserverFunc(func(ev Event) {
		modelId := ev.Context.ModelId()
		switch ev.Type {
		case Acted:
			if ev.Failure != nil {
				logger.Printf(
					"[%s/%s] %s: action %s failed (%s): %s",
					ev.Workflow, modelId, ev.From, ev.Action, ev.Duration, ev.Failure,
				)
				return
			}
			logger.Printf("[%s/%s] %s: action %s done (%s)", ev.Workflow, modelId, ev.From, ev.Action, ev.Duration)
		case Transitioned:
			logger.Printf("[%s/%s] %s -> %s", ev.Workflow, modelId, ev.From, ev.To)
		case Waiting:
			logger.Printf(
				"[%s/%s] %s -> (wait %s) -> %s (poll #%d)",
				ev.Workflow, modelId, ev.From, ev.Wait, ev.To, ev.Context.PollCount(),
			)
		case Caught:
			logger.Printf("[%s/%s] %s: caught %s -> %s", ev.Workflow, modelId, ev.From, ev.Failure.Kind, ev.To)
		case Unmatched:
			logger.Printf("[%s/%s] %s: halted by unmatched failure: %s", ev.Workflow, modelId, ev.From, ev.Failure)
		case Terminated:
			logger.Printf("[%s/%s] reached %s (%s)", ev.Workflow, modelId, ev.To, ev.Status)
		}
	})
}
