// Package metrics exports Prometheus metrics of workflow engines.
package metrics

import (
	"github.com/opst/modelflow/pkg/domain/workflow"
	"github.com/opst/modelflow/pkg/engine"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "modelflow"

// Metrics is a set of collectors fed by engine events.
type Metrics struct {
	actionDuration *prometheus.HistogramVec
	transitions    *prometheus.CounterVec
	failures       *prometheus.CounterVec
	terminated     *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Histogram of workflow action duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 480},
			},
			[]string{"workflow", "action", "result"}, // result: ok, failed
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of transitions between workflow states",
			},
			[]string{"workflow", "from", "to", "edge"}, // edge: plain, wait, catch
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Total number of failures raised by workflow actions",
			},
			[]string{"workflow", "state", "kind", "caught"},
		),
		terminated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_terminated_total",
				Help:      "Total number of workflows which have stopped, by status",
			},
			[]string{"workflow", "status"},
		),
	}
}

// Register registers all collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.actionDuration, m.transitions, m.failures, m.terminated,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Observe implements engine.Observer.
func (m *Metrics) Observe(ev engine.Event) {
	wf := string(ev.Workflow)
	switch ev.Type {
	case engine.Acted:
		result := "ok"
		if ev.Failure != nil {
			result = "failed"
		}
		m.actionDuration.WithLabelValues(wf, ev.Action, result).Observe(ev.Duration.Seconds())
	case engine.Transitioned:
		m.transitions.WithLabelValues(wf, ev.From, ev.To, "plain").Inc()
	case engine.Waiting:
		m.transitions.WithLabelValues(wf, ev.From, ev.To, "wait").Inc()
	case engine.Caught:
		m.transitions.WithLabelValues(wf, ev.From, ev.To, "catch").Inc()
		m.failures.WithLabelValues(wf, ev.From, ev.Failure.Kind.String(), "true").Inc()
	case engine.Unmatched:
		m.failures.WithLabelValues(wf, ev.From, ev.Failure.Kind.String(), "false").Inc()
		m.terminated.WithLabelValues(wf, string(workflow.UnmatchedFailure)).Inc()
	case engine.Terminated:
		m.terminated.WithLabelValues(wf, string(ev.Status)).Inc()
	}
}

var _ engine.Observer = &Metrics{}
