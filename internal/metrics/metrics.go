// Package metrics exports Prometheus counters for the assignment pipeline.
// The Observer is an audit emitter: it consumes the same event stream the
// structured log does, so instrumenting the engine costs no extra plumbing.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hsk98/rota/internal/engine"
)

// Observer implements engine.AuditEmitter over Prometheus collectors.
type Observer struct {
	commits       *prometheus.CounterVec
	reassignments *prometheus.CounterVec
	emptyFilters  prometheus.Counter
	fallbacks     prometheus.Counter
	candidates    prometheus.Histogram
}

// NewObserver registers the pipeline collectors with reg and returns the
// emitter. Pass prometheus.DefaultRegisterer outside of tests.
func NewObserver(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)
	return &Observer{
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rota",
			Name:      "allocation_commits_total",
			Help:      "Allocation commit attempts by outcome.",
		}, []string{"outcome"}),
		reassignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rota",
			Name:      "reassignments_total",
			Help:      "Reassignment attempts by outcome.",
		}, []string{"outcome"}),
		emptyFilters: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rota",
			Name:      "empty_eligible_sets_total",
			Help:      "Pipeline runs where the eligibility filter left no candidates.",
		}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rota",
			Name:      "capability_fallbacks_total",
			Help:      "Selections that fell back to partial capability matches.",
		}),
		candidates: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rota",
			Name:      "eligible_candidates",
			Help:      "Eligible set size after filtering.",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		}),
	}
}

// Emit updates the collectors for one pipeline event.
func (o *Observer) Emit(_ context.Context, ev engine.AuditEvent) {
	switch ev.Step {
	case engine.StepEligibility:
		o.candidates.Observe(float64(len(ev.Candidates)))
		if ev.Outcome == engine.OutcomeEmpty {
			o.emptyFilters.Inc()
		}
	case engine.StepSelection:
		if ev.FallbackUsed {
			o.fallbacks.Inc()
		}
	case engine.StepCommit:
		o.commits.WithLabelValues(ev.Outcome).Inc()
	case engine.StepReassignment:
		o.reassignments.WithLabelValues(ev.Outcome).Inc()
	}
}
