// Package metrics exposes the runtime's Prometheus instrumentation: queue
// depth gauges, scheduler tick counters, and sendProtected ACL-denial
// counters. It is wired in as a built-in facet kind ("metrics") that any
// subsystem's hooks may declare as a dependency, the same way they'd depend
// on "logger" or "storage".
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"submesh/internal/facet"
)

// Kind is the facet kind this package registers under.
const Kind facet.Kind = "metrics"

// Registry bundles every metric this runtime emits. It is safe to register
// against the default Prometheus registry at most once per process; callers
// embedding multiple coordinators in one process should share a Registry.
type Registry struct {
	QueueDepth      *prometheus.GaugeVec
	SchedulerTicks  *prometheus.CounterVec
	ACLDenials      prometheus.Counter
	HandlerErrors   *prometheus.CounterVec
	RequestTimeouts prometheus.Counter
}

// New constructs a Registry with its collectors created but not yet
// registered with any prometheus.Registerer.
func New() *Registry {
	return &Registry{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "submesh",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Current number of messages queued per subsystem.",
		}, []string{"subsystem"}),
		SchedulerTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "submesh",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Number of scheduler ticks that granted a subsystem a time slice.",
		}, []string{"subsystem", "strategy"}),
		ACLDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "submesh",
			Subsystem: "kernel",
			Name:      "acl_denials_total",
			Help:      "Number of sendProtected calls rejected by an ACL check.",
		}),
		HandlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "submesh",
			Subsystem: "subsystem",
			Name:      "handler_errors_total",
			Help:      "Number of classified handler errors recorded, by subsystem.",
		}, []string{"subsystem"}),
		RequestTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "submesh",
			Subsystem: "requests",
			Name:      "timeouts_total",
			Help:      "Number of one-shot or command replies that timed out.",
		}),
	}
}

// MustRegister registers every collector against reg.
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(r.QueueDepth, r.SchedulerTicks, r.ACLDenials, r.HandlerErrors, r.RequestTimeouts)
}

// Hook returns a facet.Hook that attaches this Registry as the "metrics"
// facet on a subsystem, with no dependencies and no init/dispose work.
func (r *Registry) Hook() facet.Hook {
	return facet.Hook{
		Kind:   Kind,
		Attach: true,
		Origin: "internal/metrics",
		Build: func(ctx *facet.BuildContext) (*facet.Facet, error) {
			return &facet.Facet{Methods: r}, nil
		},
	}
}
