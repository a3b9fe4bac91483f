// Package metrics exposes prometheus collectors for the routing core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RouteDecisions counts completed routing decisions by chosen provider.
	RouteDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modelgate_route_decisions_total",
		Help: "Completed routing decisions by provider.",
	}, []string{"provider"})

	// RouteRejections counts rejected or failed routing attempts by reason.
	RouteRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modelgate_route_rejections_total",
		Help: "Rejected or failed routing attempts by reason.",
	}, []string{"reason"})

	// PolicyReloads counts policy table reload attempts by outcome.
	PolicyReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modelgate_policy_reloads_total",
		Help: "Policy table reload attempts by outcome.",
	}, []string{"status"})

	// EvaluationRuns counts completed provider benchmark runs.
	EvaluationRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelgate_evaluation_runs_total",
		Help: "Completed provider benchmark runs.",
	})
)
