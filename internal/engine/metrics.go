package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransitionsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_transitions_applied_total",
			Help: "State transitions this process won",
		},
		[]string{"transition"},
	)
	TransitionConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_transition_conflicts_total",
			Help: "Conditional updates lost to a concurrent observer",
		},
		[]string{"transition"},
	)
	SessionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_sessions_finished_total",
			Help: "Finished sessions by outcome",
		},
		[]string{"outcome"},
	)
	SessionsAbandoned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_sessions_abandoned_total",
			Help: "Sessions abandoned by a mid-game departure",
		},
	)
	RematchesMinted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_rematches_minted_total",
			Help: "Successor sessions created",
		},
	)
)

func init() {
	prometheus.MustRegister(TransitionsApplied)
	prometheus.MustRegister(TransitionConflicts)
	prometheus.MustRegister(SessionsFinished)
	prometheus.MustRegister(SessionsAbandoned)
	prometheus.MustRegister(RematchesMinted)
}
