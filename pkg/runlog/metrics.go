package runlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsRecorded tracks saved records by completeness
	RunsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yelp_runs_recorded_total",
			Help: "Total number of loader runs recorded",
		},
		[]string{"complete"}, // "true", "false"
	)

	// RunlogErrors tracks Redis operation errors
	RunlogErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yelp_runlog_errors_total",
			Help: "Total number of run log operation errors",
		},
		[]string{"operation"}, // "save", "get", "history"
	)
)
