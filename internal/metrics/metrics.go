package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by callers.
const (
	ResultSubmitted = "submitted"
	ResultFailed    = "failed"
	ResultClicked   = "clicked"

	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

var (
	// SearchesTotal counts search attempts by result.
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardrunner_searches_total",
			Help: "Total number of search attempts",
		},
		[]string{"result"},
	)

	// RewardLinksFound counts activity links seen on the rewards page.
	RewardLinksFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewardrunner_reward_links_found_total",
			Help: "Total number of reward activity links found",
		},
	)

	// RewardClicksTotal counts reward activity clicks by result.
	RewardClicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardrunner_reward_clicks_total",
			Help: "Total number of reward activity click attempts",
		},
		[]string{"result"},
	)

	// RunsTotal counts finished runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardrunner_runs_total",
			Help: "Total number of runs finished",
		},
		[]string{"outcome"},
	)

	// RunDuration tracks run duration in seconds.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rewardrunner_run_duration_seconds",
			Help:    "Run duration in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"outcome"},
	)

	// RunInProgress is 1 while a run holds the busy flag.
	RunInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rewardrunner_run_in_progress",
			Help: "Whether a run is currently in progress",
		},
	)

	// TriggersTotal counts trigger firings by source and admission.
	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardrunner_triggers_total",
			Help: "Total number of trigger firings",
		},
		[]string{"source", "accepted"},
	)

	// HTTPRequests counts total HTTP requests.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardrunner_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPDuration tracks HTTP request duration.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rewardrunner_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)
