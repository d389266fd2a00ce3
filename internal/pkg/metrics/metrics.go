package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdInteractions counts committed interactions by type
	AdInteractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_interactions_total",
			Help: "Advertisement interactions committed, by interaction type",
		},
		[]string{"type"},
	)

	// AdBudgetSpent sums the budget deducted by interactions
	AdBudgetSpent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ads_budget_spent_total",
			Help: "Budget deducted from advertisements by interactions",
		},
	)

	// AdAutoPaused counts campaigns paused because a cap was reached
	AdAutoPaused = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ads_auto_paused_total",
			Help: "Advertisements paused after reaching a budget, impression or click cap",
		},
	)

	// AdStatusTransitions counts lifecycle transitions by target status
	AdStatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_status_transitions_total",
			Help: "Advertisement status transitions, by new status",
		},
		[]string{"to"},
	)

	// SchedulerJobRuns counts job executions by kind (once, recurring) and outcome
	SchedulerJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Scheduler job executions, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// SchedulerActiveJobs tracks registered jobs by kind
	SchedulerActiveJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_active_jobs",
			Help: "Jobs currently registered with the scheduler, by kind",
		},
		[]string{"kind"},
	)

	// HTTPRequests counts HTTP requests by method, route pattern and status
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration observes request latency
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
