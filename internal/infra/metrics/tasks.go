package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(tasksCreatedTotal, tasksFinishedTotal, pollingRequestsTotal, rateLimitHitsTotal) }

var tasksCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "inference_tasks_created_total",
		Help: "Total number of inference tasks created, labeled by provider.",
	},
	[]string{"provider"},
)

var tasksFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "inference_tasks_finished_total",
		Help: "Total number of inference tasks reaching a terminal status.",
	},
	[]string{"status"}, // 'COMPLETED', 'FAILED', 'CANCELLED'
)

var pollingRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "inference_polling_requests_total",
		Help: "Status poll requests, labeled by the task status served.",
	},
	[]string{"task_status"},
)

var rateLimitHitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "inference_rate_limit_hits_total",
		Help: "Requests rejected by the per-user rate limiter.",
	},
	[]string{"endpoint"},
)

func IncTaskCreated(provider string)     { tasksCreatedTotal.WithLabelValues(provider).Inc() }
func IncTaskFinished(status string)      { tasksFinishedTotal.WithLabelValues(status).Inc() }
func IncPollingRequest(status string)    { pollingRequestsTotal.WithLabelValues(status).Inc() }
func IncRateLimitHit(endpoint string)    { rateLimitHitsTotal.WithLabelValues(endpoint).Inc() }
