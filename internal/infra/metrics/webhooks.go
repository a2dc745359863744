package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(webhooksReceivedTotal, webhookProcessingSeconds) }

var webhooksReceivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "inference_webhooks_received_total",
		Help: "Provider webhooks received, labeled by reported job status and outcome.",
	},
	[]string{"job_status", "outcome"}, // outcome: 'processed', 'duplicate', 'orphan', 'error'
)

var webhookProcessingSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "inference_webhook_processing_seconds",
		Help:    "Webhook handling duration.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.0, 5.0},
	},
)

func IncWebhookReceived(jobStatus, outcome string) {
	webhooksReceivedTotal.WithLabelValues(jobStatus, outcome).Inc()
}

func ObserveWebhookProcessing(d time.Duration) {
	webhookProcessingSeconds.Observe(d.Seconds())
}
