package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(providerCallsTotal, providerCallSeconds) }

var providerCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "inference_provider_api_calls_total",
		Help: "Calls to the remote GPU job API.",
	},
	[]string{"provider", "op", "success"},
)

var providerCallSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "inference_provider_api_duration_seconds",
		Help:    "Remote GPU job API call latency.",
		Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	},
	[]string{"provider", "op"},
)

func ObserveProviderCall(provider, op string, d time.Duration, success bool) {
	providerCallsTotal.WithLabelValues(provider, op, strconv.FormatBool(success)).Inc()
	providerCallSeconds.WithLabelValues(provider, op).Observe(d.Seconds())
}
