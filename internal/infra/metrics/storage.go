package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(storageOpsTotal, storageTransferBytes) }

var storageOpsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "inference_s3_operations_total",
		Help: "Object storage operations.",
	},
	[]string{"operation", "status"}, // operation: 'get', 'put', 'presign'
)

var storageTransferBytes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "inference_s3_transfer_bytes_total",
		Help: "Bytes transferred to and from object storage.",
	},
	[]string{"operation"},
)

func IncStorageOp(op, status string) { storageOpsTotal.WithLabelValues(op, status).Inc() }

func AddStorageBytes(op string, n int) {
	if n > 0 {
		storageTransferBytes.WithLabelValues(op).Add(float64(n))
	}
}
