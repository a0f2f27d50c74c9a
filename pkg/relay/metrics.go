package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	// MessagesTotal counts per-message outcomes: success, failed, timeout, rejected, error.
	MessagesTotal *prometheus.CounterVec
	// BatchesTotal counts batches by aggregate status.
	BatchesTotal *prometheus.CounterVec
	// ConfirmationSeconds is the time from broadcast to receipt.
	ConfirmationSeconds prometheus.Histogram
	GasUsedTotal        prometheus.Counter
}

// NewMetrics creates the relay collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_messages_total",
			Help: "Total number of relayed messages by outcome",
		}, []string{"outcome"}),
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_batches_total",
			Help: "Total number of relay batches by status",
		}, []string{"status"}),
		ConfirmationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatrelay_confirmation_seconds",
			Help:    "Time from broadcast to receipt in seconds",
			Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 45, 60},
		}),
		GasUsedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_gas_used_total",
			Help: "Total gas used by relayed transactions",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.MessagesTotal, m.BatchesTotal, m.ConfirmationSeconds, m.GasUsedTotal)
	}
	return m
}
