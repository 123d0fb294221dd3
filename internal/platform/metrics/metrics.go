package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the subsystem.
type Metrics struct {
	GateDecisions      *prometheus.CounterVec
	AuditEvents        *prometheus.CounterVec
	AuditWriteFailures prometheus.Counter
	Generations        prometheus.Counter
	ExportRows         prometheus.Histogram
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		GateDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "everkeep_gate_decisions_total",
			Help: "Gate authorization decisions by capability and outcome",
		}, []string{"capability", "outcome"}),
		AuditEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "everkeep_audit_events_total",
			Help: "Audit events recorded, by category",
		}, []string{"category"}),
		AuditWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "everkeep_audit_write_failures_total",
			Help: "Audit writes that failed and therefore failed their triggering action",
		}),
		Generations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "everkeep_voice_generations_total",
			Help: "Voice generations recorded against capability profiles",
		}),
		ExportRows: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "everkeep_audit_export_rows",
			Help:    "Rows per audit export",
			Buckets: []float64{10, 100, 1000, 5000, 10000},
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "everkeep_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
