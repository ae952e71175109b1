package records

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the record service. A nil
// *Metrics is a valid no-op receiver so tests can skip registration.
type Metrics struct {
	OpsTotal        *prometheus.CounterVec
	OpDuration      *prometheus.HistogramVec
	CreatesByLevel  *prometheus.CounterVec
	DecryptFailures prometheus.Counter
	BulkItemsTotal  *prometheus.CounterVec
	ImportsTotal    *prometheus.CounterVec
	ExportedTotal   prometheus.Counter
	RecordBytes     prometheus.Histogram
}

// NewMetrics registers and returns record service metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldtriage_record_ops_total",
			Help: "Total record service operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fieldtriage_record_op_duration_seconds",
			Help:    "Duration of record service operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
		}, []string{"op"}),
		CreatesByLevel: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldtriage_record_creates_total",
			Help: "Records created by assessed priority level.",
		}, []string{"level"}),
		DecryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldtriage_record_decrypt_failures_total",
			Help: "Records that failed authentication or parsing on read.",
		}),
		BulkItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldtriage_bulk_items_total",
			Help: "Bulk operation items by operation and outcome.",
		}, []string{"op", "outcome"}),
		ImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldtriage_import_records_total",
			Help: "Import entries by outcome.",
		}, []string{"outcome"}),
		ExportedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldtriage_exported_records_total",
			Help: "Records written into export envelopes.",
		}),
		RecordBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldtriage_record_ciphertext_bytes",
			Help:    "Size of sealed record blobs in bytes.",
			Buckets: prometheus.ExponentialBuckets(256, 2, 10), // 256B .. ~128KB
		}),
	}

	reg.MustRegister(
		m.OpsTotal,
		m.OpDuration,
		m.CreatesByLevel,
		m.DecryptFailures,
		m.BulkItemsTotal,
		m.ImportsTotal,
		m.ExportedTotal,
		m.RecordBytes,
	)

	return m
}

func (m *Metrics) observeOp(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.OpsTotal.WithLabelValues(op, outcome).Inc()
	m.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) incCreate(level string) {
	if m == nil {
		return
	}
	m.CreatesByLevel.WithLabelValues(level).Inc()
}

func (m *Metrics) incDecryptFailure() {
	if m == nil {
		return
	}
	m.DecryptFailures.Inc()
}

func (m *Metrics) incBulkItem(op, outcome string) {
	if m == nil {
		return
	}
	m.BulkItemsTotal.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) incImport(outcome string) {
	if m == nil {
		return
	}
	m.ImportsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) addExported(n int) {
	if m == nil {
		return
	}
	m.ExportedTotal.Add(float64(n))
}

func (m *Metrics) observeRecordBytes(n int) {
	if m == nil {
		return
	}
	m.RecordBytes.Observe(float64(n))
}
