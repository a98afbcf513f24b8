package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "billing_"

	resultSuccess   = "success"
	resultError     = "error"
	resultDuplicate = "duplicate"
)

var (
	registerOnce sync.Once

	invoiceGenerateTotal   *prometheus.CounterVec
	invoiceGenerateLatency *prometheus.HistogramVec
	invoiceFinalizeTotal   *prometheus.CounterVec
	invoiceFinalizeLatency *prometheus.HistogramVec
	invoicePaymentTotal    *prometheus.CounterVec
	invoiceExportTotal     *prometheus.CounterVec
	invoiceExportLatency   *prometheus.HistogramVec

	readingValidationTotal *prometheus.CounterVec
	readingBatchLatency    *prometheus.HistogramVec

	allocationTotal   *prometheus.CounterVec
	allocationLatency *prometheus.HistogramVec

	notifyTotal *prometheus.CounterVec
)

// Init registers billing metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		invoiceGenerateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_generate_total",
				Help: "Total invoice generate operations by result",
			},
			[]string{"result"},
		)
		invoiceGenerateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "invoice_generate_latency_seconds",
				Help:    "Invoice generate latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		invoiceFinalizeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_finalize_total",
				Help: "Total invoice finalize operations by result",
			},
			[]string{"result"},
		)
		invoiceFinalizeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "invoice_finalize_latency_seconds",
				Help:    "Invoice finalize latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		invoicePaymentTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_payment_total",
				Help: "Total invoice payment registrations by result",
			},
			[]string{"result"},
		)
		invoiceExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_export_total",
				Help: "Total invoice export operations by format and result",
			},
			[]string{"format", "result"},
		)
		invoiceExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "invoice_export_latency_seconds",
				Help:    "Invoice export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		readingValidationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reading_validation_total",
				Help: "Total validated readings by outcome",
			},
			[]string{"outcome"},
		)
		readingBatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reading_batch_latency_seconds",
				Help:    "Reading batch validation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		allocationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "circulation_allocation_total",
				Help: "Total circulation allocations by season and result",
			},
			[]string{"season", "result"},
		)
		allocationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "circulation_allocation_latency_seconds",
				Help:    "Circulation allocation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		notifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_total",
				Help: "Total outbound notifications by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			invoiceGenerateTotal,
			invoiceGenerateLatency,
			invoiceFinalizeTotal,
			invoiceFinalizeLatency,
			invoicePaymentTotal,
			invoiceExportTotal,
			invoiceExportLatency,
			readingValidationTotal,
			readingBatchLatency,
			allocationTotal,
			allocationLatency,
			notifyTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveInvoiceGenerate records generate latency and result.
func ObserveInvoiceGenerate(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if invoiceGenerateTotal != nil {
		invoiceGenerateTotal.WithLabelValues(result).Inc()
	}
	if invoiceGenerateLatency != nil {
		invoiceGenerateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveInvoiceFinalize records finalize latency and result.
func ObserveInvoiceFinalize(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if invoiceFinalizeTotal != nil {
		invoiceFinalizeTotal.WithLabelValues(result).Inc()
	}
	if invoiceFinalizeLatency != nil {
		invoiceFinalizeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncInvoicePayment counts payment registrations.
func IncInvoicePayment(result string) {
	if result == "" {
		result = resultSuccess
	}
	if invoicePaymentTotal != nil {
		invoicePaymentTotal.WithLabelValues(result).Inc()
	}
}

// ObserveInvoiceExport records export latency and result.
func ObserveInvoiceExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if invoiceExportTotal != nil {
		invoiceExportTotal.WithLabelValues(format, result).Inc()
	}
	if invoiceExportLatency != nil {
		invoiceExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncReadingValidation counts one validated reading.
func IncReadingValidation(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if readingValidationTotal != nil {
		readingValidationTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveReadingBatch records batch validation latency.
func ObserveReadingBatch(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if readingBatchLatency != nil {
		readingBatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveAllocation records a circulation allocation run.
func ObserveAllocation(season, result string, duration time.Duration) {
	if season == "" {
		season = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if allocationTotal != nil {
		allocationTotal.WithLabelValues(season, result).Inc()
	}
	if allocationLatency != nil {
		allocationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncNotify counts outbound notifications.
func IncNotify(result string) {
	if result == "" {
		result = resultSuccess
	}
	if notifyTotal != nil {
		notifyTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess   = resultSuccess
	ResultError     = resultError
	ResultDuplicate = resultDuplicate
)
