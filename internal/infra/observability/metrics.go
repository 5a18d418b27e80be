package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

// Metrics holds all Prometheus metrics for the back-office.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	ledgerHits      *prometheus.CounterVec
	ledgerMisses    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	charges         *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backoffice_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		ledgerHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_ledger_hits_total",
				Help: "Webhook deliveries found in the event ledger.",
			},
			[]string{"ledger"},
		),
		ledgerMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_ledger_misses_total",
				Help: "Webhook deliveries not found in the event ledger.",
			},
			[]string{"ledger"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_status_transitions_total",
				Help: "Applied status transitions by entity and trigger.",
			},
			[]string{"entity", "trigger"},
		),
		webhooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_webhooks_total",
				Help: "Gateway webhook deliveries by outcome.",
			},
			[]string{"outcome"},
		),
		charges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_charges_total",
				Help: "Charges created by payment route.",
			},
			[]string{"route"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrLedgerHit increments the ledger hit counter.
func (m *Metrics) IncrLedgerHit(ledger string) {
	m.ledgerHits.WithLabelValues(ledger).Inc()
}

// IncrLedgerMiss increments the ledger miss counter.
func (m *Metrics) IncrLedgerMiss(ledger string) {
	m.ledgerMisses.WithLabelValues(ledger).Inc()
}

// IncrTransition counts one applied status change.
func (m *Metrics) IncrTransition(entity domain.EntityKind, trigger domain.Trigger) {
	m.transitions.WithLabelValues(string(entity), string(trigger)).Inc()
}

// IncrWebhook counts one webhook delivery.
func (m *Metrics) IncrWebhook(outcome domain.WebhookOutcome) {
	m.webhooks.WithLabelValues(string(outcome)).Inc()
}

// IncrCharge counts one created charge.
func (m *Metrics) IncrCharge(route domain.RouteKind) {
	m.charges.WithLabelValues(string(route)).Inc()
}

// GetOpsSnapshot returns reconciliation counters for GET /ops/metrics.
func (m *Metrics) GetOpsSnapshot() *domain.OpsMetrics {
	applied := getCounterValue(m.webhooks, string(domain.WebhookApplied))
	duplicate := getCounterValue(m.webhooks, string(domain.WebhookDuplicate))
	noMatch := getCounterValue(m.webhooks, string(domain.WebhookNoMatch))
	ignored := getCounterValue(m.webhooks, string(domain.WebhookIgnored))
	invalid := getCounterValue(m.webhooks, string(domain.WebhookInvalid))
	hits := getCounterValue(m.ledgerHits, "webhook")
	misses := getCounterValue(m.ledgerMisses, "webhook")

	total := applied + duplicate + noMatch + ignored + invalid
	duplicateRate := float64(0)
	if total > 0 {
		duplicateRate = duplicate / total
	}
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.OpsMetrics{
		WebhooksTotal:     int64(total),
		WebhooksApplied:   int64(applied),
		WebhooksDuplicate: int64(duplicate),
		WebhooksNoMatch:   int64(noMatch),
		DuplicateRate:     duplicateRate,
		LedgerHitRate:     hitRate,
		GatewayErrors:     int64(getCounterValue(m.externalErrors, "payment_gateway")),
		BlobStoreErrors:   int64(getCounterValue(m.externalErrors, "blob_store")),
		Period:            "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
