package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stockledger"

// Commit outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeNoop      = "noop"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Reservation outcomes.
const (
	ReservationReserved  = "reserved"
	ReservationRejected  = "rejected"
	ReservationDuplicate = "duplicate"
	ReservationReleased  = "released"
)

// Outbox relay outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// LedgerMetrics records ledger commit, reservation and delivery outcomes.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	commitDuration    *prometheus.HistogramVec
	commits           *prometheus.CounterVec
	insufficientStock *prometheus.CounterVec
	reservations      *prometheus.CounterVec
	notifyFailures    *prometheus.CounterVec
	outbox            *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		commitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_commit_duration_seconds",
			Help:      "Duration of document commits in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_commits_total",
			Help:      "Document commit attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
		insufficientStock: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insufficient_stock_total",
			Help:      "Operations rejected because available stock would go negative.",
		}, []string{"source"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Order reservation attempts by outcome.",
		}, []string{"outcome"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Change notifications that could not be queued after commit.",
		}, []string{"event_type"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox relay results by event type and outcome.",
		}, []string{"event_type", "outcome"}),
	}
	reg.MustRegister(m.commitDuration, m.commits, m.insufficientStock, m.reservations, m.notifyFailures, m.outbox)
	return m
}

func (m *LedgerMetrics) ObserveCommit(kind, outcome string, duration time.Duration) {
	if m == nil || m.commits == nil {
		return
	}
	kind = normalizeLabel(kind)
	m.commits.WithLabelValues(kind, normalizeLabel(outcome)).Inc()
	if outcome == OutcomeCommitted {
		m.commitDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

func (m *LedgerMetrics) IncInsufficientStock(source string) {
	if m == nil || m.insufficientStock == nil {
		return
	}
	m.insufficientStock.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *LedgerMetrics) IncReservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *LedgerMetrics) IncNotificationFailure(eventType string) {
	if m == nil || m.notifyFailures == nil {
		return
	}
	m.notifyFailures.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *LedgerMetrics) IncOutbox(eventType, outcome string) {
	if m == nil || m.outbox == nil {
		return
	}
	m.outbox.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
