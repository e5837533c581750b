package gatekit

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transition outcomes used as metric labels.
const (
	OutcomeCommitted    = "committed"
	OutcomeUnauthorized = "unauthorized"
	OutcomeForbidden    = "forbidden"
	OutcomeNotFound     = "not_found"
	OutcomeInvalid      = "invalid_transition"
	OutcomeConflict     = "review_already_closed"
	OutcomeValidation   = "validation"
	OutcomeFailed       = "failed"
)

// Metrics exposes Prometheus collectors for the workflow and the store.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	storeTx       *prometheus.CounterVec
	storeTxTime   prometheus.Histogram
}

// NewMetrics registers the collectors against registerer. When registerer
// is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekit_transitions_total",
			Help: "Content transition requests partitioned by kind, edge and outcome.",
		}, []string{"kind", "from", "to", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatekit_transition_duration_seconds",
			Help:    "Duration in seconds of content transition requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekit_notifications_total",
			Help: "Review notification dispatches partitioned by type and status.",
		}, []string{"type", "status"}),
		storeTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekit_store_transactions_total",
			Help: "Store transactions partitioned by status.",
		}, []string{"status"}),
		storeTxTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekit_store_transaction_duration_seconds",
			Help:    "Duration in seconds of store transactions.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	registerer.MustRegister(m.transitions, m.duration, m.notifications, m.storeTx, m.storeTxTime)
	return m
}

// ObserveTransition records one transition request.
func (m *Metrics) ObserveTransition(kind ContentKind, from, to ContentStatus, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(kind), string(from), string(to), outcome).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// ObserveNotification records one notification dispatch.
func (m *Metrics) ObserveNotification(notification string, ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	m.notifications.WithLabelValues(notification, status).Inc()
}

// ObserveStoreTransaction records one store transaction.
func (m *Metrics) ObserveStoreTransaction(d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.storeTx.WithLabelValues(status).Inc()
	m.storeTxTime.Observe(d.Seconds())
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeCommitted
	case errors.Is(err, ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, ErrForbidden):
		return OutcomeForbidden
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrReviewAlreadyClosed):
		return OutcomeConflict
	case errors.Is(err, ErrInvalidTransition):
		return OutcomeInvalid
	case errors.Is(err, ErrValidation):
		return OutcomeValidation
	default:
		return OutcomeFailed
	}
}
