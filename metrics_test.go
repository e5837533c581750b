package gatekit

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMetricsNil tests that a nil Metrics records nothing
func TestMetricsNil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransition(KindWiki, StatusDraft, StatusInReview, OutcomeCommitted, time.Millisecond)
		m.ObserveNotification("approval", true)
		m.ObserveStoreTransaction(time.Millisecond, nil)
	})
}

// TestMetricsWorkflow tests that the workflow reports transitions and notifications
func TestMetricsWorkflow(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := newFixture(t, WithMetrics(m))

	f.submitted("a1")
	_, err := f.svc.RequestTransition(f.ctx, "nurse", "a1", StatusInReview, StatusPublished, TransitionPayload{})
	require.Error(t, err)
	_, err = f.svc.RequestTransition(f.ctx, "reviewer", "a1", StatusInReview, StatusPublished, TransitionPayload{})
	require.NoError(t, err)
	f.svc.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("wiki", "DRAFT", "IN_REVIEW", OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("wiki", "IN_REVIEW", "PUBLISHED", OutcomeForbidden)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("wiki", "IN_REVIEW", "PUBLISHED", OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("approval", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

// TestMetricsNotificationFailure tests that failed dispatches are counted
func TestMetricsNotificationFailure(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	f := newFixture(t, WithMetrics(m))
	f.notifier.err = errors.New("redis down")

	f.submitted("a1")
	_, err := f.svc.RequestTransition(f.ctx, "reviewer", "a1", StatusInReview, StatusDraft, TransitionPayload{Feedback: "x"})
	require.NoError(t, err)
	f.svc.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("rejection", "failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.notifications.WithLabelValues("rejection", "success")))
}

// TestMetricsStoreTransactions tests the store transaction counters
func TestMetricsStoreTransactions(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveStoreTransaction(2*time.Millisecond, nil)
	m.ObserveStoreTransaction(time.Millisecond, errStoreDown)
	m.ObserveStoreTransaction(time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.storeTx.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeTx.WithLabelValues("failure")))
}

// TestMetricsRegistration tests that collectors register once per registry
func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1, "vectors without observations are not exported")
	assert.Equal(t, "gatekit_store_transaction_duration_seconds", families[0].GetName())
}
