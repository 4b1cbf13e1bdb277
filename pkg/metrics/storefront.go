package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront/pkg/enums"
)

const namespace = "storefront"

// Checkout outcome labels.
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation"
	OutcomeStorage    = "storage"
	OutcomePartial    = "partial"
	OutcomeResumed    = "resumed"
)

// CheckoutMetrics counts order submissions by outcome.
type CheckoutMetrics struct {
	submissions *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "submissions_total",
		Help:      "Order submissions by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(submissions)
	return &CheckoutMetrics{submissions: submissions}
}

func (m *CheckoutMetrics) IncOutcome(outcome string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// FeedMetrics tracks the change-feed subscriber.
type FeedMetrics struct {
	state         *prometheus.GaugeVec
	failures      prometheus.Counter
	notifications *prometheus.CounterVec
}

func NewFeedMetrics(reg prometheus.Registerer) *FeedMetrics {
	if reg == nil {
		return &FeedMetrics{}
	}
	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "state",
		Help:      "1 for the subscriber's current state, 0 otherwise.",
	}, []string{"state"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "failures_total",
		Help:      "Feed establishment or delivery failures.",
	})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "notifications_total",
		Help:      "Notifications appended by order status.",
	}, []string{"status"})
	reg.MustRegister(state, failures, notifications)
	return &FeedMetrics{state: state, failures: failures, notifications: notifications}
}

func (m *FeedMetrics) SetState(current enums.FeedState) {
	if m == nil || m.state == nil {
		return
	}
	for _, s := range []enums.FeedState{enums.FeedStateUnsubscribed, enums.FeedStateSubscribing, enums.FeedStateActive} {
		value := 0.0
		if s == current {
			value = 1
		}
		m.state.WithLabelValues(s.String()).Set(value)
	}
}

func (m *FeedMetrics) IncFailure() {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.Inc()
}

func (m *FeedMetrics) IncNotification(status enums.OrderStatus) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(status.String())).Inc()
}

// OrphanMetrics exports the last orphaned-header scan result.
type OrphanMetrics struct {
	orphaned prometheus.Gauge
}

func NewOrphanMetrics(reg prometheus.Registerer) *OrphanMetrics {
	if reg == nil {
		return &OrphanMetrics{}
	}
	orphaned := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "orphaned_headers",
		Help:      "Pending order headers without lines older than the grace period.",
	})
	reg.MustRegister(orphaned)
	return &OrphanMetrics{orphaned: orphaned}
}

func (m *OrphanMetrics) SetOrphaned(count int) {
	if m == nil || m.orphaned == nil {
		return
	}
	m.orphaned.Set(float64(count))
}

// OutboxMetrics counts relay results per event type.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "published_total",
		Help:      "Outbox events published.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "failed_total",
		Help:      "Outbox publish attempts that failed.",
	}, []string{"event_type"})
	reg.MustRegister(published, failed)
	return &OutboxMetrics{published: published, failed: failed}
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncFailed(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}
