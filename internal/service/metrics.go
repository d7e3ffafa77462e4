package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsCollector interface {
	IncrementCheckoutRequests(path string)
	IncrementCheckoutFailures(path string)
	IncrementWebhookEvents(outcome string)
	RecordActivationWait(seconds float64)
	IncrementActivationOutcome(state string)
	IncrementMessagesReceived()
	IncrementMessagesSent()
	IncrementMessagesForwarded(channel string)
	IncrementSlotsReleased()
	IncrementUpgrades()
}

type metricsCollector struct {
	checkoutRequests  *prometheus.CounterVec
	checkoutFailures  *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	activationWait    prometheus.Histogram
	activationOutcome *prometheus.CounterVec
	messagesReceived  prometheus.Counter
	messagesSent      prometheus.Counter
	messagesForwarded *prometheus.CounterVec
	slotsReleased     prometheus.Counter
	upgrades          prometheus.Counter
}

func NewMetricsCollector(namespace string) MetricsCollector {
	return &metricsCollector{
		checkoutRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkout_requests_total",
				Help:      "Total checkout requests by resolved path",
			},
			[]string{"path"},
		),
		checkoutFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkout_failures_total",
				Help:      "Checkout requests that ended in an error by path",
			},
			[]string{"path"},
		),
		webhookEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Payment webhook events by outcome",
			},
			[]string{"outcome"},
		),
		activationWait: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "activation_wait_seconds",
				Help:      "Time spent waiting for a subscription to activate",
				Buckets:   prometheus.LinearBuckets(2.5, 2.5, 15),
			},
		),
		activationOutcome: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activation_outcome_total",
				Help:      "Final activation watcher state",
			},
			[]string{"state"},
		),
		messagesReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_received_total",
				Help:      "Inbound SMS messages ingested",
			},
		),
		messagesSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Outbound SMS messages sent",
			},
		),
		messagesForwarded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_forwarded_total",
				Help:      "Messages forwarded to external channels",
			},
			[]string{"channel"},
		),
		slotsReleased: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slots_released_total",
				Help:      "Numbers returned to the free pool",
			},
		),
		upgrades: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_upgrades_total",
				Help:      "Completed plan upgrades",
			},
		),
	}
}

func (m *metricsCollector) IncrementCheckoutRequests(path string) {
	m.checkoutRequests.WithLabelValues(path).Inc()
}

func (m *metricsCollector) IncrementCheckoutFailures(path string) {
	m.checkoutFailures.WithLabelValues(path).Inc()
}

func (m *metricsCollector) IncrementWebhookEvents(outcome string) {
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *metricsCollector) RecordActivationWait(seconds float64) {
	m.activationWait.Observe(seconds)
}

func (m *metricsCollector) IncrementActivationOutcome(state string) {
	m.activationOutcome.WithLabelValues(state).Inc()
}

func (m *metricsCollector) IncrementMessagesReceived() {
	m.messagesReceived.Inc()
}

func (m *metricsCollector) IncrementMessagesSent() {
	m.messagesSent.Inc()
}

func (m *metricsCollector) IncrementMessagesForwarded(channel string) {
	m.messagesForwarded.WithLabelValues(channel).Inc()
}

func (m *metricsCollector) IncrementSlotsReleased() {
	m.slotsReleased.Inc()
}

func (m *metricsCollector) IncrementUpgrades() {
	m.upgrades.Inc()
}

// noopMetrics satisfies MetricsCollector without touching the registry.
type noopMetrics struct{}

func NewNoopMetrics() MetricsCollector { return noopMetrics{} }

func (noopMetrics) IncrementCheckoutRequests(string)   {}
func (noopMetrics) IncrementCheckoutFailures(string)   {}
func (noopMetrics) IncrementWebhookEvents(string)      {}
func (noopMetrics) RecordActivationWait(float64)       {}
func (noopMetrics) IncrementActivationOutcome(string)  {}
func (noopMetrics) IncrementMessagesReceived()         {}
func (noopMetrics) IncrementMessagesSent()             {}
func (noopMetrics) IncrementMessagesForwarded(string)  {}
func (noopMetrics) IncrementSlotsReleased()            {}
func (noopMetrics) IncrementUpgrades()                 {}
