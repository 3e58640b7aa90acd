package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Checkout outcome labels.
const (
	OutcomeCreated   = "created"
	OutcomeSoldOut   = "sold_out"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

// PipelineMetrics covers checkout, webhook reconciliation and fulfillment.
// A nil *PipelineMetrics is a no-op so handlers can run without a registry.
type PipelineMetrics struct {
	checkoutIntents    *prometheus.CounterVec
	soldOut            *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	signatureFailures  prometheus.Counter
	fulfillmentFailure prometheus.Counter
	needsReview        prometheus.Counter
	expiredLines       prometheus.Counter
	unfulfilled        prometheus.Gauge
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return nil
	}
	m := &PipelineMetrics{
		checkoutIntents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_intents_total",
			Help: "Checkout intent requests by outcome.",
		}, []string{"outcome"}),
		soldOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_sold_out_total",
			Help: "Checkout requests rejected because an item was sold out, by item type.",
		}, []string{"item_type"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Verified payment webhook deliveries by event type and outcome.",
		}, []string{"type", "outcome"}),
		signatureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_webhook_signature_failures_total",
			Help: "Webhook deliveries rejected for an invalid signature.",
		}),
		fulfillmentFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fulfillment_failures_total",
			Help: "Confirmed payments whose fulfillment trigger failed.",
		}),
		needsReview: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_needs_review_total",
			Help: "Successful payments whose snapshot lines were no longer pending.",
		}),
		expiredLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_expired_lines_total",
			Help: "Stale pending snapshot lines moved to failed by the expiry sweep.",
		}),
		unfulfilled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payments_unfulfilled",
			Help: "Confirmed payments past the fulfillment threshold without a fulfilled status.",
		}),
	}
	reg.MustRegister(
		m.checkoutIntents,
		m.soldOut,
		m.webhookEvents,
		m.signatureFailures,
		m.fulfillmentFailure,
		m.needsReview,
		m.expiredLines,
		m.unfulfilled,
	)
	return m
}

func (m *PipelineMetrics) CheckoutIntent(outcome string) {
	if m == nil {
		return
	}
	m.checkoutIntents.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) SoldOut(itemType string) {
	if m == nil {
		return
	}
	m.soldOut.WithLabelValues(normalizeLabel(itemType)).Inc()
}

func (m *PipelineMetrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func (m *PipelineMetrics) SignatureFailure() {
	if m == nil {
		return
	}
	m.signatureFailures.Inc()
}

func (m *PipelineMetrics) FulfillmentFailure() {
	if m == nil {
		return
	}
	m.fulfillmentFailure.Inc()
}

func (m *PipelineMetrics) NeedsReview() {
	if m == nil {
		return
	}
	m.needsReview.Inc()
}

func (m *PipelineMetrics) ExpiredLines(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expiredLines.Add(float64(n))
}

func (m *PipelineMetrics) SetUnfulfilled(n int) {
	if m == nil {
		return
	}
	m.unfulfilled.Set(float64(n))
}
