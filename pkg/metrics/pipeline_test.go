package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)

	m.CheckoutIntent(OutcomeCreated)
	m.CheckoutIntent(OutcomeSoldOut)
	m.SoldOut("ticket")
	m.WebhookEvent("payment_intent.succeeded", OutcomeProcessed)
	m.WebhookEvent("payment_intent.succeeded", OutcomeDuplicate)
	m.SignatureFailure()
	m.FulfillmentFailure()
	m.NeedsReview()
	m.ExpiredLines(3)
	m.ExpiredLines(0)
	m.SetUnfulfilled(2)

	if got := testutil.ToFloat64(m.checkoutIntents.WithLabelValues(OutcomeCreated)); got != 1 {
		t.Fatalf("expected 1 created intent, got %f", got)
	}
	if got := testutil.ToFloat64(m.soldOut.WithLabelValues("ticket")); got != 1 {
		t.Fatalf("expected 1 sold out ticket, got %f", got)
	}
	if got := testutil.ToFloat64(m.webhookEvents.WithLabelValues("payment_intent.succeeded", OutcomeDuplicate)); got != 1 {
		t.Fatalf("expected 1 duplicate webhook, got %f", got)
	}
	if got := testutil.ToFloat64(m.signatureFailures); got != 1 {
		t.Fatalf("expected 1 signature failure, got %f", got)
	}
	if got := testutil.ToFloat64(m.fulfillmentFailure); got != 1 {
		t.Fatalf("expected 1 fulfillment failure, got %f", got)
	}
	if got := testutil.ToFloat64(m.expiredLines); got != 3 {
		t.Fatalf("expected 3 expired lines, got %f", got)
	}
	if got := testutil.ToFloat64(m.unfulfilled); got != 2 {
		t.Fatalf("expected gauge 2, got %f", got)
	}
	if n := testutil.CollectAndCount(m.webhookEvents); n != 2 {
		t.Fatalf("expected 2 webhook series, got %d", n)
	}
}

func TestNilPipelineMetricsIsNoop(t *testing.T) {
	var m *PipelineMetrics
	m.CheckoutIntent(OutcomeError)
	m.SoldOut("")
	m.WebhookEvent("", OutcomeIgnored)
	m.SignatureFailure()
	m.FulfillmentFailure()
	m.NeedsReview()
	m.ExpiredLines(1)
	m.SetUnfulfilled(1)
	if NewPipelineMetrics(nil) != nil {
		t.Fatal("expected nil metrics without a registerer")
	}
}
