package metrics

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetricsCounts(t *testing.T) {
	reg := NewRegistry()
	m := NewOutboxMetrics(reg)

	m.Published("payment_confirmed")
	m.Published("payment_confirmed")
	m.Failed("checkout_expired")
	m.DeadLettered("max_attempts")
	m.ObservePublish("payment_confirmed", 30*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.published.WithLabelValues("payment_confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failed.WithLabelValues("checkout_expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deadLettered.WithLabelValues("max_attempts")))
	count, err := testutil.GatherAndCount(reg, "outbox_publish_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilOutboxMetricsAreNoops(t *testing.T) {
	var m *OutboxMetrics
	assert.Nil(t, NewOutboxMetrics(nil))
	assert.NotPanics(t, func() {
		m.Published("x")
		m.Failed("x")
		m.DeadLettered("x")
		m.ObservePublish("x", time.Second)
	})
}

func TestServeExposesMetricsUntilCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	reg := NewRegistry()
	NewOutboxMetrics(reg).Published("checkout_initiated")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg, nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeWithoutAddrWaitsForCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Serve(ctx, "", NewRegistry(), nil))
}
