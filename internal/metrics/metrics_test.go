package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecorded(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := MustNewMetrics(registry)

	m.ObserveSubmission("A", 30)
	m.ObserveSubmission("B", 28)
	m.ObserveResults(false, 67)
	m.ObserveResults(true, 80)
	m.ObserveResults(true, 80)
	m.ObservePayment(true, 899)
	m.ObserveWebhook("duplicate")
	m.ObserveRequest("/api/quiz", "POST", 200, 15*time.Millisecond)

	if got := testutil.ToFloat64(m.submissions.WithLabelValues("A")); got != 1 {
		t.Fatalf("expected 1 submission from A, got %v", got)
	}
	if got := testutil.ToFloat64(m.resultsServed.WithLabelValues("paid")); got != 2 {
		t.Fatalf("expected 2 paid views, got %v", got)
	}
	if got := testutil.ToFloat64(m.revenue); got != 899 {
		t.Fatalf("expected revenue 899, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/quiz", "POST", "200")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}

func TestMustNewMetricsReusesCollectors(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	first := MustNewMetrics(registry)
	second := MustNewMetrics(registry)

	first.ObserveWebhook("processed")
	if got := testutil.ToFloat64(second.webhookEvents.WithLabelValues("processed")); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveSubmission("A", 1)
	m.ObserveResults(true, 100)
	m.ObservePayment(false, 999)
	m.ObserveWebhook("ignored")
	m.ObserveRequest("/health", "GET", 200, time.Millisecond)
}
