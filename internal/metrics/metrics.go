package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mutual_match"

// Metrics exposes Prometheus collectors for quiz activity. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	submissions   *prometheus.CounterVec
	answered      *prometheus.HistogramVec
	resultsServed *prometheus.CounterVec
	score         prometheus.Histogram
	payments      *prometheus.CounterVec
	revenue       prometheus.Counter
	webhookEvents *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the instance registered with the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same name. Other registration errors
// panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Metrics{
		submissions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Answer sets submitted, by partner.",
		}, []string{"partner"})),
		answered: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_answered_questions",
			Help:      "Number of catalog questions answered per submission.",
			Buckets:   []float64{10, 30, 50, 70, 90, 110},
		}, []string{"partner"})),
		resultsServed: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_served_total",
			Help:      "Results computed, by view.",
		}, []string{"view"})),
		score: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compatibility_score",
			Help:      "Compatibility score of served results.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		})),
		payments: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_completed_total",
			Help:      "Completed checkouts, by whether a referral code was used.",
		}, []string{"referral"})),
		revenue: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_revenue_cents_total",
			Help:      "Sum of completed checkout amounts in cents.",
		})),
		webhookEvents: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook deliveries, by outcome.",
		}, []string{"outcome"})),
		httpRequests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by route, method and status code.",
		}, []string{"route", "method", "status"})),
		httpDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

func (m *Metrics) ObserveSubmission(partner string, answered int) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(partner).Inc()
	m.answered.WithLabelValues(partner).Observe(float64(answered))
}

// ObserveResults records a served result; paid selects the view label.
func (m *Metrics) ObserveResults(paid bool, score int) {
	if m == nil {
		return
	}
	view := "teaser"
	if paid {
		view = "paid"
	}
	m.resultsServed.WithLabelValues(view).Inc()
	m.score.Observe(float64(score))
}

func (m *Metrics) ObservePayment(referral bool, amountCents int64) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(strconv.FormatBool(referral)).Inc()
	if amountCents > 0 {
		m.revenue.Add(float64(amountCents))
	}
}

func (m *Metrics) ObserveWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}
