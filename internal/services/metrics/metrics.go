package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests and processes do not share globals.
type Metrics struct {
	registry *prometheus.Registry

	submissions       *prometheus.CounterVec
	stageDecisions    *prometheus.CounterVec
	classifierLatency *prometheus.HistogramVec
	deliveries        *prometheus.CounterVec
	deliveryAttempts  prometheus.Histogram
	violations        *prometheus.CounterVec
	blocks            *prometheus.CounterVec
	reviewResolutions *prometheus.CounterVec
	sweptMessages     prometheus.Counter
	costTotal         *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_submissions_total",
			Help: "Messages submitted, by status returned to the sender",
		}, []string{"status"}),
		stageDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_stage_decisions_total",
			Help: "Pipeline decisions by stage and outcome",
		}, []string{"stage", "outcome"}),
		classifierLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_classifier_duration_sec",
			Help:    "Duration of safety classifier calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_deliveries_total",
			Help: "Delivery results by provider",
		}, []string{"provider", "result"}),
		deliveryAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_delivery_attempts",
			Help:    "Provider attempts per dispatched message",
			Buckets: []float64{1, 2, 3, 5, 8},
		}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_violations_total",
			Help: "Violations recorded by severity",
		}, []string{"severity"}),
		blocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_block_actions_total",
			Help: "Block policy actions taken",
		}, []string{"action"}),
		reviewResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_review_resolutions_total",
			Help: "Review resolutions by decision",
		}, []string{"decision", "applied"}),
		sweptMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_swept_messages_total",
			Help: "Stuck messages forced into review by the sweeper",
		}),
		costTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_delivery_cost_total",
			Help: "Delivery cost charged to the ledger",
		}, []string{"provider"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_sec",
			Help:    "HTTP request duration by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveSubmission(status string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStage(stage, outcome string) {
	if m == nil {
		return
	}
	m.stageDecisions.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) ObserveClassifier(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.classifierLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveDelivery(provider, result string, attempts int) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(provider, result).Inc()
	if attempts > 0 {
		m.deliveryAttempts.Observe(float64(attempts))
	}
}

func (m *Metrics) ObserveCost(provider string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.costTotal.WithLabelValues(provider).Add(amount)
}

func (m *Metrics) ObserveViolation(severity, action string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(severity).Inc()
	if action != "" && action != "none" {
		m.blocks.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) ObserveReviewResolution(decision string, applied bool) {
	if m == nil {
		return
	}
	m.reviewResolutions.WithLabelValues(decision, strconv.FormatBool(applied)).Inc()
}

func (m *Metrics) ObserveSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptMessages.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
