package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-tribunal/infrastructure/llm"
	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

var (
	_ ports.MetricsCollector  = (*PrometheusMetrics)(nil)
	_ ports.ExecutionRecorder = (*PrometheusMetrics)(nil)
)

const metricsNamespace = "tribunal"

// PrometheusMetrics implements ports.MetricsCollector and
// ports.ExecutionRecorder on client_golang. Metrics the engine knows about
// get dedicated vectors; any other name lands in a generic vector labelled
// by metric name.
type PrometheusMetrics struct {
	llmLatency  *prometheus.HistogramVec
	llmRequests *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec

	budgetUsed      *prometheus.GaugeVec
	budgetRemaining *prometheus.GaugeVec

	executions    *prometheus.CounterVec
	execLatency   *prometheus.HistogramVec
	scores        *prometheus.HistogramVec
	judgeAttempts *prometheus.HistogramVec

	opLatency  *prometheus.HistogramVec
	counters   *prometheus.CounterVec
	gauges     *prometheus.GaugeVec
	histograms *prometheus.HistogramVec
}

// NewPrometheusMetrics registers every metric with reg. A nil reg uses the
// default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &PrometheusMetrics{
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      llm.MetricLLMLatency,
			Help:      "Latency of LLM provider requests.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"provider", "model", "status"}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      llm.MetricLLMRequests,
			Help:      "LLM provider requests by outcome.",
		}, []string{"provider", "model", "status"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      llm.MetricLLMTokens,
			Help:      "Tokens exchanged with LLM providers.",
		}, []string{"provider", "model", "direction"}),

		budgetUsed: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      MetricBudgetUsed,
			Help:      "Consumed LLM budget.",
		}, []string{"scope", "resource"}),
		budgetRemaining: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      MetricBudgetRemaining,
			Help:      "Remaining LLM budget.",
		}, []string{"scope", "resource"}),

		executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "executions_total",
			Help:      "Judge and evaluation executions by outcome.",
		}, []string{"operation", "phase", "role", "status"}),
		execLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "execution_duration_seconds",
			Help:      "Duration of judge and evaluation executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "phase"}),
		scores: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "score",
			Help:      "Overall scores produced by judges and evaluations.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}, []string{"operation", "phase"}),
		judgeAttempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "judge_attempts",
			Help:      "Oracle calls per judge execution.",
			Buckets:   prometheus.LinearBuckets(1, 1, 5),
		}, []string{"phase"}),

		opLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of other instrumented operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		counters: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Other counters, labelled by metric name.",
		}, []string{"metric"}),
		gauges: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "gauge",
			Help:      "Other gauges, labelled by metric name.",
		}, []string{"metric"}),
		histograms: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "observations",
			Help:      "Other observations, labelled by metric name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"metric"}),
	}
}

// RecordLatency implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordLatency(operation string, d time.Duration, labels map[string]string) {
	if operation == llm.MetricLLMLatency {
		pm.llmLatency.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).
			Observe(d.Seconds())
		return
	}
	pm.opLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case llm.MetricLLMRequests:
		pm.llmRequests.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).
			Add(value)
	case llm.MetricLLMTokens:
		pm.llmTokens.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "direction")).
			Add(value)
	default:
		pm.counters.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricBudgetUsed:
		pm.budgetUsed.WithLabelValues(label(labels, "scope"), label(labels, "resource")).Set(value)
	case MetricBudgetRemaining:
		pm.budgetRemaining.WithLabelValues(label(labels, "scope"), label(labels, "resource")).Set(value)
	default:
		pm.gauges.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, _ map[string]string) {
	pm.histograms.WithLabelValues(metric).Observe(value)
}

// RecordExecution implements ports.ExecutionRecorder.
func (pm *PrometheusMetrics) RecordExecution(_ context.Context, r domain.ExecutionRecord) {
	phase := string(r.Phase)
	if phase == "" {
		phase = "none"
	}
	role := string(r.Role)
	if role == "" {
		role = "none"
	}
	status := "success"
	if !r.Success {
		status = "failure"
	}

	pm.executions.WithLabelValues(r.Operation, phase, role, status).Inc()
	pm.execLatency.WithLabelValues(r.Operation, phase).Observe(r.Duration.Seconds())
	if r.Success {
		pm.scores.WithLabelValues(r.Operation, phase).Observe(r.Score)
	}
	if r.Attempts > 0 {
		pm.judgeAttempts.WithLabelValues(phase).Observe(float64(r.Attempts))
	}
}

func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}
