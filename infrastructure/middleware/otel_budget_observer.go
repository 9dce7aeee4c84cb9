package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-tribunal/internal/ports"
)

var _ BudgetObserver = (*OTelBudgetObserver)(nil)

// Budget metric names.
const (
	MetricBudgetCheck     = "budget_check_duration_seconds"
	MetricBudgetUsed      = "budget_used"
	MetricBudgetRemaining = "budget_remaining"
)

// Usage fractions that add a threshold event to the active span.
const (
	budgetWarningThreshold  = 0.8
	budgetCriticalThreshold = 0.9
)

// OTelBudgetObserver annotates the span active in the request context with
// budget usage and mirrors usage into a MetricsCollector. It keeps no per
// call state and is safe for concurrent use.
type OTelBudgetObserver struct {
	metrics ports.MetricsCollector
	scope   string
}

// NewOTelBudgetObserver creates an observer. metrics may be nil.
func NewOTelBudgetObserver(metrics ports.MetricsCollector, scope string) *OTelBudgetObserver {
	return &OTelBudgetObserver{metrics: metrics, scope: scope}
}

// PreCheck implements BudgetObserver.
func (o *OTelBudgetObserver) PreCheck(ctx context.Context, usage Usage, budget Budget) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	thresholdEvent(span, "tokens", usage.Tokens, budget.MaxTokens)
	thresholdEvent(span, "calls", usage.Calls, budget.MaxCalls)
}

// PostCheck implements BudgetObserver.
func (o *OTelBudgetObserver) PostCheck(ctx context.Context, usage Usage, budget Budget, elapsed time.Duration, _ error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		attrs := []attribute.KeyValue{
			attribute.String("budget.scope", o.scope),
			attribute.Int64("budget.tokens_used", usage.Tokens),
			attribute.Int64("budget.calls_made", usage.Calls),
		}
		if budget.MaxTokens > 0 {
			attrs = append(attrs, attribute.Int64("budget.remaining_tokens", budget.MaxTokens-usage.Tokens))
		}
		if budget.MaxCalls > 0 {
			attrs = append(attrs, attribute.Int64("budget.remaining_calls", budget.MaxCalls-usage.Calls))
		}
		span.SetAttributes(attrs...)
	}

	if o.metrics == nil {
		return
	}
	o.metrics.RecordLatency(MetricBudgetCheck, elapsed, map[string]string{"scope": o.scope})
	o.recordResource("tokens", usage.Tokens, budget.MaxTokens)
	o.recordResource("calls", usage.Calls, budget.MaxCalls)
}

func (o *OTelBudgetObserver) recordResource(resource string, used, limit int64) {
	labels := map[string]string{"scope": o.scope, "resource": resource}
	o.metrics.RecordGauge(MetricBudgetUsed, float64(used), labels)
	if limit > 0 {
		o.metrics.RecordGauge(MetricBudgetRemaining, float64(limit-used), labels)
	}
}

func thresholdEvent(span trace.Span, resource string, used, limit int64) {
	if limit <= 0 {
		return
	}
	frac := float64(used) / float64(limit)
	var name string
	switch {
	case frac >= budgetCriticalThreshold:
		name = "budget.threshold.critical"
	case frac >= budgetWarningThreshold:
		name = "budget.threshold.warning"
	default:
		return
	}
	span.AddEvent(name, trace.WithAttributes(
		attribute.String("resource_type", resource),
		attribute.Float64("usage_percentage", frac*100),
	))
}
