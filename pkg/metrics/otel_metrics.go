package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics 升级引擎相关指标集合
type OTelMetrics struct {
	EscalationProcessedTotal metric.Int64Counter
	EscalationStaleTotal     metric.Int64Counter
	EscalationErrorTotal     metric.Int64Counter
	DispatchTotal            metric.Int64Counter
	DispatchDuration         metric.Float64Histogram
	RunDuration              metric.Float64Histogram
	RunDueEscalations        metric.Int64Histogram
}

var (
	metrics *OTelMetrics
	meter   = otel.Meter("carelink")
)

// InitMetrics 需要在 otel MeterProvider 设置之后调用
func InitMetrics() error {
	var err error

	m := &OTelMetrics{}

	m.EscalationProcessedTotal, err = meter.Int64Counter(
		"escalation_processed_total",
		metric.WithDescription("Total number of escalations advanced, by level before the advance"),
		metric.WithUnit("{escalation}"),
	)
	if err != nil {
		return err
	}

	m.EscalationStaleTotal, err = meter.Int64Counter(
		"escalation_stale_total",
		metric.WithDescription("Escalations resolved or advanced concurrently during a run"),
		metric.WithUnit("{escalation}"),
	)
	if err != nil {
		return err
	}

	m.EscalationErrorTotal, err = meter.Int64Counter(
		"escalation_error_total",
		metric.WithDescription("Escalations that failed to process and were left for the next run"),
		metric.WithUnit("{escalation}"),
	)
	if err != nil {
		return err
	}

	m.DispatchTotal, err = meter.Int64Counter(
		"escalation_dispatch_total",
		metric.WithDescription("Notification dispatch outcomes"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return err
	}

	m.DispatchDuration, err = meter.Float64Histogram(
		"escalation_dispatch_duration_seconds",
		metric.WithDescription("Time spent calling a notification gateway"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.RunDuration, err = meter.Float64Histogram(
		"escalation_run_duration_seconds",
		metric.WithDescription("Duration of a full escalation run"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return err
	}

	m.RunDueEscalations, err = meter.Int64Histogram(
		"escalation_run_due_count",
		metric.WithDescription("Number of due escalations selected per run"),
		metric.WithUnit("{escalation}"),
	)
	if err != nil {
		return err
	}

	metrics = m
	return nil
}

func GetMetrics() *OTelMetrics {
	return metrics
}

func (m *OTelMetrics) RecordProcessed(ctx context.Context, fromLevel int) {
	m.EscalationProcessedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("level", fromLevel),
	))
}

func (m *OTelMetrics) RecordStale(ctx context.Context) {
	m.EscalationStaleTotal.Add(ctx, 1)
}

func (m *OTelMetrics) RecordError(ctx context.Context, stage string) {
	m.EscalationErrorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
	))
}

func (m *OTelMetrics) RecordDispatch(ctx context.Context, channel, status string, count int64, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("status", status),
	)
	m.DispatchTotal.Add(ctx, count, attrs)
	m.DispatchDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("channel", channel),
	))
}

func (m *OTelMetrics) RecordRun(ctx context.Context, due int, seconds float64, outcome string) {
	m.RunDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
	m.RunDueEscalations.Record(ctx, int64(due))
}
