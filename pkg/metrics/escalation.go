package metrics

import (
	"context"
)

// 以下包级函数在 InitMetrics 未调用（OTEL_ENABLED=false、单元测试）时为 no-op

func RecordEscalationProcessed(ctx context.Context, fromLevel int) {
	if m := GetMetrics(); m != nil {
		m.RecordProcessed(ctx, fromLevel)
	}
}

func RecordEscalationStale(ctx context.Context) {
	if m := GetMetrics(); m != nil {
		m.RecordStale(ctx)
	}
}

func RecordEscalationError(ctx context.Context, stage string) {
	if m := GetMetrics(); m != nil {
		m.RecordError(ctx, stage)
	}
}

// RecordDispatch channel: push/email，status: delivered/skipped/failed
func RecordDispatch(ctx context.Context, channel, status string, count int, seconds float64) {
	if count <= 0 {
		return
	}
	if m := GetMetrics(); m != nil {
		m.RecordDispatch(ctx, channel, status, int64(count), seconds)
	}
}

func RecordRun(ctx context.Context, due int, seconds float64, outcome string) {
	if m := GetMetrics(); m != nil {
		m.RecordRun(ctx, due, seconds, outcome)
	}
}
