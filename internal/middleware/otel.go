package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

type httpMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// 未初始化时中间件只透传
var serverMetrics *httpMetrics

func InitMetrics(meter metric.Meter) error {
	requests, err := meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	// 升级接口一次要跑完整批投递，桶上限放到 30s
	duration, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return err
	}

	inFlight, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	serverMetrics = &httpMetrics{requests: requests, duration: duration, inFlight: inFlight}
	return nil
}

// routeLabel 优先用路由模板，alert_id 不进入标签
func routeLabel(c *app.RequestContext) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return strings.ToValidUTF8(string(c.Path()), "")
}

func OpenTelemetryMiddleware() app.HandlerFunc {
	tracer := otel.Tracer("carelink.http")

	return func(ctx context.Context, c *app.RequestContext) {
		m := serverMetrics
		if m == nil {
			c.Next(ctx)
			return
		}

		started := time.Now()
		m.inFlight.Add(ctx, 1)
		defer m.inFlight.Add(ctx, -1)

		method := string(c.Method())
		route := routeLabel(c)

		attrs := []attribute.KeyValue{
			semconv.HTTPMethod(method),
			semconv.HTTPRoute(route),
			semconv.HTTPURL(strings.ToValidUTF8(c.Request.URI().String(), "")),
		}
		if alertID := c.Param("alert_id"); alertID != "" {
			attrs = append(attrs, attribute.String("carelink.alert_id", strings.ToValidUTF8(alertID, "")))
		}
		if requestID := c.GetHeader("X-Request-Id"); len(requestID) > 0 {
			attrs = append(attrs, attribute.String("http.request_id", strings.ToValidUTF8(string(requestID), "")))
		}

		spanCtx, span := tracer.Start(ctx, method+" "+route, trace.WithAttributes(attrs...))
		defer span.End()

		c.Next(spanCtx)

		status := c.Response.StatusCode()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(lastErr)
			}
		}

		labels := metric.WithAttributes(
			semconv.HTTPMethod(method),
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(status),
		)
		m.requests.Add(ctx, 1, labels)
		m.duration.Record(ctx, time.Since(started).Seconds(), labels)
	}
}

// NewServerTracerConfig hertz 自带的 server tracer，OTEL_ENABLED 时在 server 启动处挂上
func NewServerTracerConfig(opts ...hertztracing.Option) (config.Option, app.HandlerFunc) {
	tracer, cfg := hertztracing.NewServerTracer(opts...)
	return tracer, hertztracing.ServerMiddleware(cfg)
}
