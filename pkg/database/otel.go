package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey  = "otel:span"
	startKey = "otel:start_time"
)

// OTELPlugin 为每条 SQL 创建 client span，并记录查询次数与耗时
type OTELPlugin struct {
	tracer   trace.Tracer
	queries  metric.Int64Counter
	duration metric.Float64Histogram
	config   PluginConfig
}

type PluginConfig struct {
	ServiceName   string
	DBName        string
	EnableMetrics bool
	MaxSQLLength  int
}

func DefaultPluginConfig() PluginConfig {
	return PluginConfig{
		ServiceName:   "carelink",
		DBName:        "carelink",
		EnableMetrics: true,
		MaxSQLLength:  500,
	}
}

func NewOTELPlugin(config PluginConfig) *OTELPlugin {
	if config.ServiceName == "" {
		config.ServiceName = "carelink"
	}
	if config.MaxSQLLength <= 0 {
		config.MaxSQLLength = 500
	}

	p := &OTELPlugin{
		tracer: otel.Tracer(config.ServiceName + ".gorm"),
		config: config,
	}

	if config.EnableMetrics {
		meter := otel.Meter(config.ServiceName + ".gorm")
		// 创建失败时保持 nil，recordMetrics 会跳过
		p.queries, _ = meter.Int64Counter(
			"db.queries.total",
			metric.WithDescription("Total number of database queries"),
			metric.WithUnit("{query}"),
		)
		p.duration, _ = meter.Float64Histogram(
			"db.query.duration",
			metric.WithDescription("Database query duration"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
		)
	}

	return p
}

func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	hooks := []struct {
		name     string
		register func(name string, before, after func(*gorm.DB)) error
	}{
		{"query", func(n string, b, a func(*gorm.DB)) error {
			if err := cb.Query().Before("gorm:query").Register("otel:before_"+n, b); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register("otel:after_"+n, a)
		}},
		{"create", func(n string, b, a func(*gorm.DB)) error {
			if err := cb.Create().Before("gorm:create").Register("otel:before_"+n, b); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register("otel:after_"+n, a)
		}},
		{"update", func(n string, b, a func(*gorm.DB)) error {
			if err := cb.Update().Before("gorm:update").Register("otel:before_"+n, b); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register("otel:after_"+n, a)
		}},
		{"delete", func(n string, b, a func(*gorm.DB)) error {
			if err := cb.Delete().Before("gorm:delete").Register("otel:before_"+n, b); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register("otel:after_"+n, a)
		}},
		{"row", func(n string, b, a func(*gorm.DB)) error {
			if err := cb.Row().Before("gorm:row").Register("otel:before_"+n, b); err != nil {
				return err
			}
			return cb.Row().After("gorm:row").Register("otel:after_"+n, a)
		}},
		{"raw", func(n string, b, a func(*gorm.DB)) error {
			if err := cb.Raw().Before("gorm:raw").Register("otel:before_"+n, b); err != nil {
				return err
			}
			return cb.Raw().After("gorm:raw").Register("otel:after_"+n, a)
		}},
	}

	for _, h := range hooks {
		if err := h.register(h.name, p.before(h.name), p.after); err != nil {
			return err
		}
	}

	return nil
}

func (p *OTELPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		attrs := []attribute.KeyValue{
			semconv.DBSystemPostgreSQL,
			semconv.DBName(p.config.DBName),
			semconv.DBOperation(operation),
		}
		if db.Statement.Table != "" {
			attrs = append(attrs, semconv.DBSQLTable(db.Statement.Table))
		}

		ctx, span := p.tracer.Start(db.Statement.Context, "db."+operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attrs...),
		)

		db.InstanceSet(startKey, time.Now())
		db.InstanceSet(spanKey, span)
		db.Statement.Context = ctx
	}
}

func (p *OTELPlugin) after(db *gorm.DB) {
	v, ok := db.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	// SQL 在 gorm 回调执行后才构建完成
	span.SetAttributes(
		semconv.DBStatement(truncate(db.Statement.SQL.String(), p.config.MaxSQLLength)),
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
	)

	status := "success"
	switch {
	case db.Error == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(db.Error, gorm.ErrRecordNotFound):
		span.SetStatus(codes.Ok, "record not found")
	default:
		status = "error"
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}

	if start, ok := db.InstanceGet(startKey); ok {
		if t, ok := start.(time.Time); ok {
			p.recordMetrics(db.Statement.Context, operationOf(db), status, time.Since(t).Seconds())
		}
	}
}

func (p *OTELPlugin) recordMetrics(ctx context.Context, operation, status string, seconds float64) {
	if !p.config.EnableMetrics || p.queries == nil || p.duration == nil {
		return
	}

	opt := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.status", status),
	)
	p.queries.Add(ctx, 1, opt)
	p.duration.Record(ctx, seconds, opt)
}

func operationOf(db *gorm.DB) string {
	sql := strings.ToUpper(strings.TrimSpace(db.Statement.SQL.String()))
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, verb) {
			return strings.ToLower(verb)
		}
	}
	return "query"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
