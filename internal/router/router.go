package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	goredis "github.com/redis/go-redis/v9"

	"CareLink/internal/handler"
	"CareLink/internal/middleware"
)

// Handlers 路由依赖的 handler 集合，由 cmd/server 组装
type Handlers struct {
	Escalation *handler.EscalationHandler
	Alert      *handler.AlertHandler
	// 限流使用，nil 时不挂载
	Redis goredis.Cmdable
}

func Register(h *server.Hertz, hs Handlers) {
	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	h.GET("/health", handler.Health)

	// cron 触发入口；预检由 CORS 中间件直接返回 200
	functions := h.Group("/functions/v1")
	{
		functions.POST("/escalate-alerts", hs.Escalation.EscalateAlerts)
		functions.OPTIONS("/escalate-alerts", func(ctx context.Context, c *app.RequestContext) {})
	}

	v1 := h.Group("/v1")

	alerts := v1.Group("/alerts")
	if hs.Redis != nil {
		alerts.Use(middleware.AcknowledgeRateLimitMiddleware(hs.Redis))
	}
	{
		alerts.POST("/:alert_id/acknowledge", hs.Alert.AcknowledgeAlert)
	}
}
