package middleware

import (
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"CareLink/pkg/logger"
)

// Init 初始化中间件依赖的指标；未启用 otel 时使用全局 noop meter
func Init() error {
	if err := InitMetrics(otel.Meter("carelink-http")); err != nil {
		logger.Logger.Error("Failed to initialize http metrics", zap.Error(err))
		return err
	}

	logger.Logger.Info("All middlewares initialized successfully")
	return nil
}
