package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"CareLink/config"
	"CareLink/internal/cache"
	"CareLink/internal/dispatch"
	"CareLink/internal/escalation"
	"CareLink/internal/queue"
	"CareLink/internal/repository"
	"CareLink/pkg/logger"
	"CareLink/pkg/metrics"
	mqotel "CareLink/pkg/mq"
	pkgotel "CareLink/pkg/otel"
	redisotel "CareLink/pkg/redis"
	"CareLink/storage/database"
	"CareLink/storage/redis"
)

const runLockName = "escalation-run"

// InitTelemetry 在 storage.Init 之前调用，gorm 插件依赖全局 provider
// 未启用 otel 时返回空关闭函数
func InitTelemetry(ctx context.Context, component string) func() {
	if !config.Cfg.OTelEnabled {
		return func() {}
	}

	shutdown, err := pkgotel.InitOpenTelemetry(ctx, pkgotel.Config{
		ServiceName:    config.Cfg.ServiceName + "-" + component,
		ServiceVersion: "1.0.0",
		Environment:    config.Cfg.Environment,
		OTLPEndpoint:   config.Cfg.OTelEndpoint,
		SampleRatio:    config.Cfg.OTelSampleRatio,
	})
	if err != nil {
		logger.Logger.Warn("Failed to initialize OpenTelemetry, continuing without it", zap.Error(err))
		return func() {}
	}

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize escalation metrics", zap.Error(err))
	}

	meter := otel.Meter(config.Cfg.ServiceName)
	if err := mqotel.InitMQMetrics(meter); err != nil {
		logger.Logger.Warn("Failed to initialize rabbitmq metrics", zap.Error(err))
	}
	if err := redisotel.InitRedisMetrics(meter); err != nil {
		logger.Logger.Warn("Failed to initialize redis metrics", zap.Error(err))
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}
}

// NewEngine 基于已初始化的存储连接组装升级引擎
func NewEngine() (*escalation.Engine, error) {
	cfg := config.Cfg
	db := database.DB()
	if db == nil {
		return nil, fmt.Errorf("database is not initialized")
	}

	httpClient, err := dispatch.NewHTTPClient(cfg.DispatchTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch http client: %w", err)
	}

	push := dispatch.NewPushClient(httpClient, dispatch.PushConfig{
		URL:         cfg.ExpoPushURL,
		AccessToken: cfg.ExpoAccessToken,
		Timeout:     cfg.DispatchTimeout(),
	})
	email := dispatch.NewEmailClient(httpClient, dispatch.EmailConfig{
		URL:     cfg.ResendAPIURL,
		APIKey:  cfg.ResendAPIKey,
		From:    cfg.EmailFrom,
		Timeout: cfg.DispatchTimeout(),
	})

	deps := escalation.Deps{
		Store:      repository.NewEngineStore(db),
		Recipients: repository.NewRecipientRepository(db),
		Push:       push,
		Email:      email,
		Lock:       cache.NewRunLock(redis.Client(), runLockName, time.Duration(cfg.EscalationLockTTLSeconds)*time.Second),
		Events:     queue.NewEventPublisher(logger.Named("events")),
		Logger:     logger.Named("escalation"),
	}

	return escalation.NewEngine(deps, escalation.Options{
		DefaultInterval: cfg.EscalationInterval(),
	}), nil
}
