package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"CareLink/config"
	"CareLink/internal/bootstrap"
	"CareLink/internal/cache"
	"CareLink/internal/queue"
	"CareLink/internal/service"
	"CareLink/pkg/logger"
	"CareLink/pkg/snowflake"
	"CareLink/storage"
	"CareLink/storage/database"
	"CareLink/storage/redis"
)

func main() {
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownTelemetry := bootstrap.InitTelemetry(ctx, "worker")
	defer shutdownTelemetry()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	opener := service.NewEscalationService(database.DB(), config.Cfg.EscalationInterval(), logger.Named("service.escalation"))
	guard := cache.NewMessageGuard(redis.Client())

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	// 阻塞直到所有消费者退出
	queue.StartAllConsumers(ctx, opener, guard)

	logger.Logger.Info("Worker service shutting down gracefully")
}
