package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"CareLink/config"
	"CareLink/internal/bootstrap"
	"CareLink/internal/schedule"
	"CareLink/pkg/logger"
	"CareLink/pkg/snowflake"
	"CareLink/storage"
)

func main() {
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownTelemetry := bootstrap.InitTelemetry(ctx, "scheduler")
	defer shutdownTelemetry()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	// 与 worker 和 server 使用不同的 machine id 部署
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	engine, err := bootstrap.NewEngine()
	if err != nil {
		logger.Logger.Fatal("Failed to build escalation engine", zap.Error(err))
	}

	// development 环境下 1 分钟一轮，方便本地调试
	interval := time.Duration(config.Cfg.EscalationTickSeconds) * time.Second
	if config.Cfg.IsDevelopment() {
		interval = time.Minute
	}

	s := schedule.NewEscalationScheduler(
		engine,
		interval,
		time.Duration(config.Cfg.EscalationRunTimeoutSecs)*time.Second,
		logger.Named("scheduler"),
	)

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
	)

	s.Loop(ctx)

	logger.Logger.Info("Scheduler service shutting down gracefully")
}
