package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"CareLink/pkg/logger"
	"CareLink/storage/database"
	"CareLink/storage/mq"
	"CareLink/storage/redis"
)

const closeTimeout = 15 * time.Second

type closer struct {
	name  string
	close func(ctx context.Context) error
}

// Close 先停 MQ 不再接新告警，再释放运行锁所在的 redis，最后关 postgres
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	closeAll(ctx, []closer{
		{"rabbitmq", mq.Close},
		{"redis", redis.Close},
		{"postgres", database.Close},
	})
}

func closeAll(ctx context.Context, closers []closer) {
	for _, c := range closers {
		if err := c.close(ctx); err != nil {
			logger.Logger.Error("Failed to close storage connection", zap.String("storage", c.name), zap.Error(err))
			continue
		}
		logger.Logger.Debug("Storage connection closed", zap.String("storage", c.name))
	}
}
