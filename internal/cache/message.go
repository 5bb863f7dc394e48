package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"CareLink/storage/redis"
)

const (
	messageProcessedPrefix = "mq:processed"
	processedTTL           = 24 * time.Hour
)

// MessageGuard 消费端幂等标记：processing -> completed，失败时删除以便重投
type MessageGuard struct {
	client goredis.Cmdable
}

func NewMessageGuard(client goredis.Cmdable) *MessageGuard {
	return &MessageGuard{client: client}
}

// TryMarkMessageProcessing 返回 true 表示首次处理，false 表示重复消息或正在处理
func (g *MessageGuard) TryMarkMessageProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = processedTTL
	}

	ok, err := g.client.SetNX(ctx, messageKey(messageID), "processing", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	return ok, nil
}

// UnmarkMessageProcessing 处理失败时调用，允许重试
func (g *MessageGuard) UnmarkMessageProcessing(ctx context.Context, messageID string) error {
	return g.client.Del(ctx, messageKey(messageID)).Err()
}

// MarkMessageProcessed 处理成功时调用，延长 TTL
func (g *MessageGuard) MarkMessageProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = processedTTL
	}
	return g.client.Set(ctx, messageKey(messageID), "completed", ttl).Err()
}

func messageKey(messageID string) string {
	return redis.Key(messageProcessedPrefix, messageID)
}
