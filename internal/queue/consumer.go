package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"CareLink/internal/model"
	pkgerrors "CareLink/pkg/errors"
	"CareLink/pkg/logger"
	"CareLink/storage/mq"
)

// EscalationOpener 由 service.EscalationService 实现
type EscalationOpener interface {
	Open(ctx context.Context, msg model.AlertTriggeredMessage) (bool, error)
}

// ProcessGuard 由 cache.MessageGuard 实现
type ProcessGuard interface {
	TryMarkMessageProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
	UnmarkMessageProcessing(ctx context.Context, messageID string) error
	MarkMessageProcessed(ctx context.Context, messageID string, ttl time.Duration) error
}

const processingTTL = 10 * time.Minute

// AlertTriggeredHandler 处理 alerts.triggered 队列消息
func AlertTriggeredHandler(opener EscalationOpener, guard ProcessGuard, log *zap.Logger) mq.MessageHandler {
	if log == nil {
		log = zap.NewNop()
	}

	return func(ctx context.Context, body []byte) error {
		var msg model.AlertTriggeredMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return &pkgerrors.SkipMessageError{Reason: fmt.Sprintf("invalid alert message: %v", err)}
		}

		// 没有 message_id 的消息直接处理，由唯一索引兜底
		tracked := msg.MessageID != "" && guard != nil
		if tracked {
			first, err := guard.TryMarkMessageProcessing(ctx, msg.MessageID, processingTTL)
			if err != nil {
				log.Warn("Failed to check message idempotency, continuing",
					zap.String("message_id", msg.MessageID),
					zap.Error(err),
				)
			} else if !first {
				return &pkgerrors.SkipMessageError{Reason: "message already processed or in progress"}
			}
		}

		created, err := opener.Open(ctx, msg)
		if err != nil {
			if tracked {
				if pkgerrors.IsSkipMessageError(err) {
					_ = guard.MarkMessageProcessed(ctx, msg.MessageID, 0)
				} else if unmarkErr := guard.UnmarkMessageProcessing(ctx, msg.MessageID); unmarkErr != nil {
					log.Warn("Failed to unmark message",
						zap.String("message_id", msg.MessageID),
						zap.Error(unmarkErr),
					)
				}
			}
			return err
		}

		if tracked {
			if err := guard.MarkMessageProcessed(ctx, msg.MessageID, 0); err != nil {
				log.Warn("Failed to mark message as processed",
					zap.String("message_id", msg.MessageID),
					zap.Error(err),
				)
			}
		}

		log.Info("Alert escalation opened",
			zap.String("message_id", msg.MessageID),
			zap.String("alert_id", msg.AlertID),
			zap.Bool("created", created),
		)
		return nil
	}
}

// StartAlertTriggeredConsumer 阻塞消费 alerts.triggered
func StartAlertTriggeredConsumer(ctx context.Context, opener EscalationOpener, guard ProcessGuard) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QueueAlertTriggered,
		ConsumerTag:   "alert_triggered_consumer",
		PrefetchCount: 10,
		Handler:       AlertTriggeredHandler(opener, guard, logger.Named("queue.alert_triggered")),
	})
}

// StartAllConsumers 启动所有消费者并阻塞到全部退出
func StartAllConsumers(ctx context.Context, opener EscalationOpener, guard ProcessGuard) {
	var wg sync.WaitGroup

	consumers := []struct {
		name     string
		consumer func(context.Context) error
	}{
		{"alert_triggered", func(ctx context.Context) error {
			return StartAlertTriggeredConsumer(ctx, opener, guard)
		}},
	}

	for _, c := range consumers {
		wg.Add(1)
		go func(name string, consumer func(context.Context) error) {
			defer wg.Done()

			logger.Logger.Info("Starting consumer",
				zap.String("consumer_name", name),
			)

			if err := consumer(ctx); err != nil {
				logger.Logger.Error("Consumer exited with error",
					zap.String("consumer_name", name),
					zap.Error(err),
				)
			}
		}(c.name, c.consumer)
	}

	wg.Wait()

	logger.Logger.Info("All consumers stopped")
}
