package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"CareLink/internal/model"
	"CareLink/pkg/snowflake"
	"CareLink/storage/mq"
)

// PublishFunc 与 mq.PublishMessage 同签名，测试时替换
type PublishFunc func(ctx context.Context, exchange, routingKey string, body interface{}) error

// EventPublisher 把升级推进事件写入 events.escalation 交换机
type EventPublisher struct {
	publish PublishFunc
	log     *zap.Logger
}

func NewEventPublisher(log *zap.Logger) *EventPublisher {
	return newEventPublisher(mq.PublishMessage, log)
}

func newEventPublisher(publish PublishFunc, log *zap.Logger) *EventPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventPublisher{publish: publish, log: log}
}

// PublishEscalationAdvanced 发布 escalation.advanced 事件
func (p *EventPublisher) PublishEscalationAdvanced(ctx context.Context, event model.EscalationAdvancedEvent) error {
	if event.MessageID == "" {
		id, err := snowflake.NextMessageID()
		if err != nil {
			p.log.Error("Failed to generate message ID",
				zap.String("escalation_id", event.EscalationID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to generate message ID: %w", err)
		}
		event.MessageID = "esc_adv_" + id
	}
	if event.OccurredAt == "" {
		event.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}

	if err := p.publish(ctx, mq.ExchangeEscalation, mq.RoutingEscalationEvent, event); err != nil {
		p.log.Error("Failed to publish escalation advanced event",
			zap.String("escalation_id", event.EscalationID),
			zap.Int("to_level", event.ToLevel),
			zap.Error(err),
		)
		return err
	}

	p.log.Debug("Published escalation advanced event",
		zap.String("message_id", event.MessageID),
		zap.String("escalation_id", event.EscalationID),
		zap.Int("from_level", event.FromLevel),
		zap.Int("to_level", event.ToLevel),
	)
	return nil
}
