package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	pkgerrors "CareLink/pkg/errors"
	"CareLink/pkg/logger"
	mqotel "CareLink/pkg/mq"
)

type MessageHandler func(ctx context.Context, body []byte) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 阻塞消费直到 ctx 取消或 channel 关闭
// handler 返回 SkipMessageError 时 ack 丢弃；其它错误首次 nack 重新入队，重投后仍失败进入死信队列
func Consume(ctx context.Context, opts ConsumeOptions) error {
	conn := Connection()
	if conn == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack = false
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", opts.Queue)
			}
			handle(ctx, opts, msg)
		}
	}
}

func handle(ctx context.Context, opts ConsumeOptions, msg amqp.Delivery) {
	msgCtx, span := mqotel.StartProcessSpan(ctx, opts.Queue, msg)
	start := time.Now()

	err := opts.Handler(msgCtx, msg.Body)
	outcome := "ack"
	defer func() {
		mqotel.RecordConsume(msgCtx, opts.Queue, outcome, time.Since(start).Seconds())
		if outcome == "skip" {
			mqotel.EndSpan(span, nil)
			return
		}
		mqotel.EndSpan(span, err)
	}()

	switch {
	case err == nil:
		_ = msg.Ack(false)
	case pkgerrors.IsSkipMessageError(err):
		outcome = "skip"
		logger.Logger.Info("Message skipped",
			zap.String("queue", opts.Queue),
			zap.String("reason", err.Error()),
		)
		_ = msg.Ack(false)
	default:
		outcome = "nack"
		requeue := !msg.Redelivered
		if !requeue {
			outcome = "dead_letter"
		}
		logger.Logger.Error("Failed to process message",
			zap.String("queue", opts.Queue),
			zap.String("consumer_tag", opts.ConsumerTag),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
		_ = msg.Nack(false, requeue)
	}
}
