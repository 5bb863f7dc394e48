package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"CareLink/config"
	"CareLink/pkg/logger"
)

// 拓扑：告警事件进入 alerts 交换机，升级事件进入 events.escalation 交换机
const (
	ExchangeAlerts     = "alerts"
	ExchangeEscalation = "events.escalation"

	QueueAlertTriggered = "alerts.triggered"
	RoutingAlertTrigger = "alert.triggered"

	QueueEscalationAudit   = "events.escalation.audit"
	RoutingEscalationEvent = "escalation.advanced"

	// 第二次处理失败的消息按原 routing key 进入死信队列，等待人工处理
	ExchangeDeadLetter = "dlx"
	QueueDeadLetter    = "dlq"
)

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

func Init() error {
	connOnce.Do(func() {
		conn, connErr = amqp.Dial(config.Cfg.GetRabbitMQURL())
		if connErr != nil {
			return
		}

		connErr = declareTopology()
		if connErr != nil {
			logger.Logger.Error("Failed to declare RabbitMQ topology", zap.Error(connErr))
			return
		}

		logger.Logger.Info("RabbitMQ connected",
			zap.String("addr", config.Cfg.RabbitMQAddr),
			zap.String("vhost", config.Cfg.RabbitMQVhost),
		)
	})

	return connErr
}

func Connection() *amqp.Connection {
	return conn
}

func declareTopology() error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	for _, exchange := range []string{ExchangeAlerts, ExchangeEscalation, ExchangeDeadLetter} {
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	bindings := []struct {
		queue, exchange, key string
	}{
		{QueueAlertTriggered, ExchangeAlerts, RoutingAlertTrigger},
		{QueueEscalationAudit, ExchangeEscalation, RoutingEscalationEvent},
	}
	if _, err := ch.QueueDeclare(QueueDeadLetter, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", QueueDeadLetter, err)
	}
	if err := ch.QueueBind(QueueDeadLetter, "#", ExchangeDeadLetter, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", QueueDeadLetter, err)
	}

	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, queueArgs()); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", b.queue, err)
		}
	}

	return nil
}

// queueArgs 业务队列统一挂死信交换机，nack(requeue=false) 的消息不会被丢弃
func queueArgs() amqp.Table {
	return amqp.Table{"x-dead-letter-exchange": ExchangeDeadLetter}
}

func Close(ctx context.Context) error {
	pubMutex.Lock()
	if publisherCh != nil && !publisherCh.IsClosed() {
		_ = publisherCh.Close()
	}
	publisherCh = nil
	pubMutex.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
