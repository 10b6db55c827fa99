// Package messaging 领域事件发布实现。
package messaging

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/papertrading/pkg/mq"
)

// KafkaEventPublisher 把领域事件发布到 Kafka。
type KafkaEventPublisher struct {
	producer *mq.KafkaProducer
	logger   *slog.Logger
}

// NewKafkaEventPublisher 创建 Kafka 事件发布者。
func NewKafkaEventPublisher(producer *mq.KafkaProducer, logger *slog.Logger) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, logger: logger}
}

// Publish 发布事件。事件发布失败不影响主流程，只记录日志。
func (p *KafkaEventPublisher) Publish(ctx context.Context, topic string, key string, event any) error {
	if err := p.producer.SendMessage(ctx, topic, key, event); err != nil {
		p.logger.Error("failed to publish event", "topic", topic, "key", key, "error", err)
		return err
	}
	return nil
}

// NoopEventPublisher 空实现，事件发布未启用时使用。
type NoopEventPublisher struct{}

// Publish 丢弃事件。
func (NoopEventPublisher) Publish(ctx context.Context, topic string, key string, event any) error {
	slog.DebugContext(ctx, "event publishing disabled, dropping event", "topic", topic, "key", key)
	return nil
}
