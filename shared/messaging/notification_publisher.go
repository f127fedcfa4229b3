package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chat-server/shared/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// NotificationPublisher отправляет события в очередь уведомлений.
type NotificationPublisher struct {
	publisher Publisher
	queueName string
	logger    *zap.Logger
}

func NewNotificationPublisher(publisher Publisher, queueName string, logger *zap.Logger) *NotificationPublisher {
	if queueName == "" {
		queueName = NotificationsQueue
	}
	return &NotificationPublisher{
		publisher: publisher,
		queueName: queueName,
		logger:    logger.Named("NotificationPublisher"),
	}
}

// PublishNotification проверяет событие и публикует его как persistent JSON.
func (p *NotificationPublisher) PublishNotification(ctx context.Context, event NotificationEvent) error {
	if err := validate.Struct(event); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	err = p.publisher.Publish(ctx, p.queueName, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		p.logger.Error("Failed to publish notification event",
			zap.String("type", string(event.Type)),
			zap.String("user_id", event.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to publish notification event: %w", err)
	}
	p.logger.Debug("Notification event published",
		zap.String("type", string(event.Type)),
		zap.String("user_id", event.UserID))
	return nil
}
