package messaging

import (
	"context"

	"chat-server/notification-service/internal/service"
	sharedMessaging "chat-server/shared/messaging"
	"chat-server/shared/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Dispatcher выбирает канал и доставляет одно событие.
// Определен здесь, чтобы подменять его в тестах.
type Dispatcher interface {
	Dispatch(ctx context.Context, event sharedMessaging.NotificationEvent) service.Outcome
}

// Processor обрабатывает сообщения очереди notifications.
// Каждое сообщение подтверждается ровно один раз после попытки доставки, даже при ошибке
// провайдера или панике. Повторной постановки в очередь нет.
type Processor struct {
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	queueName  string
	logger     *zap.Logger
}

var _ sharedMessaging.DeliveryHandler = (*Processor)(nil)

func NewProcessor(dispatcher Dispatcher, m *metrics.Metrics, queueName string, logger *zap.Logger) *Processor {
	if queueName == "" {
		queueName = sharedMessaging.NotificationsQueue
	}
	return &Processor{
		dispatcher: dispatcher,
		metrics:    m,
		queueName:  queueName,
		logger:     logger.Named("processor"),
	}
}

func (p *Processor) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	log := p.logger.With(zap.Uint64("delivery_tag", d.DeliveryTag))

	err := sharedMessaging.AckAfter(d, log, func() error {
		return p.process(ctx, d, log)
	})
	p.metrics.MessageProcessed(p.queueName, metrics.StatusOf(err))
}

func (p *Processor) process(ctx context.Context, d amqp.Delivery, log *zap.Logger) error {
	event, err := sharedMessaging.Decode[sharedMessaging.NotificationEvent](d.Body)
	if err != nil {
		log.Error("Ошибка десериализации уведомления", zap.Error(err), zap.ByteString("body", d.Body))
		return err
	}
	notificationType := string(event.Type)
	log = log.With(zap.String("type", notificationType), zap.String("user_id", event.UserID))
	p.metrics.NotificationProcessed(notificationType, metrics.StatusReceived)

	if event.Type != sharedMessaging.NotificationTypeMessageReceived {
		log.Warn("Неизвестный тип уведомления, пропускаем")
		p.metrics.NotificationProcessed(notificationType, metrics.StatusIgnored)
		return nil
	}

	outcome := p.dispatcher.Dispatch(ctx, event)
	p.metrics.NotificationProcessed(notificationType, string(outcome))
	switch outcome {
	case service.OutcomeSentPush:
		p.metrics.NotificationSent(metrics.MethodPush)
	case service.OutcomeSentEmail:
		p.metrics.NotificationSent(metrics.MethodEmail)
	}
	log.Debug("Уведомление обработано", zap.String("outcome", string(outcome)))
	return nil
}
