package messaging

import (
	"context"

	sharedMessaging "chat-server/shared/messaging"
	"chat-server/shared/metrics"
	"chat-server/shared/presence"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// PresenceUpdater применяет события трекера соединений из очереди user_presence к хранилищу присутствия.
type PresenceUpdater struct {
	store     presence.Writer
	metrics   *metrics.Metrics
	queueName string
	logger    *zap.Logger
}

var _ sharedMessaging.DeliveryHandler = (*PresenceUpdater)(nil)

func NewPresenceUpdater(store presence.Writer, m *metrics.Metrics, queueName string, logger *zap.Logger) *PresenceUpdater {
	if queueName == "" {
		queueName = sharedMessaging.PresenceQueue
	}
	return &PresenceUpdater{
		store:     store,
		metrics:   m,
		queueName: queueName,
		logger:    logger.Named("presence_updater"),
	}
}

func (u *PresenceUpdater) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	log := u.logger.With(zap.Uint64("delivery_tag", d.DeliveryTag))

	err := sharedMessaging.AckAfter(d, log, func() error {
		event, err := sharedMessaging.Decode[sharedMessaging.PresenceEvent](d.Body)
		if err != nil {
			log.Warn("Некорректное событие присутствия", zap.Error(err))
			return err
		}
		if event.Online {
			err = u.store.SetOnline(ctx, event.UserID)
		} else {
			err = u.store.SetOffline(ctx, event.UserID)
		}
		if err != nil {
			log.Error("Не удалось обновить присутствие", zap.String("user_id", event.UserID), zap.Error(err))
			return err
		}
		log.Debug("Присутствие обновлено", zap.String("user_id", event.UserID), zap.Bool("online", event.Online))
		return nil
	})
	u.metrics.MessageProcessed(u.queueName, metrics.StatusOf(err))
}
