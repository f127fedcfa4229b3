// Package service - сторона отправки сообщений чата: оповещение получателя через очередь notifications.
package service

import (
	"context"
	"errors"
	"fmt"

	"chat-server/shared/messaging"
	"chat-server/shared/metrics"
	"chat-server/shared/models"

	"go.uber.org/zap"
)

// UserDetailsGetter - клиентская сторона протокола USER_DETAILS.
type UserDetailsGetter interface {
	GetUserDetails(ctx context.Context, userID string) (*models.UserProfile, error)
}

type NotificationPublisher interface {
	PublishNotification(ctx context.Context, event messaging.NotificationEvent) error
}

// SentMessage - сообщение, только что сохраненное обработчиком отправки.
type SentMessage struct {
	SenderID   string
	ReceiverID string
	Text       string
	// Токен устройства получателя, если клиент его передал
	ReceiverDeviceToken string
}

var ErrEmptyRecipient = errors.New("receiver id is empty")

// MessageNotifier публикует MESSAGE_RECEIVED для получателя нового сообщения.
// Профили отправителя и получателя запрашиваются у user-service через очередь.
type MessageNotifier struct {
	users     UserDetailsGetter
	publisher NotificationPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewMessageNotifier(users UserDetailsGetter, publisher NotificationPublisher, m *metrics.Metrics, logger *zap.Logger) *MessageNotifier {
	return &MessageNotifier{
		users:     users,
		publisher: publisher,
		metrics:   m,
		logger:    logger.Named("MessageNotifier"),
	}
}

func (n *MessageNotifier) NotifyMessageReceived(ctx context.Context, msg SentMessage) error {
	if msg.ReceiverID == "" {
		return ErrEmptyRecipient
	}
	log := n.logger.With(zap.String("sender_id", msg.SenderID), zap.String("receiver_id", msg.ReceiverID))

	receiver, err := n.lookup(ctx, msg.ReceiverID)
	if err != nil {
		log.Warn("Не удалось получить профиль получателя", zap.Error(err))
		return fmt.Errorf("receiver %s: %w", msg.ReceiverID, err)
	}
	sender, err := n.lookup(ctx, msg.SenderID)
	if err != nil {
		log.Warn("Не удалось получить профиль отправителя", zap.Error(err))
		return fmt.Errorf("sender %s: %w", msg.SenderID, err)
	}

	event := messaging.NotificationEvent{
		Type:      messaging.NotificationTypeMessageReceived,
		UserID:    receiver.ID,
		Message:   msg.Text,
		UserEmail: receiver.Email,
		UserToken: msg.ReceiverDeviceToken,
		FromName:  sender.Name,
	}
	if err := n.publisher.PublishNotification(ctx, event); err != nil {
		log.Error("Не удалось опубликовать уведомление", zap.Error(err))
		return err
	}
	log.Debug("Уведомление MESSAGE_RECEIVED опубликовано")
	return nil
}

func (n *MessageNotifier) lookup(ctx context.Context, userID string) (*models.UserProfile, error) {
	profile, err := n.users.GetUserDetails(ctx, userID)
	n.metrics.UserDetailsRequest(metrics.StatusOf(err))
	return profile, err
}
