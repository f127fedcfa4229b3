package service

import (
	"context"
	"fmt"

	"chat-server/notification-service/internal/config"

	firebase "firebase.google.com/go/v4"
	fcm "firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// fcmClient - метод *fcm.Client, которым пользуется отправитель.
type fcmClient interface {
	Send(ctx context.Context, message *fcm.Message) (string, error)
}

type FCMSender struct {
	client fcmClient
	logger *zap.Logger
}

var _ PushProvider = (*FCMSender)(nil)

// NewFCMSender создает отправитель FCM по файлу ключа сервис-аккаунта Firebase.
// Возвращает nil, nil, если путь к ключу не задан.
func NewFCMSender(ctx context.Context, cfg config.FCMConfig, logger *zap.Logger) (*FCMSender, error) {
	if cfg.CredentialsPath == "" {
		logger.Warn("Путь к файлу ключа Firebase (FCM_CREDENTIALS_PATH) не указан, FCM sender не будет создан.")
		return nil, nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.CredentialsPath))
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации Firebase App из файла '%s': %w", cfg.CredentialsPath, err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения FCM Messaging client: %w", err)
	}

	logger.Info("FCM Sender успешно инициализирован", zap.String("credentials_path", cfg.CredentialsPath))
	return newFCMSender(client, logger), nil
}

func newFCMSender(client fcmClient, logger *zap.Logger) *FCMSender {
	return &FCMSender{client: client, logger: logger.Named("fcm_sender")}
}

func (s *FCMSender) SendPush(ctx context.Context, deviceToken, message string) error {
	msg := &fcm.Message{
		Token: deviceToken,
		Notification: &fcm.Notification{
			Title: pushTitle,
			Body:  message,
		},
		Android: &fcm.AndroidConfig{
			Priority: "high",
		},
	}

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		if fcm.IsUnregistered(err) || fcm.IsInvalidArgument(err) || fcm.IsSenderIDMismatch(err) {
			s.logger.Warn("Обнаружен невалидный/незарегистрированный FCM токен", zap.Error(err))
			return fmt.Errorf("fcm: %w: %v", ErrInvalidDeviceToken, err)
		}
		s.logger.Error("Ошибка отправки FCM", zap.Error(err))
		return fmt.Errorf("ошибка отправки FCM: %w", err)
	}

	s.logger.Debug("FCM уведомление отправлено", zap.String("message_id", id))
	return nil
}
