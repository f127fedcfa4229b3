package service

import (
	"context"
	"fmt"

	"chat-server/notification-service/internal/config"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"go.uber.org/zap"
)

// apnsClient - метод *apns2.Client, которым пользуется отправитель.
type apnsClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type APNSSender struct {
	client apnsClient
	topic  string
	logger *zap.Logger
}

var _ PushProvider = (*APNSSender)(nil)

// NewAPNSSender создает отправитель APNs с токен-авторизацией (.p8 ключ).
// Возвращает nil, nil, если конфигурация неполная.
func NewAPNSSender(cfg config.APNSConfig, logger *zap.Logger) (*APNSSender, error) {
	if cfg.KeyPath == "" || cfg.KeyID == "" || cfg.TeamID == "" || cfg.Topic == "" {
		logger.Warn("APNS конфигурация не полная (KeyPath, KeyID, TeamID, Topic), APNS sender не будет создан.")
		return nil, nil
	}

	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ключа APNS из файла %s: %w", cfg.KeyPath, err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	logger.Info("APNS Sender успешно инициализирован",
		zap.String("key_id", cfg.KeyID),
		zap.String("team_id", cfg.TeamID),
		zap.String("topic", cfg.Topic),
		zap.Bool("production", cfg.Production),
	)
	return newAPNSSender(client, cfg.Topic, logger), nil
}

func newAPNSSender(client apnsClient, topic string, logger *zap.Logger) *APNSSender {
	return &APNSSender{client: client, topic: topic, logger: logger.Named("apns_sender")}
}

func (s *APNSSender) SendPush(ctx context.Context, deviceToken, message string) error {
	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       s.topic,
		Payload:     payload.NewPayload().AlertTitle(pushTitle).AlertBody(message).Sound("default"),
		Priority:    apns2.PriorityHigh,
	}

	res, err := s.client.PushWithContext(ctx, notification)
	if err != nil {
		s.logger.Error("Ошибка вызова APNS PushWithContext", zap.Error(err))
		return fmt.Errorf("apns send error: %w", err)
	}
	if !res.Sent() {
		s.logger.Warn("APNS уведомление не отправлено (ответ от сервера)",
			zap.Int("status_code", res.StatusCode),
			zap.String("apns_id", res.ApnsID),
			zap.String("reason", res.Reason),
		)
		if res.Reason == apns2.ReasonUnregistered || res.Reason == apns2.ReasonBadDeviceToken {
			return fmt.Errorf("apns: %w: %s", ErrInvalidDeviceToken, res.Reason)
		}
		return fmt.Errorf("apns delivery failed: %d %s", res.StatusCode, res.Reason)
	}

	s.logger.Debug("APNS уведомление успешно отправлено", zap.String("apns_id", res.ApnsID))
	return nil
}
