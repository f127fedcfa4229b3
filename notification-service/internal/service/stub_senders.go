package service

import (
	"context"

	"go.uber.org/zap"
)

// --- Заглушки, когда провайдер не настроен ---

type stubPushSender struct {
	logger *zap.Logger
}

func NewStubPushSender(logger *zap.Logger) PushProvider {
	return &stubPushSender{logger: logger.Named("stub_push_sender")}
}

func (s *stubPushSender) SendPush(_ context.Context, deviceToken, message string) error {
	s.logger.Info("ЗАГЛУШКА: Отправка push",
		zap.String("token", deviceToken),
		zap.Int("message_len", len(message)),
	)
	return nil
}

type stubEmailSender struct {
	logger *zap.Logger
}

func NewStubEmailSender(logger *zap.Logger) EmailProvider {
	return &stubEmailSender{logger: logger.Named("stub_email_sender")}
}

func (s *stubEmailSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.logger.Info("ЗАГЛУШКА: Отправка письма",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
