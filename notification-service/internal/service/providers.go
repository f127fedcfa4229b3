package service

import (
	"context"
	"errors"
)

// PushProvider доставляет push-уведомление на одно устройство.
type PushProvider interface {
	SendPush(ctx context.Context, deviceToken, message string) error
}

// EmailProvider отправляет одно письмо.
type EmailProvider interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// ErrInvalidDeviceToken - провайдер отверг токен устройства как недействительный или отозванный.
var ErrInvalidDeviceToken = errors.New("invalid device token")

// pushTitle - заголовок push-уведомления о новом сообщении.
const pushTitle = "New Message"
