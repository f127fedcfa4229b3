package mocks

import (
	"context"

	"chat-server/notification-service/internal/service"
	"chat-server/shared/messaging"

	"github.com/stretchr/testify/mock"
)

// Mock PushProvider
type PushProvider struct {
	mock.Mock
}

func (m *PushProvider) SendPush(ctx context.Context, deviceToken, message string) error {
	args := m.Called(ctx, deviceToken, message)
	return args.Error(0)
}

// Mock EmailProvider
type EmailProvider struct {
	mock.Mock
}

func (m *EmailProvider) SendEmail(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

// Mock presence.Reader
type PresenceReader struct {
	mock.Mock
}

func (m *PresenceReader) IsOnline(ctx context.Context, userID string) bool {
	args := m.Called(ctx, userID)
	return args.Bool(0)
}

// Mock messaging.Dispatcher
type Dispatcher struct {
	mock.Mock
}

func (m *Dispatcher) Dispatch(ctx context.Context, event messaging.NotificationEvent) service.Outcome {
	args := m.Called(ctx, event)
	return args.Get(0).(service.Outcome)
}
