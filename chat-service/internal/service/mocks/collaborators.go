package mocks

import (
	"context"

	"chat-server/shared/messaging"
	"chat-server/shared/models"

	"github.com/stretchr/testify/mock"
)

// Mock UserDetailsGetter
type UserDetailsGetter struct {
	mock.Mock
}

func (m *UserDetailsGetter) GetUserDetails(ctx context.Context, userID string) (*models.UserProfile, error) {
	args := m.Called(ctx, userID)
	profile, _ := args.Get(0).(*models.UserProfile)
	return profile, args.Error(1)
}

// Mock NotificationPublisher
type NotificationPublisher struct {
	mock.Mock
}

func (m *NotificationPublisher) PublishNotification(ctx context.Context, event messaging.NotificationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
