package mocks

import (
	"context"

	"chat-server/shared/models"

	"github.com/stretchr/testify/mock"
)

// Mock UserLookup
type UserLookup struct {
	mock.Mock
}

func (m *UserLookup) FindByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}
