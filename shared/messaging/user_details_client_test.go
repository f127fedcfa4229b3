package messaging_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"chat-server/shared/messaging"
	"chat-server/shared/messaging/messagingtest"
	"chat-server/shared/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func replyDelivery(t *testing.T, ack amqp.Acknowledger, correlationID string, resp messaging.UserDetailsResponse) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	d := messagingtest.Delivery(ack, 99, body)
	d.CorrelationId = correlationID
	return d
}

func TestUserDetailsClient_GetUserDetails(t *testing.T) {
	logger := zap.NewNop()
	cfg := messaging.UserDetailsClientConfig{Timeout: time.Second}

	t.Run("Ответ сопоставляется по correlation id", func(t *testing.T) {
		ack := messagingtest.NewAcknowledger()
		pub := &messagingtest.Publisher{}
		client := messaging.NewUserDetailsClient(pub, cfg, logger)
		pub.OnPublish = func(_ string, msg amqp.Publishing) {
			go func() {
				// Чужой ответ не должен попасть в ожидающий запрос
				client.HandleDelivery(context.Background(), replyDelivery(t, ack, "someone-else", messaging.UserDetailsResponse{
					UserProfile: &models.UserProfile{ID: "wrong"},
				}))
				client.HandleDelivery(context.Background(), replyDelivery(t, ack, msg.CorrelationId, messaging.UserDetailsResponse{
					UserProfile: &models.UserProfile{ID: "u1", Name: "Ann", Email: "ann@example.com"},
				}))
			}()
		}

		profile, err := client.GetUserDetails(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", profile.ID)
		assert.Equal(t, "Ann", profile.Name)

		msgs := pub.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, messaging.UserDetailsRequestQueue, msgs[0].RoutingKey)
		assert.Equal(t, messaging.UserDetailsResponseQueue, msgs[0].Msg.ReplyTo)
		assert.NotEmpty(t, msgs[0].Msg.CorrelationId)
		assert.JSONEq(t, `{"userId":"u1"}`, string(msgs[0].Msg.Body))

		require.Eventually(t, func() bool { return ack.TotalAcks() == 2 }, time.Second, 5*time.Millisecond)
		assert.Zero(t, client.Pending())
	})

	t.Run("not_found превращается в ErrUserNotFound", func(t *testing.T) {
		pub := &messagingtest.Publisher{}
		client := messaging.NewUserDetailsClient(pub, cfg, logger)
		pub.OnPublish = func(_ string, msg amqp.Publishing) {
			go client.HandleDelivery(context.Background(), replyDelivery(t, messagingtest.NewAcknowledger(), msg.CorrelationId,
				messaging.UserDetailsResponse{Error: &messaging.ResponseError{Code: messaging.ErrorCodeNotFound}}))
		}

		_, err := client.GetUserDetails(context.Background(), "ghost")
		assert.ErrorIs(t, err, models.ErrUserNotFound)
	})

	t.Run("internal превращается в ErrRemote", func(t *testing.T) {
		pub := &messagingtest.Publisher{}
		client := messaging.NewUserDetailsClient(pub, cfg, logger)
		pub.OnPublish = func(_ string, msg amqp.Publishing) {
			go client.HandleDelivery(context.Background(), replyDelivery(t, messagingtest.NewAcknowledger(), msg.CorrelationId,
				messaging.UserDetailsResponse{Error: &messaging.ResponseError{Code: messaging.ErrorCodeInternal, Message: "db down"}}))
		}

		_, err := client.GetUserDetails(context.Background(), "u1")
		assert.ErrorIs(t, err, messaging.ErrRemote)
	})

	t.Run("Таймаут", func(t *testing.T) {
		pub := &messagingtest.Publisher{}
		client := messaging.NewUserDetailsClient(pub, messaging.UserDetailsClientConfig{Timeout: 20 * time.Millisecond}, logger)

		_, err := client.GetUserDetails(context.Background(), "u1")
		assert.ErrorIs(t, err, messaging.ErrRequestTimeout)
		assert.Zero(t, client.Pending())

		// Опоздавший ответ подтверждается и отбрасывается
		ack := messagingtest.NewAcknowledger()
		corrID := pub.Messages()[0].Msg.CorrelationId
		client.HandleDelivery(context.Background(), replyDelivery(t, ack, corrID, messaging.UserDetailsResponse{
			UserProfile: &models.UserProfile{ID: "u1"},
		}))
		assert.Equal(t, 1, ack.TotalAcks())
	})

	t.Run("Ошибка публикации", func(t *testing.T) {
		pub := &messagingtest.Publisher{Err: messaging.ErrNotConnected}
		client := messaging.NewUserDetailsClient(pub, cfg, logger)

		_, err := client.GetUserDetails(context.Background(), "u1")
		assert.ErrorIs(t, err, messaging.ErrNotConnected)
		assert.Zero(t, client.Pending())
	})

	t.Run("Отмена контекста вызывающего", func(t *testing.T) {
		pub := &messagingtest.Publisher{}
		client := messaging.NewUserDetailsClient(pub, cfg, logger)
		ctx, cancel := context.WithCancel(context.Background())
		pub.OnPublish = func(string, amqp.Publishing) { cancel() }

		_, err := client.GetUserDetails(ctx, "u1")
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
