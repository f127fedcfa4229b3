package messaging_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sharedMessaging "chat-server/shared/messaging"
	"chat-server/shared/messaging/messagingtest"
	"chat-server/shared/metrics"
	"chat-server/shared/metrics/metricstest"
	"chat-server/shared/models"
	"chat-server/user-service/internal/messaging"
	"chat-server/user-service/internal/repository/mocks"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rpcFixture struct {
	lookup *mocks.UserLookup
	pub    *messagingtest.Publisher
	ack    *messagingtest.Acknowledger
	reg    *prometheus.Registry
	server *messaging.RPCServer
}

func newRPCFixture() *rpcFixture {
	f := &rpcFixture{
		lookup: new(mocks.UserLookup),
		pub:    &messagingtest.Publisher{},
		ack:    messagingtest.NewAcknowledger(),
		reg:    prometheus.NewRegistry(),
	}
	f.server = messaging.NewRPCServer(f.lookup, f.pub, metrics.New(f.reg, "user-service"),
		messaging.RPCServerConfig{LookupTimeout: time.Second}, zap.NewNop())
	return f
}

func (f *rpcFixture) request(tag uint64, correlationID, replyTo, body string) amqp.Delivery {
	d := messagingtest.Delivery(f.ack, tag, []byte(body))
	d.CorrelationId = correlationID
	d.ReplyTo = replyTo
	return d
}

func (f *rpcFixture) value(t *testing.T, name string, labels map[string]string) float64 {
	return metricstest.Value(t, f.reg, name, labels)
}

func decodeReply(t *testing.T, p messagingtest.Published) sharedMessaging.UserDetailsResponse {
	t.Helper()
	var resp sharedMessaging.UserDetailsResponse
	require.NoError(t, json.Unmarshal(p.Msg.Body, &resp))
	return resp
}

func TestRPCServer_HandleDelivery(t *testing.T) {
	ctx := context.Background()
	user := &models.User{
		ID:           "u1",
		Name:         "Ann",
		Email:        "ann@example.com",
		PasswordHash: "$2a$10$secret",
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	t.Run("Профиль уходит в ReplyTo с тем же correlation id", func(t *testing.T) {
		f := newRPCFixture()
		f.lookup.On("FindByID", mock.Anything, "u1").Return(user, nil).Once()

		f.server.HandleDelivery(ctx, f.request(1, "c-123", "reply.queue", `{"userId":"u1"}`))

		msgs := f.pub.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "reply.queue", msgs[0].RoutingKey)
		assert.Equal(t, "c-123", msgs[0].Msg.CorrelationId)
		assert.NotContains(t, string(msgs[0].Msg.Body), "secret")
		assert.NotContains(t, string(msgs[0].Msg.Body), "password")

		resp := decodeReply(t, msgs[0])
		require.NotNil(t, resp.UserProfile)
		assert.Nil(t, resp.Error)
		assert.Equal(t, "u1", resp.ID)
		assert.Equal(t, "ann@example.com", resp.Email)

		assert.Equal(t, 1, f.ack.Acks(1))
		assert.Equal(t, 1.0, f.value(t, "user_details_requests_total", map[string]string{"status": "success"}))
		assert.Equal(t, 1.0, f.value(t, "user_details_responses_total", map[string]string{"status": "success"}))
		assert.Equal(t, 1.0, f.value(t, "rabbitmq_messages_processed_total", map[string]string{"queue": "USER_DETAILS_REQUEST", "status": "success"}))
		f.lookup.AssertExpectations(t)
	})

	t.Run("Без ReplyTo ответ уходит в USER_DETAILS_RESPONSE", func(t *testing.T) {
		f := newRPCFixture()
		f.lookup.On("FindByID", mock.Anything, "u1").Return(user, nil).Once()

		f.server.HandleDelivery(ctx, f.request(1, "c-1", "", `{"userId":"u1"}`))

		msgs := f.pub.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, sharedMessaging.UserDetailsResponseQueue, msgs[0].RoutingKey)
	})

	t.Run("Пользователь не найден", func(t *testing.T) {
		f := newRPCFixture()
		f.lookup.On("FindByID", mock.Anything, "ghost").Return(nil, models.ErrUserNotFound).Once()

		f.server.HandleDelivery(ctx, f.request(7, "c-404", "", `{"userId":"ghost"}`))

		msgs := f.pub.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "c-404", msgs[0].Msg.CorrelationId)
		resp := decodeReply(t, msgs[0])
		require.NotNil(t, resp.Error)
		assert.Equal(t, sharedMessaging.ErrorCodeNotFound, resp.Error.Code)
		assert.Nil(t, resp.UserProfile)

		assert.Equal(t, 1, f.ack.Acks(7))
		assert.Equal(t, 1.0, f.value(t, "user_details_requests_total", map[string]string{"status": "failed"}))
		assert.Equal(t, 1.0, f.value(t, "user_details_responses_total", map[string]string{"status": "failed"}))
		assert.Zero(t, f.value(t, "user_details_requests_total", map[string]string{"status": "success"}))
	})

	t.Run("Некорректный payload", func(t *testing.T) {
		f := newRPCFixture()

		f.server.HandleDelivery(ctx, f.request(2, "c-bad", "", `{"user":`))

		msgs := f.pub.Messages()
		require.Len(t, msgs, 1)
		resp := decodeReply(t, msgs[0])
		require.NotNil(t, resp.Error)
		assert.Equal(t, sharedMessaging.ErrorCodeBadRequest, resp.Error.Code)
		assert.Equal(t, 1, f.ack.Acks(2))
		assert.Equal(t, 1.0, f.value(t, "rabbitmq_messages_processed_total", map[string]string{"status": "failed"}))
		f.lookup.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("Пустой userId", func(t *testing.T) {
		f := newRPCFixture()

		f.server.HandleDelivery(ctx, f.request(2, "c-empty", "", `{"userId":""}`))

		resp := decodeReply(t, f.pub.Messages()[0])
		require.NotNil(t, resp.Error)
		assert.Equal(t, sharedMessaging.ErrorCodeBadRequest, resp.Error.Code)
	})

	t.Run("Ошибка хранилища", func(t *testing.T) {
		f := newRPCFixture()
		f.lookup.On("FindByID", mock.Anything, "u1").Return(nil, errors.New("connection reset")).Once()

		f.server.HandleDelivery(ctx, f.request(3, "c-500", "", `{"userId":"u1"}`))

		resp := decodeReply(t, f.pub.Messages()[0])
		require.NotNil(t, resp.Error)
		assert.Equal(t, sharedMessaging.ErrorCodeInternal, resp.Error.Code)
		assert.NotContains(t, resp.Error.Message, "connection reset")
		assert.Equal(t, 1, f.ack.Acks(3))
	})

	t.Run("Ошибка публикации ответа не мешает Ack", func(t *testing.T) {
		f := newRPCFixture()
		f.pub.Err = sharedMessaging.ErrNotConnected
		f.lookup.On("FindByID", mock.Anything, "u1").Return(user, nil).Once()

		f.server.HandleDelivery(ctx, f.request(4, "c-4", "", `{"userId":"u1"}`))

		assert.Equal(t, 1, f.ack.Acks(4))
		assert.Equal(t, 1.0, f.value(t, "user_details_requests_total", map[string]string{"status": "success"}))
		assert.Equal(t, 1.0, f.value(t, "user_details_responses_total", map[string]string{"status": "failed"}))
		assert.Equal(t, 1.0, f.value(t, "rabbitmq_messages_processed_total", map[string]string{"status": "failed"}))
	})

	t.Run("Паника в хранилище", func(t *testing.T) {
		f := newRPCFixture()
		f.lookup.On("FindByID", mock.Anything, "u1").Panic("nil pointer dereference").Once()

		assert.NotPanics(t, func() {
			f.server.HandleDelivery(ctx, f.request(5, "c-panic", "", `{"userId":"u1"}`))
		})

		msgs := f.pub.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "c-panic", msgs[0].Msg.CorrelationId)
		resp := decodeReply(t, msgs[0])
		require.NotNil(t, resp.Error)
		assert.Equal(t, sharedMessaging.ErrorCodeInternal, resp.Error.Code)
		assert.Equal(t, 1, f.ack.Acks(5))
		assert.Equal(t, 1.0, f.value(t, "user_details_requests_total", map[string]string{"status": "failed"}))
		assert.Equal(t, 1.0, f.value(t, "rabbitmq_messages_processed_total", map[string]string{"status": "failed"}))
	})

	t.Run("Дубликаты обрабатываются независимо", func(t *testing.T) {
		f := newRPCFixture()
		f.lookup.On("FindByID", mock.Anything, "u1").Return(user, nil).Twice()

		f.server.HandleDelivery(ctx, f.request(10, "c-dup", "", `{"userId":"u1"}`))
		f.server.HandleDelivery(ctx, f.request(11, "c-dup", "", `{"userId":"u1"}`))

		assert.Len(t, f.pub.Messages(), 2)
		assert.Equal(t, 1, f.ack.Acks(10))
		assert.Equal(t, 1, f.ack.Acks(11))
		f.lookup.AssertExpectations(t)
	})
}

// Клиент и сервер соединены через фейковые паблишеры: запрос клиента доставляется серверу,
// ответ сервера - обратно клиенту.
func TestRPCServer_RoundTripWithClient(t *testing.T) {
	f := newRPCFixture()
	f.lookup.On("FindByID", mock.Anything, "u1").Return(&models.User{ID: "u1", Name: "Ann", Email: "ann@example.com", PasswordHash: "secret"}, nil)
	f.lookup.On("FindByID", mock.Anything, "ghost").Return(nil, models.ErrUserNotFound)

	clientPub := &messagingtest.Publisher{}
	client := sharedMessaging.NewUserDetailsClient(clientPub, sharedMessaging.UserDetailsClientConfig{Timeout: time.Second}, zap.NewNop())

	var tag uint64
	clientPub.OnPublish = func(routingKey string, msg amqp.Publishing) {
		tag++
		d := messagingtest.Delivery(f.ack, tag, msg.Body)
		d.CorrelationId = msg.CorrelationId
		d.ReplyTo = msg.ReplyTo
		go f.server.HandleDelivery(context.Background(), d)
	}
	f.pub.OnPublish = func(routingKey string, msg amqp.Publishing) {
		d := messagingtest.Delivery(messagingtest.NewAcknowledger(), 1000, msg.Body)
		d.CorrelationId = msg.CorrelationId
		go client.HandleDelivery(context.Background(), d)
	}

	profile, err := client.GetUserDetails(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", profile.Name)

	_, err = client.GetUserDetails(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	require.Eventually(t, func() bool { return f.ack.TotalAcks() == 2 }, time.Second, 5*time.Millisecond)
	reqs := clientPub.Messages()
	replies := f.pub.Messages()
	require.Len(t, replies, 2)
	for i := range replies {
		assert.Equal(t, reqs[i].Msg.CorrelationId, replies[i].Msg.CorrelationId)
		assert.Equal(t, sharedMessaging.UserDetailsResponseQueue, replies[i].RoutingKey)
	}
}
