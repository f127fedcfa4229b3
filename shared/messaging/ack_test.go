package messaging_test

import (
	"errors"
	"testing"

	"chat-server/shared/messaging"
	"chat-server/shared/messaging/messagingtest"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestAckAfter(t *testing.T) {
	logger := zap.NewNop()

	t.Run("Успех", func(t *testing.T) {
		ack := messagingtest.NewAcknowledger()
		err := messaging.AckAfter(messagingtest.Delivery(ack, 1, nil), logger, func() error { return nil })
		assert.NoError(t, err)
		assert.Equal(t, 1, ack.Acks(1))
	})

	t.Run("Ошибка обработчика не отменяет Ack", func(t *testing.T) {
		ack := messagingtest.NewAcknowledger()
		handlerErr := errors.New("boom")
		err := messaging.AckAfter(messagingtest.Delivery(ack, 2, nil), logger, func() error { return handlerErr })
		assert.ErrorIs(t, err, handlerErr)
		assert.Equal(t, 1, ack.Acks(2))
		assert.Zero(t, ack.Negative())
	})

	t.Run("Паника перехватывается", func(t *testing.T) {
		ack := messagingtest.NewAcknowledger()
		var err error
		assert.NotPanics(t, func() {
			err = messaging.AckAfter(messagingtest.Delivery(ack, 3, nil), logger, func() error { panic("nil map") })
		})
		assert.ErrorIs(t, err, messaging.ErrHandlerPanic)
		assert.Equal(t, 1, ack.Acks(3))
	})

	t.Run("Ошибка Ack возвращается", func(t *testing.T) {
		ack := messagingtest.NewAcknowledger()
		ack.AckErr = errors.New("channel closed")
		err := messaging.AckAfter(messagingtest.Delivery(ack, 4, nil), logger, func() error { return nil })
		assert.ErrorIs(t, err, ack.AckErr)
		assert.Equal(t, 1, ack.Acks(4))
	})
}
