package messaging

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrHandlerPanic оборачивает панику, пойманную внутри обработчика доставки.
var ErrHandlerPanic = errors.New("delivery handler panicked")

// AckAfter выполняет fn и подтверждает доставку ровно один раз, в том числе если fn паникует.
// Ack всегда идет после fn, поэтому ответ или попытка доставки предшествуют подтверждению.
// Возвращает ошибку fn, пойманную панику или ошибку Ack.
func AckAfter(d amqp.Delivery, logger *zap.Logger, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			logger.Error("Паника в обработчике сообщения",
				zap.Any("panic", r),
				zap.Uint64("delivery_tag", d.DeliveryTag))
		}
		if ackErr := d.Ack(false); ackErr != nil {
			logger.Error("Ошибка Ack сообщения", zap.Error(ackErr), zap.Uint64("delivery_tag", d.DeliveryTag))
			if err == nil {
				err = fmt.Errorf("ack delivery %d: %w", d.DeliveryTag, ackErr)
			}
		}
	}()
	return fn()
}
