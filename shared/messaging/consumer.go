package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DeliveryHandler обрабатывает одну доставку и сам отвечает за ее подтверждение.
type DeliveryHandler interface {
	HandleDelivery(ctx context.Context, d amqp.Delivery)
}

// ChannelSource выдает актуальный канал, дожидаясь (пере)подключения.
type ChannelSource interface {
	WaitConnected(ctx context.Context) (Channel, error)
}

// Consumer - цикл потребления одной очереди с фиксированным числом воркеров.
// Число воркеров совпадает с prefetch, поэтому в работе не больше prefetch сообщений.
// После потери канала консьюмер ждет переподключения и подписывается заново.
type Consumer struct {
	source      ChannelSource
	logger      *zap.Logger
	queueName   string
	tag         string
	concurrency int
	handler     DeliveryHandler
	retryDelay  time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewConsumer(source ChannelSource, logger *zap.Logger, queueName, tag string, concurrency int, handler DeliveryHandler) *Consumer {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		source:      source,
		logger:      logger.Named("consumer").With(zap.String("queue", queueName)),
		queueName:   queueName,
		tag:         tag,
		concurrency: concurrency,
		handler:     handler,
		retryDelay:  time.Second,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start блокируется до вызова Stop. Возвращает ошибку, только если подписаться невозможно
// при живом соединении.
func (c *Consumer) Start() error {
	for {
		ch, err := c.source.WaitConnected(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, ErrConnectionStopped) {
				c.logger.Info("Консьюмер остановлен")
				return nil
			}
			return fmt.Errorf("wait for rabbitmq channel: %w", err)
		}

		msgs, err := ch.Consume(
			c.queueName,
			c.tag,
			false, // auto-ack = false
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
		if err != nil {
			// Канал мог закрыться между WaitConnected и Consume
			c.logger.Error("Не удалось зарегистрировать консьюмера", zap.Error(err))
			select {
			case <-c.ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
				continue
			}
		}

		c.logger.Info("Консьюмер запущен, ожидание сообщений...", zap.Int("concurrency", c.concurrency))
		c.runWorkers(msgs)

		if c.ctx.Err() != nil {
			c.logger.Info("Консьюмер остановлен")
			return nil
		}
		c.logger.Warn("Канал доставок закрыт, ожидание переподключения")
	}
}

// Stop прекращает прием новых сообщений. Начатые обработчики доводятся до конца.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Инициирована остановка консьюмера...")
		c.cancel()
	})
}

func (c *Consumer) runWorkers(msgs <-chan amqp.Delivery) {
	// Обработчики не отменяются вместе с консьюмером
	handlerCtx := context.WithoutCancel(c.ctx)

	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			logger := c.logger.With(zap.Int("worker_id", workerID))
			for {
				select {
				case <-c.ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						return
					}
					logger.Debug("Получено сообщение", zap.Uint64("delivery_tag", d.DeliveryTag))
					c.handler.HandleDelivery(handlerCtx, d)
				}
			}
		}(i)
	}
	wg.Wait()
}
