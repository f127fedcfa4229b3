package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sharedMessaging "chat-server/shared/messaging"
	"chat-server/shared/metrics"
	"chat-server/shared/models"
	"chat-server/user-service/internal/repository"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RPCServerConfig - очереди протокола и таймаут поиска.
type RPCServerConfig struct {
	RequestQueue  string
	ResponseQueue string
	LookupTimeout time.Duration
}

// RPCServer отвечает на USER_DETAILS_REQUEST профилем пользователя без секретных полей.
// Каждый запрос получает ответ с тем же correlation id: профиль или структурированную ошибку.
// Доставка подтверждается после попытки ответа при любом исходе.
type RPCServer struct {
	lookup    repository.UserLookup
	publisher sharedMessaging.Publisher
	metrics   *metrics.Metrics
	cfg       RPCServerConfig
	logger    *zap.Logger
}

var _ sharedMessaging.DeliveryHandler = (*RPCServer)(nil)

func NewRPCServer(lookup repository.UserLookup, publisher sharedMessaging.Publisher, m *metrics.Metrics, cfg RPCServerConfig, logger *zap.Logger) *RPCServer {
	if cfg.RequestQueue == "" {
		cfg.RequestQueue = sharedMessaging.UserDetailsRequestQueue
	}
	if cfg.ResponseQueue == "" {
		cfg.ResponseQueue = sharedMessaging.UserDetailsResponseQueue
	}
	return &RPCServer{
		lookup:    lookup,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.Named("RPCServer"),
	}
}

func (s *RPCServer) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	log := s.logger.With(zap.String("correlation_id", d.CorrelationId), zap.Uint64("delivery_tag", d.DeliveryTag))

	err := sharedMessaging.AckAfter(d, log, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", sharedMessaging.ErrHandlerPanic, r)
				log.Error("Паника при обработке запроса профиля", zap.Any("panic", r))
				s.metrics.UserDetailsRequest(metrics.StatusFailed)
				// Ответ до Ack: вызывающий не должен ждать до таймаута
				_ = s.replyError(ctx, d, sharedMessaging.ErrorCodeInternal, "internal error", log)
			}
		}()
		return s.handle(ctx, d, log)
	})
	s.metrics.MessageProcessed(s.cfg.RequestQueue, metrics.StatusOf(err))
}

func (s *RPCServer) handle(ctx context.Context, d amqp.Delivery, log *zap.Logger) error {
	req, err := sharedMessaging.Decode[sharedMessaging.UserDetailsRequest](d.Body)
	if err != nil {
		log.Warn("Некорректный запрос профиля", zap.Error(err))
		s.metrics.UserDetailsRequest(metrics.StatusFailed)
		return errors.Join(err, s.replyError(ctx, d, sharedMessaging.ErrorCodeBadRequest, "invalid request payload", log))
	}
	log = log.With(zap.String("user_id", req.UserID))

	user, err := s.findUser(ctx, req.UserID)
	if err != nil {
		s.metrics.UserDetailsRequest(metrics.StatusFailed)
		code, message := sharedMessaging.ErrorCodeInternal, "user lookup failed"
		if errors.Is(err, models.ErrUserNotFound) {
			code, message = sharedMessaging.ErrorCodeNotFound, "user not found"
			log.Info("Пользователь не найден")
		} else {
			log.Error("Ошибка поиска пользователя", zap.Error(err))
		}
		return errors.Join(err, s.replyError(ctx, d, code, message, log))
	}
	s.metrics.UserDetailsRequest(metrics.StatusSuccess)

	profile := user.Profile()
	err = s.reply(ctx, d, sharedMessaging.UserDetailsResponse{UserProfile: &profile})
	s.metrics.UserDetailsResponse(metrics.StatusOf(err))
	if err != nil {
		log.Error("Не удалось отправить профиль", zap.Error(err))
		return err
	}
	log.Debug("Профиль отправлен")
	return nil
}

func (s *RPCServer) findUser(ctx context.Context, userID string) (*models.User, error) {
	if s.cfg.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LookupTimeout)
		defer cancel()
	}
	return s.lookup.FindByID(ctx, userID)
}

// replyError публикует ответ-ошибку. user_details_responses_total считает его как failed.
func (s *RPCServer) replyError(ctx context.Context, d amqp.Delivery, code sharedMessaging.ErrorCode, message string, log *zap.Logger) error {
	err := s.reply(ctx, d, sharedMessaging.UserDetailsResponse{
		Error: &sharedMessaging.ResponseError{Code: code, Message: message},
	})
	s.metrics.UserDetailsResponse(metrics.StatusFailed)
	if err != nil {
		log.Error("Не удалось отправить ответ с ошибкой", zap.Error(err), zap.String("code", string(code)))
	}
	return err
}

// reply публикует в ReplyTo запроса, а без него - в очередь ответов по умолчанию.
func (s *RPCServer) reply(ctx context.Context, d amqp.Delivery, resp sharedMessaging.UserDetailsResponse) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal user details response: %w", err)
	}
	replyTo := d.ReplyTo
	if replyTo == "" {
		replyTo = s.cfg.ResponseQueue
	}
	return s.publisher.Publish(ctx, replyTo, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: d.CorrelationId,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		Body:          body,
	})
}
