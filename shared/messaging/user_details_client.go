package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-server/shared/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	ErrRequestTimeout = errors.New("user details request timed out")
	ErrRemote         = errors.New("user details request failed on remote side")
)

// UserDetailsClientConfig - очереди и таймаут клиентской стороны протокола USER_DETAILS.
type UserDetailsClientConfig struct {
	RequestQueue  string
	ResponseQueue string
	Timeout       time.Duration
}

// UserDetailsClient запрашивает профили у user-service через пару очередей.
// Ответы сопоставляются с запросами только по correlation id; ответы без ожидающего запроса
// (опоздавшие после таймаута или адресованные другому инстансу) подтверждаются и отбрасываются.
// Для получения ответов клиент регистрируется как DeliveryHandler консьюмера ResponseQueue.
type UserDetailsClient struct {
	publisher Publisher
	cfg       UserDetailsClientConfig
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[string]chan UserDetailsResponse
}

func NewUserDetailsClient(publisher Publisher, cfg UserDetailsClientConfig, logger *zap.Logger) *UserDetailsClient {
	if cfg.RequestQueue == "" {
		cfg.RequestQueue = UserDetailsRequestQueue
	}
	if cfg.ResponseQueue == "" {
		cfg.ResponseQueue = UserDetailsResponseQueue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &UserDetailsClient{
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("UserDetailsClient"),
		pending:   make(map[string]chan UserDetailsResponse),
	}
}

// GetUserDetails публикует запрос со свежим correlation id и ждет ответ не дольше Timeout.
func (c *UserDetailsClient) GetUserDetails(ctx context.Context, userID string) (*models.UserProfile, error) {
	correlationID := uuid.NewString()
	log := c.logger.With(zap.String("correlation_id", correlationID), zap.String("user_id", userID))

	body, err := json.Marshal(UserDetailsRequest{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user details request: %w", err)
	}

	replyCh := make(chan UserDetailsResponse, 1)
	c.mu.Lock()
	c.pending[correlationID] = replyCh
	c.mu.Unlock()
	defer c.forget(correlationID)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	err = c.publisher.Publish(ctx, c.cfg.RequestQueue, amqp.Publishing{
		ContentType:   contentTypeJSON,
		CorrelationId: correlationID,
		ReplyTo:       c.cfg.ResponseQueue,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		log.Error("Failed to publish user details request", zap.Error(err))
		return nil, fmt.Errorf("failed to publish user details request: %w", err)
	}
	log.Debug("User details request published")

	select {
	case resp := <-replyCh:
		return resp.result()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn("User details request timed out", zap.Duration("timeout", c.cfg.Timeout))
			return nil, ErrRequestTimeout
		}
		return nil, ctx.Err()
	}
}

// HandleDelivery принимает ответы из ResponseQueue.
func (c *UserDetailsClient) HandleDelivery(_ context.Context, d amqp.Delivery) {
	_ = AckAfter(d, c.logger, func() error {
		log := c.logger.With(zap.String("correlation_id", d.CorrelationId))

		c.mu.Lock()
		replyCh, ok := c.pending[d.CorrelationId]
		delete(c.pending, d.CorrelationId)
		c.mu.Unlock()

		if !ok {
			log.Debug("Discarding unmatched user details response")
			return nil
		}

		var resp UserDetailsResponse
		if err := json.Unmarshal(d.Body, &resp); err != nil {
			log.Error("Failed to decode user details response", zap.Error(err))
			resp = UserDetailsResponse{Error: &ResponseError{Code: ErrorCodeInternal, Message: "malformed response"}}
		}
		replyCh <- resp
		return nil
	})
}

// Pending возвращает число запросов, ожидающих ответа.
func (c *UserDetailsClient) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *UserDetailsClient) forget(correlationID string) {
	c.mu.Lock()
	delete(c.pending, correlationID)
	c.mu.Unlock()
}

func (r UserDetailsResponse) result() (*models.UserProfile, error) {
	if r.Error != nil {
		if r.Error.Code == ErrorCodeNotFound {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrRemote, r.Error.Code, r.Error.Message)
	}
	if r.UserProfile == nil {
		return nil, fmt.Errorf("%w: empty response", ErrRemote)
	}
	return r.UserProfile, nil
}
