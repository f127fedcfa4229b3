package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ Store = (*RedisStore)(nil)

const keyPrefix = "presence:"

// RedisStore хранит присутствие ключами presence:<userID>.
// При ttl > 0 ключ истекает сам, если трекер перестал его продлевать.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisPresenceStore"),
	}
}

// RedisOptions - параметры клиента для хранилища присутствия.
// Повторы команд отключены: чтение присутствия - снимок, ошибка означает "не в сети".
func RedisOptions(addr, password string, db int) *redis.Options {
	return &redis.Options{
		Addr:       addr,
		Password:   password,
		DB:         db,
		MaxRetries: -1,
	}
}

// Key возвращает ключ присутствия пользователя.
func Key(userID string) string {
	return keyPrefix + userID
}

func (s *RedisStore) IsOnline(ctx context.Context, userID string) bool {
	n, err := s.client.Exists(ctx, Key(userID)).Result()
	if err != nil {
		s.logger.Warn("Не удалось прочитать присутствие, считаем пользователя оффлайн",
			zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return n > 0
}

func (s *RedisStore) SetOnline(ctx context.Context, userID string) error {
	if err := s.client.Set(ctx, Key(userID), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set presence for user %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) SetOffline(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, Key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del presence for user %s: %w", userID, err)
	}
	return nil
}
