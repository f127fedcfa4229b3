// Package presence отвечает на вопрос "подключен ли пользователь сейчас".
//
// Движок уведомлений только читает присутствие (Reader). Пишет трекер real-time
// соединений: напрямую в Redis или через очередь user_presence (Writer).
// Чтение - снимок на момент вызова, без повторов и ожидания.
package presence

import "context"

// Reader - доступ на чтение к хранилищу присутствия.
type Reader interface {
	// IsOnline никогда не возвращает ошибку: недоступное хранилище означает "не в сети".
	IsOnline(ctx context.Context, userID string) bool
}

// Writer изменяет присутствие.
type Writer interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

// Store - хранилище целиком.
type Store interface {
	Reader
	Writer
}
