// Package repository - хранилища пользователей, по которым user-service отвечает на запросы профилей.
package repository

import (
	"context"

	"chat-server/shared/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// UserLookup ищет пользователя по идентификатору.
// Отсутствующий или некорректный идентификатор дает models.ErrUserNotFound.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// DBTX - общее подмножество pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
