package repository

import (
	"context"
	"errors"
	"fmt"

	"chat-server/shared/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var _ UserLookup = (*PgUserRepository)(nil)

// invalid_text_representation: id не является UUID
const pgCodeInvalidTextRepresentation = "22P02"

type PgUserRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewPgUserRepository(db DBTX, logger *zap.Logger) *PgUserRepository {
	return &PgUserRepository{
		db:     db,
		logger: logger.Named("PgUserRepo"),
	}
}

func (r *PgUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id::text, name, email, password_hash, created_at, updated_at FROM users WHERE id = $1`
	r.logger.Debug("Executing query", zap.String("query", query), zap.String("id", id))

	user := &models.User{}
	err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("User not found by ID", zap.String("id", id))
			return nil, models.ErrUserNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCodeInvalidTextRepresentation {
			r.logger.Debug("Malformed user ID", zap.String("id", id))
			return nil, models.ErrUserNotFound
		}
		r.logger.Error("Failed to get user by id from postgres", zap.Error(err), zap.String("id", id))
		return nil, fmt.Errorf("failed to get user by id from postgres: %w", err)
	}
	return user, nil
}

// Create добавляет пользователя и заполняет ID и временные метки. Используется для наполнения тестовых окружений.
func (r *PgUserRepository) Create(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (name, email, password_hash) VALUES ($1, $2, $3) RETURNING id::text, created_at, updated_at`
	err := r.db.QueryRow(ctx, query, user.Name, user.Email, user.PasswordHash).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("user with email %s already exists: %w", user.Email, err)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}
