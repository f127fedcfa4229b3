package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-server/shared/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var _ UserLookup = (*MongoUserRepository)(nil)

// userDocument - документ коллекции users. Пароль из базы не выбирается.
type userDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type MongoUserRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

func NewMongoUserRepository(coll *mongo.Collection, logger *zap.Logger) *MongoUserRepository {
	return &MongoUserRepository{
		coll:   coll,
		logger: logger.Named("MongoUserRepo"),
	}
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		r.logger.Debug("Malformed user ID", zap.String("id", id))
		return nil, models.ErrUserNotFound
	}

	opts := options.FindOne().SetProjection(bson.M{"password": 0})
	var doc userDocument
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("User not found by ID", zap.String("id", id))
			return nil, models.ErrUserNotFound
		}
		r.logger.Error("Failed to get user by id from mongo", zap.Error(err), zap.String("id", id))
		return nil, fmt.Errorf("failed to get user by id from mongo: %w", err)
	}

	return &models.User{
		ID:        doc.ID.Hex(),
		Name:      doc.Name,
		Email:     doc.Email,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}
