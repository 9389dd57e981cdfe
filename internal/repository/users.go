package repository

import (
	"context"
	"time"

	"telehealth/internal/models"
	"telehealth/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserRepository reads the users collection owned by the main API.
type UserRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewUserRepository(db *mongo.Database, timeout time.Duration) *UserRepository {
	return &UserRepository{
		collection: db.Collection(database.UsersCollection),
		timeout:    timeout,
	}
}

func (r *UserRepository) FindUser(ctx context.Context, id string) (*models.User, error) {
	oid, err := objectID(id, "user")
	if err != nil {
		return nil, err
	}
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	var user models.User
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&user); err != nil {
		return nil, translate(err, "user")
	}
	return &user, nil
}
