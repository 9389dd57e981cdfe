// ==============================================
// pkg/database/mongodb.go
// ==============================================
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"telehealth/internal/config"
	"telehealth/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names shared by the repositories.
const (
	UsersCollection         = "users"
	AppointmentsCollection  = "appointments"
	VideoSessionsCollection = "video_sessions"
	MessagesCollection      = "messages"
)

var (
	client   *mongo.Client
	database *mongo.Database
	once     sync.Once
)

// InitMongoDB initializes the MongoDB connection once and returns the database
func InitMongoDB(ctx context.Context, cfg config.MongoConfig) (*mongo.Database, error) {
	var err error

	once.Do(func() {
		err = connectToMongoDB(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	if database == nil {
		return nil, fmt.Errorf("mongodb not initialized")
	}
	return database, nil
}

func connectToMongoDB(parent context.Context, cfg config.MongoConfig) error {
	ctx, cancel := context.WithTimeout(parent, cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetHeartbeatInterval(cfg.HeartbeatInterval).
		SetRetryWrites(true).
		SetRetryReads(true)

	c, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = c.Ping(ctx, readpref.Primary()); err != nil {
		_ = c.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	client = c
	database = c.Database(cfg.Database)

	logger.WithField("database", cfg.Database).Info("Connected to MongoDB")

	// Session creation relies on the unique indexes; failing to build them is fatal.
	if err := createIndexes(parent, database); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// Disconnect closes MongoDB connection
func Disconnect(ctx context.Context) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}

// HealthCheck pings the primary and reports connection status
func HealthCheck(ctx context.Context) map[string]interface{} {
	if client == nil || database == nil {
		return map[string]interface{}{
			"status": "disconnected",
			"error":  "database not initialized",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	return map[string]interface{}{
		"status":   "connected",
		"database": database.Name(),
	}
}

func createIndexes(parent context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	indexes := []struct {
		collection string
		indexes    []mongo.IndexModel
	}{
		{
			collection: VideoSessionsCollection,
			indexes: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "room_id", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
				{
					// one session per appointment
					Keys:    bson.D{{Key: "appointment_id", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
				{
					Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: -1}},
				},
				{
					Keys: bson.D{{Key: "therapist_id", Value: 1}, {Key: "created_at", Value: -1}},
				},
			},
		},
		{
			collection: MessagesCollection,
			indexes: []mongo.IndexModel{
				{
					Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
				},
				{
					Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_read", Value: 1}},
				},
				{
					Keys: bson.D{{Key: "sender_id", Value: 1}},
				},
			},
		},
		{
			collection: AppointmentsCollection,
			indexes: []mongo.IndexModel{
				{
					Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "therapist_id", Value: 1}},
				},
			},
		},
	}

	for _, group := range indexes {
		if _, err := db.Collection(group.collection).Indexes().CreateMany(ctx, group.indexes); err != nil {
			return fmt.Errorf("%s: %w", group.collection, err)
		}
	}

	return nil
}
