package repository

import (
	"context"
	"fmt"
	"time"

	"telehealth/internal/models"
	"telehealth/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewMessageRepository(db *mongo.Database, timeout time.Duration) *MessageRepository {
	return &MessageRepository{
		collection: db.Collection(database.MessagesCollection),
		timeout:    timeout,
	}
}

func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, m)
	return translate(err, "message")
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	oid, err := objectID(id, "message")
	if err != nil {
		return nil, err
	}
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	var m models.Message
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&m); err != nil {
		return nil, translate(err, "message")
	}
	return &m, nil
}

// FindConversation pages through a conversation, newest first.
func (r *MessageRepository) FindConversation(ctx context.Context, conversationID string, skip, limit int) ([]models.Message, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, translate(err, "messages")
	}
	defer cursor.Close(ctx)

	msgs := []models.Message{}
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, translate(err, "messages")
	}
	return msgs, nil
}

// MarkRead flips unread messages addressed to readerID up to upto. Messages
// already read keep their original readAt.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, readerID string, upto, now time.Time) (int64, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	res, err := r.collection.UpdateMany(ctx,
		bson.M{
			"conversation_id": conversationID,
			"receiver_id":     readerID,
			"is_read":         false,
			"created_at":      bson.M{"$lte": upto},
		},
		bson.M{"$set": bson.M{"is_read": true, "read_at": now}},
	)
	if err != nil {
		return 0, translate(err, "messages")
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepository) UpdateBody(ctx context.Context, id, body string, editedAt time.Time) error {
	return r.updateByID(ctx, id, bson.M{"body": body, "edited_at": editedAt})
}

func (r *MessageRepository) MarkDeleted(ctx context.Context, id string) error {
	return r.updateByID(ctx, id, bson.M{"is_deleted": true})
}

func (r *MessageRepository) updateByID(ctx context.Context, id string, set bson.M) error {
	oid, err := objectID(id, "message")
	if err != nil {
		return err
	}
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return translate(err, "message")
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: message", models.ErrNotFound)
	}
	return nil
}

// ListConversations groups the user's messages by conversation with the
// latest message and the user's unread count, most recent first.
func (r *MessageRepository) ListConversations(ctx context.Context, userID string, limit int) ([]models.ConversationSummary, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	unread := bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$receiver_id", userID}}},
			bson.D{{Key: "$eq", Value: bson.A{"$is_read", false}}},
		}}},
		1,
		0,
	}}}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": []bson.M{
			{"sender_id": userID},
			{"receiver_id": userID},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$conversation_id"},
			{Key: "last_message", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
			{Key: "unread_count", Value: bson.D{{Key: "$sum", Value: unread}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "last_message.created_at", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translate(err, "conversations")
	}
	defer cursor.Close(ctx)

	convs := []models.ConversationSummary{}
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, translate(err, "conversations")
	}
	return convs, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	n, err := r.collection.CountDocuments(ctx, bson.M{
		"receiver_id": userID,
		"is_read":     false,
		"is_deleted":  false,
	})
	if err != nil {
		return 0, translate(err, "messages")
	}
	return n, nil
}

// CountSince feeds the admin realtime stats.
func (r *MessageRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	n, err := r.collection.CountDocuments(ctx, bson.M{"created_at": bson.M{"$gte": since}})
	if err != nil {
		return 0, translate(err, "messages")
	}
	return n, nil
}
