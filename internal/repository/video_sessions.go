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

type VideoSessionRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewVideoSessionRepository(db *mongo.Database, timeout time.Duration) *VideoSessionRepository {
	return &VideoSessionRepository{
		collection: db.Collection(database.VideoSessionsCollection),
		timeout:    timeout,
	}
}

// Create inserts s. The unique appointment_id index turns a concurrent second
// insert into ErrDuplicate.
func (r *VideoSessionRepository) Create(ctx context.Context, s *models.VideoSession) error {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, s)
	return translate(err, "video session")
}

func (r *VideoSessionRepository) FindByRoomID(ctx context.Context, roomID string) (*models.VideoSession, error) {
	return r.findOne(ctx, bson.M{"room_id": roomID})
}

func (r *VideoSessionRepository) FindByAppointmentID(ctx context.Context, appointmentID string) (*models.VideoSession, error) {
	return r.findOne(ctx, bson.M{"appointment_id": appointmentID})
}

func (r *VideoSessionRepository) findOne(ctx context.Context, filter bson.M) (*models.VideoSession, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	var s models.VideoSession
	if err := r.collection.FindOne(ctx, filter).Decode(&s); err != nil {
		return nil, translate(err, "video session")
	}
	return &s, nil
}

// ListForUser returns the user's sessions, newest first.
func (r *VideoSessionRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.VideoSession, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"$or": []bson.M{
		{"patient_id": userID},
		{"therapist_id": userID},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err, "video sessions")
	}
	defer cursor.Close(ctx)

	sessions := []models.VideoSession{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, translate(err, "video sessions")
	}
	return sessions, nil
}

func (r *VideoSessionRepository) SaveStatus(ctx context.Context, s *models.VideoSession) error {
	return r.update(ctx, s, bson.M{
		"status":     s.Status,
		"start_time": s.StartTime,
		"end_time":   s.EndTime,
		"duration":   s.Duration,
		"updated_at": s.UpdatedAt,
	})
}

func (r *VideoSessionRepository) SaveParticipants(ctx context.Context, s *models.VideoSession) error {
	return r.update(ctx, s, bson.M{
		"participants": s.Participants,
		"updated_at":   s.UpdatedAt,
	})
}

func (r *VideoSessionRepository) SaveNotes(ctx context.Context, s *models.VideoSession) error {
	return r.update(ctx, s, bson.M{
		"session_notes": s.SessionNotes,
		"updated_at":    s.UpdatedAt,
	})
}

func (r *VideoSessionRepository) SaveRecording(ctx context.Context, s *models.VideoSession) error {
	return r.update(ctx, s, bson.M{
		"recording":  s.Recording,
		"updated_at": s.UpdatedAt,
	})
}

// update writes set only if the stored version is still the one s was read
// at, and bumps it. Documents written before versioning count as version 0.
func (r *VideoSessionRepository) update(ctx context.Context, s *models.VideoSession, set bson.M) error {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"room_id": s.RoomID, "version": s.Version}
	if s.Version == 0 {
		filter["version"] = bson.M{"$in": bson.A{int64(0), nil}}
	}
	set["version"] = s.Version + 1

	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return translate(err, "video session")
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: video session %s changed since it was read", models.ErrConcurrentUpdate, s.RoomID)
	}
	s.Version++
	return nil
}

// CountByStatus feeds the admin realtime stats.
func (r *VideoSessionRepository) CountByStatus(ctx context.Context) (map[models.SessionStatus]int64, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translate(err, "video sessions")
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.SessionStatus `bson:"_id"`
		Count  int64                `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, translate(err, "video sessions")
	}

	counts := make(map[models.SessionStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
