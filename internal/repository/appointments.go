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

// AppointmentRepository is the narrow read/complete view of appointments.
type AppointmentRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewAppointmentRepository(db *mongo.Database, timeout time.Duration) *AppointmentRepository {
	return &AppointmentRepository{
		collection: db.Collection(database.AppointmentsCollection),
		timeout:    timeout,
	}
}

func (r *AppointmentRepository) FindAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	oid, err := objectID(id, "appointment")
	if err != nil {
		return nil, err
	}
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	var appt models.Appointment
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&appt); err != nil {
		return nil, translate(err, "appointment")
	}
	return &appt, nil
}

// MarkCompleted sets the appointment to completed. Completing an already
// completed appointment keeps the first completion time.
func (r *AppointmentRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	oid, err := objectID(id, "appointment")
	if err != nil {
		return err
	}
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": oid, "status": bson.M{"$ne": models.AppointmentCompleted}},
		bson.M{"$set": bson.M{
			"status":       models.AppointmentCompleted,
			"completed_at": at,
			"updated_at":   time.Now(),
		}},
	)
	if err != nil {
		return translate(err, "appointment")
	}
	if res.MatchedCount == 0 {
		n, err := r.collection.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
		if err != nil {
			return translate(err, "appointment")
		}
		if n == 0 {
			return fmt.Errorf("%w: appointment", models.ErrNotFound)
		}
	}
	return nil
}

func (r *AppointmentRepository) HasLinkedAppointment(ctx context.Context, patientID, therapistID string) (bool, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	n, err := r.collection.CountDocuments(ctx, bson.M{
		"patient_id":   patientID,
		"therapist_id": therapistID,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, translate(err, "appointment")
	}
	return n > 0, nil
}
