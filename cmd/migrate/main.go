package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"telehealth/internal/config"
	"telehealth/internal/models"
	"telehealth/internal/repository"
	"telehealth/internal/services"
	"telehealth/pkg/database"
	"telehealth/pkg/logger"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fixture is a development account seeded by email.
type fixture struct {
	Name  string
	Email string
	Role  models.Role
}

var fixtures = []fixture{
	{Name: "Dev Patient", Email: "patient@telehealth.local", Role: models.RolePatient},
	{Name: "Dev Therapist", Email: "therapist@telehealth.local", Role: models.RoleTherapist},
	{Name: "Dev Admin", Email: "admin@telehealth.local", Role: models.RoleAdmin},
}

func main() {
	log.Println("Starting telehealth database migration...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found, using environment variables")
	}
	logger.Init()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Connecting also creates the collection indexes.
	db, err := database.InitMongoDB(ctx, cfg.Database.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer database.Disconnect(context.Background())

	if cfg.IsProduction() || os.Getenv("SEED_FIXTURES") == "false" {
		log.Println("Indexes ready, skipping development fixtures")
		return
	}

	ids, err := seedUsers(ctx, db)
	if err != nil {
		log.Fatalf("Failed to seed users: %v", err)
	}

	apptID, err := seedAppointment(ctx, db, ids[models.RolePatient], ids[models.RoleTherapist])
	if err != nil {
		log.Fatalf("Failed to seed appointment: %v", err)
	}

	auth := services.NewAuthService(repository.NewUserRepository(db, cfg.Database.MongoDB.OperationTimeout), cfg.Security.JWT)

	log.Println("Migration completed")
	log.Printf("Confirmed video appointment: %s", apptID)
	for _, f := range fixtures {
		token, err := auth.IssueToken(models.Identity{UserID: ids[f.Role], Role: f.Role})
		if err != nil {
			log.Fatalf("Failed to issue token for %s: %v", f.Email, err)
		}
		log.Printf("%-9s %s\n          token: %s", f.Role, ids[f.Role], token)
	}
}

func seedUsers(ctx context.Context, db *mongo.Database) (map[models.Role]string, error) {
	users := db.Collection(database.UsersCollection)
	ids := make(map[models.Role]string, len(fixtures))

	for _, f := range fixtures {
		filter := bson.M{"email": f.Email}
		update := bson.M{
			"$set": bson.M{"name": f.Name, "role": f.Role, "is_active": true},
			"$setOnInsert": bson.M{
				"email":      f.Email,
				"created_at": time.Now(),
			},
		}
		opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

		var user models.User
		if err := users.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Email, err)
		}
		ids[f.Role] = user.ID.Hex()
		log.Printf("  user ready: %s (%s)", f.Email, f.Role)
	}
	return ids, nil
}

// seedAppointment makes sure the pair has one confirmed video appointment
// that has no session yet.
func seedAppointment(ctx context.Context, db *mongo.Database, patientID, therapistID string) (string, error) {
	appointments := db.Collection(database.AppointmentsCollection)

	var existing models.Appointment
	err := appointments.FindOne(ctx, bson.M{
		"patient_id":   patientID,
		"therapist_id": therapistID,
		"status":       models.AppointmentConfirmed,
		"session_type": models.SessionTypeVideo,
	}).Decode(&existing)
	switch {
	case err == nil:
		return existing.ID.Hex(), nil
	case !errors.Is(err, mongo.ErrNoDocuments):
		return "", err
	}

	appt := models.Appointment{
		ID:          primitive.NewObjectID(),
		PatientID:   patientID,
		TherapistID: therapistID,
		Status:      models.AppointmentConfirmed,
		SessionType: models.SessionTypeVideo,
		ScheduledAt: time.Now().Add(15 * time.Minute).Truncate(time.Minute),
	}
	if _, err := appointments.InsertOne(ctx, appt); err != nil {
		return "", err
	}
	return appt.ID.Hex(), nil
}
