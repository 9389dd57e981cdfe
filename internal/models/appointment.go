package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

type SessionType string

const (
	SessionTypeVideo    SessionType = "video"
	SessionTypeAudio    SessionType = "audio"
	SessionTypeChat     SessionType = "chat"
	SessionTypeInPerson SessionType = "in_person"
)

// Appointment carries only the fields the session coordinator needs.
type Appointment struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PatientID   string             `bson:"patient_id" json:"patient_id"`
	TherapistID string             `bson:"therapist_id" json:"therapist_id"`
	Status      AppointmentStatus  `bson:"status" json:"status"`
	SessionType SessionType        `bson:"session_type" json:"session_type"`
	ScheduledAt time.Time          `bson:"scheduled_at" json:"scheduled_at"`
	CompletedAt *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

func (a *Appointment) IsParty(userID string) bool {
	return userID != "" && (userID == a.PatientID || userID == a.TherapistID)
}
