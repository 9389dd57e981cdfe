package services

import (
	"context"
	"time"

	"telehealth/internal/models"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("telehealth/services")

// UserStore is the read side of the external identity store.
type UserStore interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
}

// AppointmentStore is the narrow view of the external appointment store.
type AppointmentStore interface {
	FindAppointment(ctx context.Context, id string) (*models.Appointment, error)
	MarkCompleted(ctx context.Context, id string, at time.Time) error
	HasLinkedAppointment(ctx context.Context, patientID, therapistID string) (bool, error)
}

// VideoSessionStore persists sessions. Each Save method writes only the
// fields its transition touches.
type VideoSessionStore interface {
	Create(ctx context.Context, s *models.VideoSession) error
	FindByRoomID(ctx context.Context, roomID string) (*models.VideoSession, error)
	FindByAppointmentID(ctx context.Context, appointmentID string) (*models.VideoSession, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]models.VideoSession, error)
	SaveStatus(ctx context.Context, s *models.VideoSession) error
	SaveParticipants(ctx context.Context, s *models.VideoSession) error
	SaveNotes(ctx context.Context, s *models.VideoSession) error
	SaveRecording(ctx context.Context, s *models.VideoSession) error
}

type MessageStore interface {
	Create(ctx context.Context, m *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	FindConversation(ctx context.Context, conversationID string, skip, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string, upto, now time.Time) (int64, error)
	UpdateBody(ctx context.Context, id, body string, editedAt time.Time) error
	MarkDeleted(ctx context.Context, id string) error
	ListConversations(ctx context.Context, userID string, limit int) ([]models.ConversationSummary, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// Notifier relays events to live connections. Delivery is best-effort and
// never blocks; durable marks events whose payload is also persisted.
type Notifier interface {
	NotifyUser(userID string, event models.EventType, data interface{}, durable bool) int
	NotifyRoom(roomID string, event models.EventType, data interface{})
}

// CompletionJob is an appointment completion that failed after its session
// ended and must be retried out of band.
type CompletionJob struct {
	AppointmentID string    `json:"appointment_id"`
	RoomID        string    `json:"room_id"`
	EndedAt       time.Time `json:"ended_at"`
	Attempt       int       `json:"attempt"`
	LastError     string    `json:"last_error,omitempty"`
}

type CompletionRetryQueue interface {
	Enqueue(ctx context.Context, job CompletionJob) error
}

type nopNotifier struct{}

func (nopNotifier) NotifyUser(string, models.EventType, interface{}, bool) int { return 0 }
func (nopNotifier) NotifyRoom(string, models.EventType, interface{})         {}
