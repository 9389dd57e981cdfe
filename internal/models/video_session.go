package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionStatus string

const (
	SessionWaiting   SessionStatus = "waiting"
	SessionActive    SessionStatus = "active"
	SessionEnded     SessionStatus = "ended"
	SessionCancelled SessionStatus = "cancelled"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionWaiting, SessionActive, SessionEnded, SessionCancelled:
		return true
	}
	return false
}

func (s SessionStatus) IsTerminal() bool {
	return s == SessionEnded || s == SessionCancelled
}

type ConnectionQuality string

const (
	QualityExcellent ConnectionQuality = "excellent"
	QualityGood      ConnectionQuality = "good"
	QualityFair      ConnectionQuality = "fair"
	QualityPoor      ConnectionQuality = "poor"
)

func (q ConnectionQuality) Valid() bool {
	switch q {
	case QualityExcellent, QualityGood, QualityFair, QualityPoor:
		return true
	}
	return false
}

type Participant struct {
	UserID            string            `bson:"user_id" json:"user_id"`
	JoinedAt          time.Time         `bson:"joined_at" json:"joined_at"`
	LeftAt            *time.Time        `bson:"left_at,omitempty" json:"left_at,omitempty"`
	ConnectionQuality ConnectionQuality `bson:"connection_quality" json:"connection_quality"`
}

type SessionNotes struct {
	TherapistNotes  string   `bson:"therapist_notes" json:"therapist_notes"`
	PatientFeedback string   `bson:"patient_feedback" json:"patient_feedback"`
	TechnicalIssues []string `bson:"technical_issues" json:"technical_issues"`
}

type RecordingConsent struct {
	Patient   bool `bson:"patient" json:"patient"`
	Therapist bool `bson:"therapist" json:"therapist"`
}

type Recording struct {
	Enabled bool             `bson:"enabled" json:"enabled"`
	URL     string           `bson:"url,omitempty" json:"url,omitempty"`
	Consent RecordingConsent `bson:"consent" json:"consent"`
}

type VideoSession struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PatientID     string             `bson:"patient_id" json:"patient_id"`
	TherapistID   string             `bson:"therapist_id" json:"therapist_id"`
	AppointmentID string             `bson:"appointment_id" json:"appointment_id"`
	RoomID        string             `bson:"room_id" json:"room_id"`
	Status        SessionStatus      `bson:"status" json:"status"`
	StartTime     *time.Time         `bson:"start_time,omitempty" json:"start_time,omitempty"`
	EndTime       *time.Time         `bson:"end_time,omitempty" json:"end_time,omitempty"`
	Duration      *int64             `bson:"duration,omitempty" json:"duration,omitempty"` // seconds
	Participants  []Participant      `bson:"participants" json:"participants"`
	SessionNotes  SessionNotes       `bson:"session_notes" json:"session_notes"`
	Recording     Recording          `bson:"recording" json:"recording"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
	// Version increments on every write; stores only accept a write made
	// against the version that was read.
	Version       int64              `bson:"version" json:"-"`
}

// SessionSummary is what session events return to the initiating connection.
type SessionSummary struct {
	SessionID        string        `json:"session_id"`
	RoomID           string        `json:"room_id"`
	AppointmentID    string        `json:"appointment_id"`
	Status           SessionStatus `json:"status"`
	ParticipantCount int           `json:"participant_count"`
	Duration         *int64        `json:"duration,omitempty"`
}

// NewRoomID returns a fresh, globally unique room identifier.
func NewRoomID() string {
	return "room_" + uuid.NewString()
}

// NewVideoSession derives the session for appt. The room id is assigned here
// and never changes afterwards.
func NewVideoSession(appt *Appointment, now time.Time) *VideoSession {
	return &VideoSession{
		ID:            primitive.NewObjectID(),
		PatientID:     appt.PatientID,
		TherapistID:   appt.TherapistID,
		AppointmentID: appt.ID.Hex(),
		RoomID:        NewRoomID(),
		Status:        SessionWaiting,
		Participants:  []Participant{},
		SessionNotes:  SessionNotes{TechnicalIssues: []string{}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *VideoSession) IsParty(userID string) bool {
	return userID != "" && (userID == s.PatientID || userID == s.TherapistID)
}

// CanView allows the parties plus admins, who get read-only access.
func (s *VideoSession) CanView(id Identity) bool {
	return s.IsParty(id.UserID) || id.IsAdmin()
}

func (s *VideoSession) participant(userID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// Join adds userID as a participant or refreshes its existing entry.
func (s *VideoSession) Join(userID string, quality ConnectionQuality, now time.Time) {
	if !quality.Valid() {
		quality = QualityGood
	}
	if p := s.participant(userID); p != nil {
		p.JoinedAt = now
		p.LeftAt = nil
		p.ConnectionQuality = quality
	} else {
		s.Participants = append(s.Participants, Participant{
			UserID:            userID,
			JoinedAt:          now,
			ConnectionQuality: quality,
		})
	}
	s.UpdatedAt = now
}

// Leave stamps leftAt on userID's entry. It reports false when the user never
// joined or has already left.
func (s *VideoSession) Leave(userID string, now time.Time) bool {
	p := s.participant(userID)
	if p == nil || p.LeftAt != nil {
		return false
	}
	p.LeftAt = &now
	s.UpdatedAt = now
	return true
}

func (s *VideoSession) SetQuality(userID string, quality ConnectionQuality, now time.Time) error {
	if !quality.Valid() {
		return fmt.Errorf("%w: unknown connection quality %q", ErrValidationFailed, quality)
	}
	p := s.participant(userID)
	if p == nil {
		return fmt.Errorf("%w: user has not joined the session", ErrPreconditionFailed)
	}
	p.ConnectionQuality = quality
	s.UpdatedAt = now
	return nil
}

// ActiveParticipants counts entries that have not left.
func (s *VideoSession) ActiveParticipants() int {
	n := 0
	for _, p := range s.Participants {
		if p.LeftAt == nil {
			n++
		}
	}
	return n
}

// Transition applies the status state machine. The session is left untouched
// when an error is returned.
func (s *VideoSession) Transition(to SessionStatus, now time.Time) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown session status %q", ErrValidationFailed, to)
	}
	if s.Status.IsTerminal() {
		return fmt.Errorf("%w: session is already %s", ErrInvalidTransition, s.Status)
	}
	if to == SessionWaiting && s.Status != SessionWaiting {
		return fmt.Errorf("%w: cannot return to waiting from %s", ErrInvalidTransition, s.Status)
	}

	switch to {
	case SessionActive:
		if s.StartTime == nil {
			start := now
			s.StartTime = &start
		}
	case SessionEnded:
		end := now
		s.EndTime = &end
		if s.StartTime != nil {
			d := int64(end.Sub(*s.StartTime) / time.Second)
			if d < 0 {
				d = 0
			}
			s.Duration = &d
		}
	}

	s.Status = to
	s.UpdatedAt = now
	return nil
}

// SetConsent records role's recording consent; recording is enabled only
// while both parties consent.
func (s *VideoSession) SetConsent(userID string, consent bool, now time.Time) error {
	switch userID {
	case s.PatientID:
		s.Recording.Consent.Patient = consent
	case s.TherapistID:
		s.Recording.Consent.Therapist = consent
	default:
		return fmt.Errorf("%w: only session parties may give recording consent", ErrForbidden)
	}
	s.Recording.Enabled = s.Recording.Consent.Patient && s.Recording.Consent.Therapist
	s.UpdatedAt = now
	return nil
}

// WriteNotes routes text to the notes field owned by userID's role.
func (s *VideoSession) WriteNotes(userID, text string, now time.Time) error {
	switch userID {
	case s.TherapistID:
		s.SessionNotes.TherapistNotes = text
	case s.PatientID:
		s.SessionNotes.PatientFeedback = text
	default:
		return fmt.Errorf("%w: only session parties may write notes", ErrForbidden)
	}
	s.UpdatedAt = now
	return nil
}

func (s *VideoSession) Summary() SessionSummary {
	return SessionSummary{
		SessionID:        s.ID.Hex(),
		RoomID:           s.RoomID,
		AppointmentID:    s.AppointmentID,
		Status:           s.Status,
		ParticipantCount: s.ActiveParticipants(),
		Duration:         s.Duration,
	}
}
