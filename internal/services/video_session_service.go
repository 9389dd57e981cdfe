package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"telehealth/internal/models"
	"telehealth/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxNotesLength = 5000
	maxIssueLength = 500

	maxWriteAttempts = 4
)

// VideoSessionService coordinates the call lifecycle for video appointments.
type VideoSessionService struct {
	sessions     VideoSessionStore
	appointments AppointmentStore
	notifier     Notifier
	retries      CompletionRetryQueue
	now          func() time.Time
}

func NewVideoSessionService(sessions VideoSessionStore, appointments AppointmentStore, notifier Notifier, retries CompletionRetryQueue) *VideoSessionService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &VideoSessionService{
		sessions:     sessions,
		appointments: appointments,
		notifier:     notifier,
		retries:      retries,
		now:          time.Now,
	}
}

// StatusResult is returned by SetStatus. AppointmentSynced is false when the
// session ended but the appointment could not be marked completed yet.
type StatusResult struct {
	models.SessionSummary
	AppointmentSynced bool `json:"appointment_synced"`
}

// NotesUpdate optionally accompanies a status change.
type NotesUpdate struct {
	Text string `json:"text"`
}

// Create returns the session for appointmentID, creating it on first use.
// The appointment must be a confirmed video appointment and the caller one
// of its parties.
func (s *VideoSessionService) Create(ctx context.Context, caller models.Identity, appointmentID string) (*models.VideoSession, error) {
	ctx, span := tracer.Start(ctx, "VideoSessionService.Create", trace.WithAttributes(
		attribute.String("appointment_id", appointmentID),
		attribute.String("user_id", caller.UserID),
	))
	defer span.End()

	appt, err := s.appointments.FindAppointment(ctx, appointmentID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !appt.IsParty(caller.UserID) {
		return nil, fmt.Errorf("%w: not a party to this appointment", models.ErrForbidden)
	}

	existing, err := s.sessions.FindByAppointmentID(ctx, appointmentID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, models.ErrNotFound):
		span.RecordError(err)
		return nil, err
	}

	if appt.Status != models.AppointmentConfirmed {
		return nil, fmt.Errorf("%w: appointment is %s, not confirmed", models.ErrPreconditionFailed, appt.Status)
	}
	if appt.SessionType != models.SessionTypeVideo {
		return nil, fmt.Errorf("%w: appointment is not a video session", models.ErrPreconditionFailed)
	}

	session := models.NewVideoSession(appt, s.now())
	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			// lost a creation race; the winner's session is the one
			return s.sessions.FindByAppointmentID(ctx, appointmentID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	logger.LogSessionEvent("session_created", session.RoomID, caller.UserID, map[string]interface{}{
		"appointment_id": appointmentID,
	})
	return session, nil
}

// CreateOrJoin creates the session if needed and joins the caller to it.
func (s *VideoSessionService) CreateOrJoin(ctx context.Context, caller models.Identity, appointmentID string) (*models.VideoSession, error) {
	session, err := s.Create(ctx, caller, appointmentID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return session, nil
	}
	return s.Join(ctx, session.RoomID, caller, models.QualityGood)
}

// Join adds or refreshes the caller's participant entry. It does not change
// the session status.
func (s *VideoSessionService) Join(ctx context.Context, roomID string, caller models.Identity, quality models.ConnectionQuality) (*models.VideoSession, error) {
	session, err := s.apply(ctx, roomID, caller, func(v *models.VideoSession) (bool, error) {
		if v.Status.IsTerminal() {
			return false, fmt.Errorf("%w: session is %s", models.ErrInvalidTransition, v.Status)
		}
		v.Join(caller.UserID, quality, s.now())
		return true, nil
	}, s.sessions.SaveParticipants)
	if err != nil {
		return nil, err
	}

	logger.LogSessionEvent("participant_joined", session.RoomID, caller.UserID, map[string]interface{}{
		"participant_count": session.ActiveParticipants(),
	})
	s.broadcast(session)
	return session, nil
}

// Leave stamps leftAt for the caller. Leaving twice, or leaving a session
// never joined, changes nothing.
func (s *VideoSessionService) Leave(ctx context.Context, roomID string, caller models.Identity) (*models.VideoSession, error) {
	left := false
	session, err := s.apply(ctx, roomID, caller, func(v *models.VideoSession) (bool, error) {
		left = v.Leave(caller.UserID, s.now())
		return left, nil
	}, s.sessions.SaveParticipants)
	if err != nil || !left {
		return session, err
	}

	logger.LogSessionEvent("participant_left", session.RoomID, caller.UserID, nil)
	s.broadcast(session)
	return session, nil
}

// SetStatus drives the state machine. The session write commits before the
// appointment side effect, and a failed completion never reverts it.
func (s *VideoSessionService) SetStatus(ctx context.Context, roomID string, caller models.Identity, status models.SessionStatus, notes *NotesUpdate) (*StatusResult, error) {
	ctx, span := tracer.Start(ctx, "VideoSessionService.SetStatus", trace.WithAttributes(
		attribute.String("room_id", roomID),
		attribute.String("user_id", caller.UserID),
		attribute.String("status", string(status)),
	))
	defer span.End()

	var (
		previous models.SessionStatus
		now      time.Time
	)
	session, err := s.apply(ctx, roomID, caller, func(v *models.VideoSession) (bool, error) {
		previous = v.Status
		now = s.now()
		return true, v.Transition(status, now)
	}, s.sessions.SaveStatus)
	if err != nil {
		span.RecordError(err)
		if models.IsRetryable(err) || errors.Is(err, models.ErrConcurrentUpdate) {
			span.SetStatus(codes.Error, "status write failed")
		}
		return nil, err
	}

	logger.LogSessionEvent("status_changed", roomID, caller.UserID, map[string]interface{}{
		"from":     previous,
		"to":       status,
		"duration": session.Duration,
	})

	if notes != nil && strings.TrimSpace(notes.Text) != "" {
		if _, err := s.UpdateNotes(ctx, roomID, caller, notes.Text); err != nil {
			// the transition is committed; a notes failure is reported, not rolled back
			logger.LogError(err, "Failed to save notes with status change", map[string]interface{}{
				"room_id": roomID,
				"user_id": caller.UserID,
			})
		}
	}

	result := &StatusResult{SessionSummary: session.Summary(), AppointmentSynced: true}
	if status == models.SessionEnded {
		result.AppointmentSynced = s.completeAppointment(ctx, session, now)
		if !result.AppointmentSynced {
			span.SetAttributes(attribute.Bool("appointment_synced", false))
		}
	}

	s.broadcast(session)
	return result, nil
}

func (s *VideoSessionService) completeAppointment(ctx context.Context, session *models.VideoSession, endedAt time.Time) bool {
	err := s.appointments.MarkCompleted(ctx, session.AppointmentID, endedAt)
	if err == nil {
		logger.LogSessionEvent("appointment_completed", session.RoomID, "", map[string]interface{}{
			"appointment_id": session.AppointmentID,
		})
		return true
	}

	logger.LogError(err, "Failed to mark appointment completed", map[string]interface{}{
		"appointment_id": session.AppointmentID,
		"room_id":        session.RoomID,
	})
	if s.retries == nil {
		return false
	}
	job := CompletionJob{
		AppointmentID: session.AppointmentID,
		RoomID:        session.RoomID,
		EndedAt:       endedAt,
		Attempt:       1,
		LastError:     err.Error(),
	}
	if qerr := s.retries.Enqueue(ctx, job); qerr != nil {
		logger.LogError(qerr, "Failed to enqueue appointment completion retry", map[string]interface{}{
			"appointment_id": session.AppointmentID,
		})
	}
	return false
}

// UpdateNotes writes therapist notes or patient feedback depending on who calls.
func (s *VideoSessionService) UpdateNotes(ctx context.Context, roomID string, caller models.Identity, text string) (*models.VideoSession, error) {
	text = strings.TrimSpace(text)
	if len([]rune(text)) > maxNotesLength {
		return nil, fmt.Errorf("%w: notes exceed %d characters", models.ErrValidationFailed, maxNotesLength)
	}
	return s.apply(ctx, roomID, caller, func(v *models.VideoSession) (bool, error) {
		return true, v.WriteNotes(caller.UserID, text, s.now())
	}, s.sessions.SaveNotes)
}

// ReportTechnicalIssue appends a free-form issue to the session notes.
func (s *VideoSessionService) ReportTechnicalIssue(ctx context.Context, roomID string, caller models.Identity, issue string) (*models.VideoSession, error) {
	issue = strings.TrimSpace(issue)
	if issue == "" || len([]rune(issue)) > maxIssueLength {
		return nil, fmt.Errorf("%w: issue must be 1-%d characters", models.ErrValidationFailed, maxIssueLength)
	}
	session, err := s.apply(ctx, roomID, caller, func(v *models.VideoSession) (bool, error) {
		v.SessionNotes.TechnicalIssues = append(v.SessionNotes.TechnicalIssues, issue)
		v.UpdatedAt = s.now()
		return true, nil
	}, s.sessions.SaveNotes)
	if err != nil {
		return nil, err
	}
	logger.LogSessionEvent("technical_issue", roomID, caller.UserID, map[string]interface{}{
		"issue": issue,
	})
	return session, nil
}

// SetRecordingConsent records the caller's consent for recording.
func (s *VideoSessionService) SetRecordingConsent(ctx context.Context, roomID string, caller models.Identity, consent bool) (*models.VideoSession, error) {
	session, err := s.apply(ctx, roomID, caller, func(v *models.VideoSession) (bool, error) {
		if v.Status.IsTerminal() {
			return false, fmt.Errorf("%w: session is %s", models.ErrInvalidTransition, v.Status)
		}
		return true, v.SetConsent(caller.UserID, consent, s.now())
	}, s.sessions.SaveRecording)
	if err != nil {
		return nil, err
	}
	s.broadcast(session)
	return session, nil
}

// UpdateConnectionQuality stores the caller's self-reported link quality.
func (s *VideoSessionService) UpdateConnectionQuality(ctx context.Context, roomID string, caller models.Identity, quality models.ConnectionQuality) (*models.VideoSession, error) {
	return s.apply(ctx, roomID, caller, func(v *models.VideoSession) (bool, error) {
		return true, v.SetQuality(caller.UserID, quality, s.now())
	}, s.sessions.SaveParticipants)
}

// apply loads the session for a party, runs change on it and saves it with
// save. A write rejected because the session moved on is retried from a fresh
// read, so change always sees the latest state. When change reports no
// change the session is returned without a write.
func (s *VideoSessionService) apply(
	ctx context.Context,
	roomID string,
	caller models.Identity,
	change func(*models.VideoSession) (bool, error),
	save func(context.Context, *models.VideoSession) error,
) (*models.VideoSession, error) {
	for attempt := 1; ; attempt++ {
		session, err := s.partySession(ctx, roomID, caller)
		if err != nil {
			return nil, err
		}
		changed, err := change(session)
		if err != nil {
			return nil, err
		}
		if !changed {
			return session, nil
		}
		err = save(ctx, session)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, models.ErrConcurrentUpdate) || attempt >= maxWriteAttempts {
			return nil, err
		}
	}
}

// GetSession allows the parties and admins; admins are read-only elsewhere.
func (s *VideoSessionService) GetSession(ctx context.Context, roomID string, caller models.Identity) (*models.VideoSession, error) {
	session, err := s.sessions.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !session.CanView(caller) {
		return nil, fmt.Errorf("%w: not a party to this session", models.ErrForbidden)
	}
	return session, nil
}

func (s *VideoSessionService) GetByAppointment(ctx context.Context, appointmentID string, caller models.Identity) (*models.VideoSession, error) {
	session, err := s.sessions.FindByAppointmentID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !session.CanView(caller) {
		return nil, fmt.Errorf("%w: not a party to this session", models.ErrForbidden)
	}
	return session, nil
}

func (s *VideoSessionService) ListSessions(ctx context.Context, caller models.Identity, limit int) ([]models.VideoSession, error) {
	_, limit = normalizePage(1, limit)
	return s.sessions.ListForUser(ctx, caller.UserID, limit)
}

// IsSessionRoom reports whether roomID names a video session room.
func (s *VideoSessionService) IsSessionRoom(ctx context.Context, roomID string) (bool, error) {
	_, err := s.sessions.FindByRoomID(ctx, roomID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// partySession loads the session and requires the caller to be patient or
// therapist; admins are rejected because every caller of this is a mutation.
func (s *VideoSessionService) partySession(ctx context.Context, roomID string, caller models.Identity) (*models.VideoSession, error) {
	if roomID == "" {
		return nil, fmt.Errorf("%w: room id is required", models.ErrValidationFailed)
	}
	session, err := s.sessions.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !session.IsParty(caller.UserID) {
		return nil, fmt.Errorf("%w: not a party to this session", models.ErrForbidden)
	}
	return session, nil
}

func (s *VideoSessionService) broadcast(session *models.VideoSession) {
	s.notifier.NotifyRoom(session.RoomID, models.EventSessionUpdated, session.Summary())
}
