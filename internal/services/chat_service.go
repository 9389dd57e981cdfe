package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telehealth/internal/models"
	"telehealth/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ChatService is the durable half of message delivery: it validates,
// authorizes and persists, then hands off to the Notifier.
type ChatService struct {
	messages     MessageStore
	users        UserStore
	appointments AppointmentStore
	notifier     Notifier
	now          func() time.Time
}

func NewChatService(messages MessageStore, users UserStore, appointments AppointmentStore, notifier Notifier) *ChatService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ChatService{
		messages:     messages,
		users:        users,
		appointments: appointments,
		notifier:     notifier,
		now:          time.Now,
	}
}

type SendMessageRequest struct {
	ReceiverID string             `json:"receiver_id" binding:"required" validate:"required"`
	Body       string             `json:"body" binding:"required" validate:"required,max=4000"`
	Type       models.MessageType `json:"type" validate:"omitempty,message_type"`
}

// TypingEvent is relayed for typing_start and typing_stop.
type TypingEvent struct {
	From           string `json:"from"`
	ConversationID string `json:"conversation_id"`
}

// SendMessage persists the message before any relay; the receiver being
// offline is not an error.
func (s *ChatService) SendMessage(ctx context.Context, sender models.Identity, req SendMessageRequest) (*models.Message, error) {
	ctx, span := tracer.Start(ctx, "ChatService.SendMessage", trace.WithAttributes(
		attribute.String("sender_id", sender.UserID),
		attribute.String("receiver_id", req.ReceiverID),
	))
	defer span.End()

	if req.Type == "" {
		req.Type = models.MessageText
	}
	if req.Type == models.MessageSystem && !sender.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins may send system messages", models.ErrForbidden)
	}

	msg, err := models.NewMessage(sender.UserID, req.ReceiverID, req.Body, req.Type, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, sender, req.ReceiverID); err != nil {
		return nil, err
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		logger.LogError(err, "Failed to store chat message", map[string]interface{}{
			"sender_id":   sender.UserID,
			"receiver_id": req.ReceiverID,
		})
		return nil, err
	}

	delivered := s.notifier.NotifyUser(msg.ReceiverID, models.EventNewMessage, msg, true)
	s.notifier.NotifyUser(msg.SenderID, models.EventNewMessage, msg, true)

	logger.LogChatEvent("message_sent", msg.ConversationID, sender.UserID, map[string]interface{}{
		"message_type":   msg.Type,
		"content_length": len(msg.Body),
		"delivered":      delivered,
	})
	return msg, nil
}

// authorize requires an admin on either side, or a patient/therapist pair
// linked by at least one appointment.
func (s *ChatService) authorize(ctx context.Context, sender models.Identity, receiverID string) error {
	receiver, err := s.users.FindUser(ctx, receiverID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: receiver does not exist", models.ErrNotFound)
		}
		return err
	}
	if sender.IsAdmin() || receiver.Role == models.RoleAdmin {
		return nil
	}

	var patientID, therapistID string
	switch {
	case sender.Role == models.RolePatient && receiver.Role == models.RoleTherapist:
		patientID, therapistID = sender.UserID, receiverID
	case sender.Role == models.RoleTherapist && receiver.Role == models.RolePatient:
		patientID, therapistID = receiverID, sender.UserID
	default:
		return fmt.Errorf("%w: no care relationship between sender and receiver", models.ErrForbidden)
	}

	linked, err := s.appointments.HasLinkedAppointment(ctx, patientID, therapistID)
	if err != nil {
		return err
	}
	if !linked {
		return fmt.Errorf("%w: no appointment links sender and receiver", models.ErrForbidden)
	}
	return nil
}

// EditMessage replaces the body of the sender's own message and stamps editedAt.
func (s *ChatService) EditMessage(ctx context.Context, editor models.Identity, messageID, body string) (*models.Message, error) {
	msg, err := s.ownMessage(ctx, editor, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, fmt.Errorf("%w: message was deleted", models.ErrPreconditionFailed)
	}
	body, err = models.ValidateBody(body)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.messages.UpdateBody(ctx, messageID, body, now); err != nil {
		return nil, err
	}
	msg.Body = body
	msg.EditedAt = &now

	s.notifier.NotifyUser(msg.ReceiverID, models.EventMessageEdited, msg, true)
	logger.LogChatEvent("message_edited", msg.ConversationID, editor.UserID, nil)
	return msg, nil
}

// DeleteMessage soft-deletes the sender's own message. Deleting twice is a no-op.
func (s *ChatService) DeleteMessage(ctx context.Context, deleter models.Identity, messageID string) error {
	msg, err := s.ownMessage(ctx, deleter, messageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return nil
	}
	if err := s.messages.MarkDeleted(ctx, messageID); err != nil {
		return err
	}

	s.notifier.NotifyUser(msg.ReceiverID, models.EventMessageDeleted, map[string]string{
		"message_id":      messageID,
		"conversation_id": msg.ConversationID,
	}, true)
	logger.LogChatEvent("message_deleted", msg.ConversationID, deleter.UserID, nil)
	return nil
}

func (s *ChatService) ownMessage(ctx context.Context, caller models.Identity, messageID string) (*models.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != caller.UserID {
		return nil, fmt.Errorf("%w: only the sender may change a message", models.ErrForbidden)
	}
	return msg, nil
}

// Typing relays a typing indicator. It is never persisted and is dropped when
// the receiver is offline.
func (s *ChatService) Typing(sender models.Identity, receiverID string, started bool) error {
	convID, err := models.DeriveConversationID(sender.UserID, receiverID)
	if err != nil {
		return err
	}
	event := models.EventTypingStop
	if started {
		event = models.EventTypingStart
	}
	s.notifier.NotifyUser(receiverID, event, TypingEvent{From: sender.UserID, ConversationID: convID}, false)
	return nil
}
