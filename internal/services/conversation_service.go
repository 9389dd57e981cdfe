package services

import (
	"context"
	"time"

	"telehealth/internal/models"
	"telehealth/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type ConversationService struct {
	messages MessageStore
	notifier Notifier
	now      func() time.Time
}

func NewConversationService(messages MessageStore, notifier Notifier) *ConversationService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ConversationService{
		messages: messages,
		notifier: notifier,
		now:      time.Now,
	}
}

// ReadReceipt is relayed to the other party after a mark-read.
type ReadReceipt struct {
	ConversationID string    `json:"conversation_id"`
	ReaderID       string    `json:"reader_id"`
	Updated        int64     `json:"updated"`
	ReadAt         time.Time `json:"read_at"`
}

// MarkRead marks every unread message addressed to reader in conversationID
// created at or before upto. A zero upto means "now". Calling it again once
// everything is read updates nothing and is not an error.
func (s *ConversationService) MarkRead(ctx context.Context, reader models.Identity, conversationID string, upto time.Time) (*ReadReceipt, error) {
	ctx, span := tracer.Start(ctx, "ConversationService.MarkRead", trace.WithAttributes(
		attribute.String("conversation_id", conversationID),
		attribute.String("user_id", reader.UserID),
	))
	defer span.End()

	other, err := models.OtherParty(conversationID, reader.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if upto.IsZero() || upto.After(now) {
		upto = now
	}

	updated, err := s.messages.MarkRead(ctx, conversationID, reader.UserID, upto, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark read failed")
		return nil, err
	}

	receipt := &ReadReceipt{
		ConversationID: conversationID,
		ReaderID:       reader.UserID,
		Updated:        updated,
		ReadAt:         now,
	}
	if updated > 0 {
		s.notifier.NotifyUser(other, models.EventMessagesRead, receipt, false)
		logger.LogChatEvent("messages_read", conversationID, reader.UserID, map[string]interface{}{
			"updated": updated,
		})
	}
	return receipt, nil
}

// ConversationPage is one page of history, newest first.
type ConversationPage struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []models.Message `json:"messages"`
	Page           int              `json:"page"`
	Limit          int              `json:"limit"`
}

func (s *ConversationService) GetConversation(ctx context.Context, reader models.Identity, otherUserID string, page, limit int) (*ConversationPage, error) {
	conversationID, err := models.DeriveConversationID(reader.UserID, otherUserID)
	if err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit)

	msgs, err := s.messages.FindConversation(ctx, conversationID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i] = msgs[i].Redacted()
	}
	return &ConversationPage{
		ConversationID: conversationID,
		Messages:       msgs,
		Page:           page,
		Limit:          limit,
	}, nil
}

func (s *ConversationService) ListConversations(ctx context.Context, user models.Identity, limit int) ([]models.ConversationSummary, error) {
	_, limit = normalizePage(1, limit)
	convs, err := s.messages.ListConversations(ctx, user.UserID, limit)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		if other, err := models.OtherParty(convs[i].ConversationID, user.UserID); err == nil {
			convs[i].OtherUserID = other
		}
		if convs[i].LastMessage != nil {
			redacted := convs[i].LastMessage.Redacted()
			convs[i].LastMessage = &redacted
		}
	}
	return convs, nil
}

func (s *ConversationService) UnreadCount(ctx context.Context, user models.Identity) (int64, error) {
	return s.messages.CountUnread(ctx, user.UserID)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}
