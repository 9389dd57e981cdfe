package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxMessageLength is counted in runes.
const MaxMessageLength = 1000

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	}
	return false
}

type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SenderID       string             `bson:"sender_id" json:"sender_id"`
	ReceiverID     string             `bson:"receiver_id" json:"receiver_id"`
	Body           string             `bson:"body" json:"body"`
	Type           MessageType        `bson:"type" json:"type"`
	IsRead         bool               `bson:"is_read" json:"is_read"`
	ReadAt         *time.Time         `bson:"read_at,omitempty" json:"read_at,omitempty"`
	EditedAt       *time.Time         `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	IsDeleted      bool               `bson:"is_deleted" json:"is_deleted"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

// ConversationSummary is one row of a user's inbox.
type ConversationSummary struct {
	ConversationID string   `bson:"_id" json:"conversation_id"`
	OtherUserID    string   `bson:"-" json:"other_user_id"`
	LastMessage    *Message `bson:"last_message" json:"last_message"`
	UnreadCount    int64    `bson:"unread_count" json:"unread_count"`
}

// DeriveConversationID returns the order-independent key for the pair a, b.
func DeriveConversationID(a, b string) (string, error) {
	if a == "" || b == "" {
		return "", fmt.Errorf("%w: conversation requires two identities", ErrValidationFailed)
	}
	if a == b {
		return "", fmt.Errorf("%w: conversation requires two distinct identities", ErrValidationFailed)
	}
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_"), nil
}

// OtherParty returns the identity sharing conversationID with userID. Ids may
// themselves contain the separator, so membership is checked by re-deriving
// the key from each candidate split.
func OtherParty(conversationID, userID string) (string, error) {
	if userID != "" {
		if rest, ok := strings.CutPrefix(conversationID, userID+"_"); ok {
			if id, err := DeriveConversationID(userID, rest); err == nil && id == conversationID {
				return rest, nil
			}
		}
		if rest, ok := strings.CutSuffix(conversationID, "_"+userID); ok {
			if id, err := DeriveConversationID(rest, userID); err == nil && id == conversationID {
				return rest, nil
			}
		}
	}
	return "", fmt.Errorf("%w: not a party to this conversation", ErrForbidden)
}

// ValidateBody trims body and enforces the length limit.
func ValidateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: message body is required", ErrValidationFailed)
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return "", fmt.Errorf("%w: message body exceeds %d characters", ErrValidationFailed, MaxMessageLength)
	}
	return body, nil
}

// NewMessage builds a message with its conversation id derived up front.
func NewMessage(senderID, receiverID, body string, msgType MessageType, now time.Time) (*Message, error) {
	convID, err := DeriveConversationID(senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if !msgType.Valid() {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrValidationFailed, msgType)
	}
	body, err = ValidateBody(body)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:             primitive.NewObjectID(),
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           body,
		Type:           msgType,
		ConversationID: convID,
		CreatedAt:      now,
	}, nil
}

// Redacted hides the body of deleted messages.
func (m Message) Redacted() Message {
	if m.IsDeleted {
		m.Body = ""
	}
	return m
}
