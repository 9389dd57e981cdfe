package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"telehealth/internal/models"
	"telehealth/internal/utils"
)

// WSMessage is an inbound client frame.
type WSMessage struct {
	Type      models.EventType `json:"type"`
	RequestID string           `json:"request_id,omitempty"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp,omitempty"`
}

// Envelope is an outbound server frame.
type Envelope struct {
	Type      models.EventType `json:"type"`
	RequestID string           `json:"request_id,omitempty"`
	Data      interface{}      `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PeerInfo describes a room member in peer_joined, peer_left and join acks.
type PeerInfo struct {
	RoomID       string      `json:"room_id"`
	UserID       string      `json:"user_id"`
	Role         models.Role `json:"role"`
	ConnectionID string      `json:"connection_id"`
}

// SignalPayload is relayed verbatim; the server never inspects it.
type SignalPayload struct {
	RoomID  string          `json:"room_id"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// ParseMessage decodes a client frame.
func ParseMessage(raw []byte) (*WSMessage, error) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed frame", models.ErrValidationFailed)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: message type is required", models.ErrValidationFailed)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return &msg, nil
}

// Bind decodes the frame's data into v and runs struct validation.
func (m *WSMessage) Bind(v interface{}) error {
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, v); err != nil {
			return fmt.Errorf("%w: invalid %s payload", models.ErrValidationFailed, m.Type)
		}
	}
	return utils.Validate(v)
}

// Encode renders an outbound frame.
func Encode(event models.EventType, requestID string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      event,
		RequestID: requestID,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func errorPayload(err error) ErrorPayload {
	code := models.ErrorCode(err)
	msg := err.Error()
	if code == "INTERNAL_ERROR" {
		msg = "internal error"
	}
	return ErrorPayload{Code: code, Message: msg}
}
