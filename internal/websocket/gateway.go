package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"telehealth/internal/models"
	"telehealth/internal/services"
	"telehealth/pkg/logger"
)

type roomRequest struct {
	RoomID string `json:"room_id" validate:"required"`
}

type signalRequest struct {
	RoomID  string          `json:"room_id" validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type typingRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
}

type markReadRequest struct {
	ConversationID string    `json:"conversation_id" validate:"required"`
	Upto           time.Time `json:"upto"`
}

type getConversationRequest struct {
	OtherUserID string `json:"other_user_id" validate:"required"`
	Page        int    `json:"page" validate:"omitempty,min=1"`
	Limit       int    `json:"limit" validate:"omitempty,min=1,max=200"`
}

type createSessionRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required"`
}

type setStatusRequest struct {
	RoomID string               `json:"room_id" validate:"required"`
	Status models.SessionStatus `json:"status" validate:"required,session_status"`
	Notes  *string              `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

type updateNotesRequest struct {
	RoomID string `json:"room_id" validate:"required"`
	Text   string `json:"text" validate:"max=5000"`
}

type qualityRequest struct {
	RoomID  string                   `json:"room_id" validate:"required"`
	Quality models.ConnectionQuality `json:"quality" validate:"required,connection_quality"`
}

// Gateway turns inbound websocket events into service calls and relays.
type Gateway struct {
	hub           *Hub
	chat          *services.ChatService
	conversations *services.ConversationService
	sessions      *services.VideoSessionService
	timeout       time.Duration
}

func NewGateway(hub *Hub, chat *services.ChatService, conversations *services.ConversationService, sessions *services.VideoSessionService, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gateway{
		hub:           hub,
		chat:          chat,
		conversations: conversations,
		sessions:      sessions,
		timeout:       timeout,
	}
}

// Serve runs c until its socket closes. The read loop runs on the calling
// goroutine.
func (g *Gateway) Serve(ctx context.Context, c *Client) {
	if err := g.hub.Connect(c); err != nil {
		logger.WithError(err).WithField("user_id", c.UserID()).Warn("Rejected websocket connection")
		c.conn.Close()
		return
	}
	go c.WritePump()

	c.ReadPump(func(c *Client, msg *WSMessage) {
		g.Dispatch(ctx, c, msg)
	})
	g.Disconnect(ctx, c)
}

// Disconnect tears c down and records it leaving any video session rooms it
// was the identity's last connection in.
func (g *Gateway) Disconnect(ctx context.Context, c *Client) {
	for _, roomID := range g.hub.Disconnect(c) {
		g.leaveSession(ctx, roomID, c)
	}
}

// Dispatch handles one inbound event and replies with ack or error.
func (g *Gateway) Dispatch(parent context.Context, c *Client, msg *WSMessage) {
	ctx, cancel := context.WithTimeout(parent, g.timeout)
	defer cancel()

	data, err := g.route(ctx, c, msg)
	if err != nil {
		if models.ErrorCode(err) == "INTERNAL_ERROR" {
			logger.LogError(err, "WebSocket event failed", map[string]interface{}{
				"event":   msg.Type,
				"user_id": c.UserID(),
			})
		}
		c.sendError(msg.RequestID, err)
		return
	}
	if msg.RequestID != "" || data != nil {
		c.Send(models.EventAck, msg.RequestID, data, false)
	}
}

func (g *Gateway) route(ctx context.Context, c *Client, msg *WSMessage) (interface{}, error) {
	switch msg.Type {
	case models.EventJoinRoom:
		return g.joinRoom(ctx, c, msg)
	case models.EventLeaveRoom:
		return g.leaveRoom(ctx, c, msg)
	case models.EventSignal:
		return nil, g.signal(c, msg)
	case models.EventSendMessage:
		var req services.SendMessageRequest
		if err := msg.Bind(&req); err != nil {
			return nil, err
		}
		return g.chat.SendMessage(ctx, c.Identity, req)
	case models.EventTypingStart, models.EventTypingStop:
		var req typingRequest
		if err := msg.Bind(&req); err != nil {
			return nil, err
		}
		return nil, g.chat.Typing(c.Identity, req.ReceiverID, msg.Type == models.EventTypingStart)
	case models.EventMarkRead:
		var req markReadRequest
		if err := msg.Bind(&req); err != nil {
			return nil, err
		}
		return g.conversations.MarkRead(ctx, c.Identity, req.ConversationID, req.Upto)
	case models.EventGetConversation:
		var req getConversationRequest
		if err := msg.Bind(&req); err != nil {
			return nil, err
		}
		return g.conversations.GetConversation(ctx, c.Identity, req.OtherUserID, req.Page, req.Limit)
	case models.EventCreateOrJoinSession:
		return g.createOrJoinSession(ctx, c, msg)
	case models.EventSetSessionStatus:
		var req setStatusRequest
		if err := msg.Bind(&req); err != nil {
			return nil, err
		}
		var notes *services.NotesUpdate
		if req.Notes != nil {
			notes = &services.NotesUpdate{Text: *req.Notes}
		}
		return g.sessions.SetStatus(ctx, req.RoomID, c.Identity, req.Status, notes)
	case models.EventUpdateNotes:
		var req updateNotesRequest
		if err := msg.Bind(&req); err != nil {
			return nil, err
		}
		session, err := g.sessions.UpdateNotes(ctx, req.RoomID, c.Identity, req.Text)
		if err != nil {
			return nil, err
		}
		return session.Summary(), nil
	case models.EventConnectionQuality:
		var req qualityRequest
		if err := msg.Bind(&req); err != nil {
			return nil, err
		}
		session, err := g.sessions.UpdateConnectionQuality(ctx, req.RoomID, c.Identity, req.Quality)
		if err != nil {
			return nil, err
		}
		return session.Summary(), nil
	case models.EventHeartbeat:
		c.Touch()
		return map[string]interface{}{"server_time": time.Now()}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", models.ErrValidationFailed, msg.Type)
	}
}

type joinAck struct {
	RoomID  string                 `json:"room_id"`
	Peers   []PeerInfo             `json:"peers"`
	Session *models.SessionSummary `json:"session,omitempty"`
}

// joinRoom admits c to a relay room. A room backing a video session first
// has to accept c as a participant.
func (g *Gateway) joinRoom(ctx context.Context, c *Client, msg *WSMessage) (interface{}, error) {
	var req roomRequest
	if err := msg.Bind(&req); err != nil {
		return nil, err
	}

	if c.IsClosed() {
		return nil, ErrClientClosed
	}
	ack := joinAck{RoomID: req.RoomID}
	isSession, err := g.sessions.IsSessionRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if isSession {
		session, err := g.sessions.Join(ctx, req.RoomID, c.Identity, models.QualityGood)
		if err != nil {
			return nil, err
		}
		summary := session.Summary()
		ack.Session = &summary
	}

	peers, err := g.hub.Rooms().Join(req.RoomID, c)
	if err != nil {
		// c closed after the participant was recorded
		if isSession {
			g.leaveSession(ctx, req.RoomID, c)
		}
		return nil, err
	}
	ack.Peers = peers
	return ack, nil
}

func (g *Gateway) leaveRoom(ctx context.Context, c *Client, msg *WSMessage) (interface{}, error) {
	var req roomRequest
	if err := msg.Bind(&req); err != nil {
		return nil, err
	}
	if g.hub.Rooms().Leave(req.RoomID, c) {
		g.leaveSession(ctx, req.RoomID, c)
	}
	return map[string]string{"room_id": req.RoomID}, nil
}

// leaveSession stamps leftAt once the identity has no connection left in a
// session room. Non-session rooms are ignored.
func (g *Gateway) leaveSession(ctx context.Context, roomID string, c *Client) {
	if g.hub.Rooms().HasUser(roomID, c.UserID()) {
		return
	}
	isSession, err := g.sessions.IsSessionRoom(ctx, roomID)
	if err != nil || !isSession {
		return
	}
	if _, err := g.sessions.Leave(ctx, roomID, c.Identity); err != nil {
		logger.LogError(err, "Failed to record session leave", map[string]interface{}{
			"room_id": roomID,
			"user_id": c.UserID(),
		})
	}
}

// signal relays an opaque payload to the other members of a room the sender
// belongs to.
func (g *Gateway) signal(c *Client, msg *WSMessage) error {
	var req signalRequest
	if err := msg.Bind(&req); err != nil {
		return err
	}
	if !g.hub.Rooms().IsMember(req.RoomID, c) {
		return fmt.Errorf("%w: not a member of room %s", models.ErrForbidden, req.RoomID)
	}
	g.hub.Rooms().Broadcast(req.RoomID, models.EventSignal, SignalPayload{
		RoomID:  req.RoomID,
		From:    c.UserID(),
		Payload: req.Payload,
	}, c)
	return nil
}

func (g *Gateway) createOrJoinSession(ctx context.Context, c *Client, msg *WSMessage) (interface{}, error) {
	var req createSessionRequest
	if err := msg.Bind(&req); err != nil {
		return nil, err
	}
	session, err := g.sessions.CreateOrJoin(ctx, c.Identity, req.AppointmentID)
	if err != nil {
		return nil, err
	}

	ack := joinAck{RoomID: session.RoomID}
	summary := session.Summary()
	ack.Session = &summary
	if !session.Status.IsTerminal() {
		peers, err := g.hub.Rooms().Join(session.RoomID, c)
		if err != nil {
			return nil, err
		}
		ack.Peers = peers
	}
	return ack, nil
}
