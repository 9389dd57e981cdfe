package models

// EventType names an event on the realtime surface, inbound or outbound.
type EventType string

// Inbound events sent by clients.
const (
	EventJoinRoom            EventType = "join_room"
	EventLeaveRoom           EventType = "leave_room"
	EventSignal              EventType = "signal"
	EventSendMessage         EventType = "send_message"
	EventTypingStart         EventType = "typing_start"
	EventTypingStop          EventType = "typing_stop"
	EventMarkRead            EventType = "mark_read"
	EventGetConversation     EventType = "get_conversation"
	EventCreateOrJoinSession EventType = "create_or_join_session"
	EventSetSessionStatus    EventType = "set_session_status"
	EventUpdateNotes         EventType = "update_notes"
	EventConnectionQuality   EventType = "connection_quality"
	EventHeartbeat           EventType = "heartbeat"
)

// Outbound events pushed by the server.
const (
	EventConnected      EventType = "connected"
	EventAck            EventType = "ack"
	EventError          EventType = "error"
	EventPeerJoined     EventType = "peer_joined"
	EventPeerLeft       EventType = "peer_left"
	EventNewMessage     EventType = "new_message"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventMessagesRead   EventType = "messages_read"
	EventSessionUpdated EventType = "session_updated"
)
