package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"telehealth/internal/models"
	"telehealth/internal/services"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memAppointments struct {
	appt *models.Appointment
}

func (m *memAppointments) FindAppointment(_ context.Context, id string) (*models.Appointment, error) {
	if m.appt == nil || m.appt.ID.Hex() != id {
		return nil, fmt.Errorf("%w: appointment", models.ErrNotFound)
	}
	cp := *m.appt
	return &cp, nil
}

func (m *memAppointments) MarkCompleted(context.Context, string, time.Time) error { return nil }

func (m *memAppointments) HasLinkedAppointment(_ context.Context, patientID, therapistID string) (bool, error) {
	return m.appt != nil && m.appt.PatientID == patientID && m.appt.TherapistID == therapistID, nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]models.VideoSession
	// afterSave runs once, outside the lock, after the next successful save.
	afterSave func()
}

func (m *memSessions) put(s *models.VideoSession) {
	cp := *s
	cp.Participants = append([]models.Participant(nil), s.Participants...)
	m.sessions[s.RoomID] = cp
}

func (m *memSessions) Create(_ context.Context, s *models.VideoSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(s)
	return nil
}

func (m *memSessions) FindByRoomID(_ context.Context, roomID string) (*models.VideoSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: session", models.ErrNotFound)
	}
	s.Participants = append([]models.Participant(nil), s.Participants...)
	return &s, nil
}

func (m *memSessions) FindByAppointmentID(_ context.Context, appointmentID string) (*models.VideoSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.AppointmentID == appointmentID {
			s.Participants = append([]models.Participant(nil), s.Participants...)
			return &s, nil
		}
	}
	return nil, fmt.Errorf("%w: session", models.ErrNotFound)
}

func (m *memSessions) ListForUser(context.Context, string, int) ([]models.VideoSession, error) {
	return nil, nil
}

func (m *memSessions) save(s *models.VideoSession) error {
	m.mu.Lock()
	if m.sessions[s.RoomID].Version != s.Version {
		m.mu.Unlock()
		return fmt.Errorf("%w: session", models.ErrConcurrentUpdate)
	}
	s.Version++
	m.put(s)
	hook := m.afterSave
	m.afterSave = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (m *memSessions) SaveStatus(_ context.Context, s *models.VideoSession) error       { return m.save(s) }
func (m *memSessions) SaveParticipants(_ context.Context, s *models.VideoSession) error { return m.save(s) }
func (m *memSessions) SaveNotes(_ context.Context, s *models.VideoSession) error        { return m.save(s) }
func (m *memSessions) SaveRecording(_ context.Context, s *models.VideoSession) error    { return m.save(s) }

func (m *memSessions) get(roomID string) *models.VideoSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[roomID]
	return &s
}

type gatewayFixture struct {
	gw       *Gateway
	hub      *Hub
	sessions *memSessions
	apptID   string
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	appt := &models.Appointment{
		ID:          primitive.NewObjectID(),
		PatientID:   "patient1",
		TherapistID: "therapist1",
		Status:      models.AppointmentConfirmed,
		SessionType: models.SessionTypeVideo,
	}
	appts := &memAppointments{appt: appt}
	sessions := &memSessions{sessions: map[string]models.VideoSession{}}

	hub := NewHub(nil, HubConfig{})
	chat := services.NewChatService(nil, nil, appts, hub)
	convs := services.NewConversationService(nil, hub)
	sessionSvc := services.NewVideoSessionService(sessions, appts, hub, nil)

	return &gatewayFixture{
		gw:       NewGateway(hub, chat, convs, sessionSvc, time.Second),
		hub:      hub,
		sessions: sessions,
		apptID:   appt.ID.Hex(),
	}
}

func (f *gatewayFixture) connect(t *testing.T, userID string, role models.Role) *Client {
	t.Helper()
	c := newTestClient(userID, role)
	if err := f.hub.Connect(c); err != nil {
		t.Fatal(err)
	}
	drain(t, c)
	return c
}

func (f *gatewayFixture) send(c *Client, event models.EventType, requestID string, data interface{}) {
	raw, _ := json.Marshal(data)
	f.gw.Dispatch(context.Background(), c, &WSMessage{Type: event, RequestID: requestID, Data: raw})
}

func errorCode(t *testing.T, f frame) string {
	t.Helper()
	if f.Type != models.EventError {
		t.Fatalf("expected error frame, got %s", f.Type)
	}
	var p ErrorPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		t.Fatal(err)
	}
	return p.Code
}

func TestGateway_PlainRoomJoinAndSignal(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	alice := f.connect(t, "patient1", models.RolePatient)
	bob := f.connect(t, "therapist1", models.RoleTherapist)

	f.send(alice, models.EventJoinRoom, "r1", map[string]string{"room_id": "lobby"})
	ack := lastOf(t, drain(t, alice))
	if ack.Type != models.EventAck || ack.RequestID != "r1" {
		t.Fatalf("expected ack r1, got %+v", ack)
	}

	// a non-member may not signal into the room
	f.send(bob, models.EventSignal, "s0", map[string]interface{}{"room_id": "lobby", "payload": map[string]string{"sdp": "offer"}})
	if code := errorCode(t, lastOf(t, drain(t, bob))); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", code)
	}

	f.send(bob, models.EventJoinRoom, "r2", map[string]string{"room_id": "lobby"})
	var joined struct {
		Peers []PeerInfo `json:"peers"`
	}
	if err := json.Unmarshal(lastOf(t, drain(t, bob)).Data, &joined); err != nil || len(joined.Peers) != 1 {
		t.Fatalf("bob should see one peer: %+v %v", joined, err)
	}
	if got := drain(t, alice); len(got) != 1 || got[0].Type != models.EventPeerJoined {
		t.Fatalf("alice expected peer_joined, got %v", eventTypes(got))
	}

	f.send(bob, models.EventSignal, "", map[string]interface{}{"room_id": "lobby", "payload": map[string]string{"sdp": "offer"}})
	got := drain(t, alice)
	if len(got) != 1 || got[0].Type != models.EventSignal {
		t.Fatalf("alice expected signal, got %v", eventTypes(got))
	}
	var sig SignalPayload
	if err := json.Unmarshal(got[0].Data, &sig); err != nil || sig.From != "therapist1" || string(sig.Payload) != `{"sdp":"offer"}` {
		t.Fatalf("signal not relayed verbatim: %+v %v", sig, err)
	}
	if got := drain(t, bob); len(got) != 0 {
		t.Fatalf("sender should get no echo or ack without request id: %v", eventTypes(got))
	}
}

func TestGateway_UnknownEventAndBadPayload(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	c := f.connect(t, "patient1", models.RolePatient)

	f.send(c, models.EventType("teleport"), "x", nil)
	if code := errorCode(t, lastOf(t, drain(t, c))); code != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED, got %s", code)
	}

	f.send(c, models.EventJoinRoom, "y", map[string]string{})
	if code := errorCode(t, lastOf(t, drain(t, c))); code != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED for missing room id, got %s", code)
	}

	f.send(c, models.EventHeartbeat, "hb", nil)
	if got := lastOf(t, drain(t, c)); got.Type != models.EventAck || got.RequestID != "hb" {
		t.Fatalf("expected heartbeat ack, got %+v", got)
	}
}

func TestGateway_TypingRelay(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	alice := f.connect(t, "patient1", models.RolePatient)
	bob := f.connect(t, "therapist1", models.RoleTherapist)

	f.send(alice, models.EventTypingStart, "", map[string]string{"receiver_id": "therapist1"})
	got := drain(t, bob)
	if len(got) != 1 || got[0].Type != models.EventTypingStart {
		t.Fatalf("bob expected typing_start, got %v", eventTypes(got))
	}
}

func TestGateway_SessionRoomLifecycle(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	patient := f.connect(t, "patient1", models.RolePatient)
	therapist := f.connect(t, "therapist1", models.RoleTherapist)
	outsider := f.connect(t, "patient2", models.RolePatient)

	f.send(patient, models.EventCreateOrJoinSession, "c1", map[string]string{"appointment_id": f.apptID})
	var ack struct {
		RoomID  string                 `json:"room_id"`
		Session *models.SessionSummary `json:"session"`
	}
	if err := json.Unmarshal(lastOf(t, drain(t, patient)).Data, &ack); err != nil {
		t.Fatal(err)
	}
	if ack.RoomID == "" || ack.Session == nil || ack.Session.Status != models.SessionWaiting {
		t.Fatalf("unexpected create ack: %+v", ack)
	}
	roomID := ack.RoomID

	// the relay only admits parties to a session room
	f.send(outsider, models.EventJoinRoom, "j0", map[string]string{"room_id": roomID})
	if code := errorCode(t, lastOf(t, drain(t, outsider))); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", code)
	}
	if f.hub.Rooms().IsMember(roomID, outsider) {
		t.Fatalf("outsider must not be in the relay room")
	}

	f.send(therapist, models.EventJoinRoom, "j1", map[string]string{"room_id": roomID})
	if got := lastOf(t, drain(t, therapist)); got.Type != models.EventAck {
		t.Fatalf("therapist join failed: %s", got.Data)
	}
	if n := f.sessions.get(roomID).ActiveParticipants(); n != 2 {
		t.Fatalf("expected 2 active participants, got %d", n)
	}

	f.send(therapist, models.EventSetSessionStatus, "s1", map[string]string{"room_id": roomID, "status": "active"})
	got := drain(t, patient)
	if len(got) == 0 || lastOf(t, got).Type != models.EventSessionUpdated {
		t.Fatalf("patient expected session_updated, got %v", eventTypes(got))
	}

	f.send(therapist, models.EventSetSessionStatus, "s2", map[string]string{"room_id": roomID, "status": "paused"})
	if code := errorCode(t, lastOf(t, drain(t, therapist))); code != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED for unknown status, got %s", code)
	}

	// disconnecting stamps leftAt for the identity's last connection
	f.gw.Disconnect(context.Background(), patient)
	stored := f.sessions.get(roomID)
	for _, p := range stored.Participants {
		if p.UserID == "patient1" && p.LeftAt == nil {
			t.Fatalf("expected patient leftAt after disconnect")
		}
		if p.UserID == "therapist1" && p.LeftAt != nil {
			t.Fatalf("therapist is still connected")
		}
	}
}

func TestGateway_SecondConnectionKeepsParticipantPresent(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	first := f.connect(t, "patient1", models.RolePatient)
	second := f.connect(t, "patient1", models.RolePatient)

	f.send(first, models.EventCreateOrJoinSession, "c1", map[string]string{"appointment_id": f.apptID})
	var ack struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(lastOf(t, drain(t, first)).Data, &ack); err != nil {
		t.Fatal(err)
	}
	f.send(second, models.EventJoinRoom, "j1", map[string]string{"room_id": ack.RoomID})
	drain(t, second)

	f.gw.Disconnect(context.Background(), first)
	if n := f.sessions.get(ack.RoomID).ActiveParticipants(); n != 1 {
		t.Fatalf("patient still has a connection in the room, active=%d", n)
	}

	f.gw.Disconnect(context.Background(), second)
	if n := f.sessions.get(ack.RoomID).ActiveParticipants(); n != 0 {
		t.Fatalf("expected no active participants, got %d", n)
	}
}

func (f *gatewayFixture) createSession(t *testing.T, c *Client) string {
	t.Helper()
	f.send(c, models.EventCreateOrJoinSession, "c1", map[string]string{"appointment_id": f.apptID})
	var ack struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(lastOf(t, drain(t, c)).Data, &ack); err != nil {
		t.Fatal(err)
	}
	return ack.RoomID
}

func joinMessage(roomID string) *WSMessage {
	raw, _ := json.Marshal(map[string]string{"room_id": roomID})
	return &WSMessage{Type: models.EventJoinRoom, Data: raw}
}

func TestGateway_ClosedClientCannotJoinSessionRoom(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	patient := f.connect(t, "patient1", models.RolePatient)
	therapist := f.connect(t, "therapist1", models.RoleTherapist)
	roomID := f.createSession(t, patient)

	therapist.Close()
	if _, err := f.gw.joinRoom(context.Background(), therapist, joinMessage(roomID)); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
	for _, p := range f.sessions.get(roomID).Participants {
		if p.UserID == "therapist1" {
			t.Fatalf("closed connection must not be recorded as a participant: %+v", p)
		}
	}
}

func TestGateway_ClientClosingMidJoinLeavesSession(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	patient := f.connect(t, "patient1", models.RolePatient)
	therapist := f.connect(t, "therapist1", models.RoleTherapist)
	roomID := f.createSession(t, patient)

	// the socket drops after the participant write but before the relay join
	f.sessions.mu.Lock()
	f.sessions.afterSave = func() { therapist.Close() }
	f.sessions.mu.Unlock()

	if _, err := f.gw.joinRoom(context.Background(), therapist, joinMessage(roomID)); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
	stored := f.sessions.get(roomID)
	if n := stored.ActiveParticipants(); n != 1 {
		t.Fatalf("only the patient is connected, active=%d", n)
	}
	for _, p := range stored.Participants {
		if p.UserID == "therapist1" && p.LeftAt == nil {
			t.Fatalf("expected therapist leftAt after failed relay join")
		}
	}
	if f.hub.Rooms().IsMember(roomID, therapist) {
		t.Fatalf("closed connection must not be in the relay room")
	}
}
