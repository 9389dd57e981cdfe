package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"telehealth/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeUsers struct {
	users map[string]*models.User
}

func newFakeUsers(users ...models.User) *fakeUsers {
	f := &fakeUsers{users: map[string]*models.User{}}
	for i := range users {
		u := users[i]
		f.users[u.ID.Hex()] = &u
	}
	return f
}

func (f *fakeUsers) FindUser(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user", models.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

type fakeAppointments struct {
	mu           sync.Mutex
	appts        map[string]*models.Appointment
	completeErr  error
	completed    map[string]time.Time
	links        map[[2]string]bool
	completeCall int
}

func newFakeAppointments() *fakeAppointments {
	return &fakeAppointments{
		appts:     map[string]*models.Appointment{},
		completed: map[string]time.Time{},
		links:     map[[2]string]bool{},
	}
}

func (f *fakeAppointments) add(a models.Appointment) *models.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	f.appts[a.ID.Hex()] = &a
	f.links[[2]string{a.PatientID, a.TherapistID}] = true
	return &a
}

func (f *fakeAppointments) FindAppointment(_ context.Context, id string) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, fmt.Errorf("%w: appointment", models.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAppointments) MarkCompleted(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCall++
	if f.completeErr != nil {
		return f.completeErr
	}
	a, ok := f.appts[id]
	if !ok {
		return fmt.Errorf("%w: appointment", models.ErrNotFound)
	}
	a.Status = models.AppointmentCompleted
	a.CompletedAt = &at
	f.completed[id] = at
	return nil
}

func (f *fakeAppointments) HasLinkedAppointment(_ context.Context, patientID, therapistID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[[2]string{patientID, therapistID}], nil
}

type fakeSessions struct {
	mu       sync.Mutex
	byRoom   map[string]models.VideoSession
	failSave error
	creates  int
	saves    int
	// afterRead runs once, right after the next FindByRoomID has copied the
	// stored session, to interleave another writer before the caller saves.
	afterRead func()
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byRoom: map[string]models.VideoSession{}}
}

func cloneSession(s models.VideoSession) models.VideoSession {
	s.Participants = append([]models.Participant(nil), s.Participants...)
	s.SessionNotes.TechnicalIssues = append([]string(nil), s.SessionNotes.TechnicalIssues...)
	return s
}

func (f *fakeSessions) Create(_ context.Context, s *models.VideoSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byRoom {
		if existing.AppointmentID == s.AppointmentID {
			return fmt.Errorf("%w: appointment_id", models.ErrDuplicate)
		}
	}
	f.creates++
	f.byRoom[s.RoomID] = cloneSession(*s)
	return nil
}

func (f *fakeSessions) FindByRoomID(_ context.Context, roomID string) (*models.VideoSession, error) {
	f.mu.Lock()
	s, ok := f.byRoom[roomID]
	hook := f.afterRead
	f.afterRead = nil
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: session", models.ErrNotFound)
	}
	cp := cloneSession(s)
	if hook != nil {
		hook()
	}
	return &cp, nil
}

func (f *fakeSessions) FindByAppointmentID(_ context.Context, appointmentID string) (*models.VideoSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byRoom {
		if s.AppointmentID == appointmentID {
			cp := cloneSession(s)
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: session", models.ErrNotFound)
}

func (f *fakeSessions) ListForUser(_ context.Context, userID string, limit int) ([]models.VideoSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.VideoSession
	for _, s := range f.byRoom {
		if s.IsParty(userID) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// save mirrors the repository: the write only lands on the version it read.
func (f *fakeSessions) save(s *models.VideoSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.failSave != nil {
		return f.failSave
	}
	stored, ok := f.byRoom[s.RoomID]
	if !ok {
		return fmt.Errorf("%w: session", models.ErrNotFound)
	}
	if stored.Version != s.Version {
		return fmt.Errorf("%w: session %s", models.ErrConcurrentUpdate, s.RoomID)
	}
	s.Version++
	f.byRoom[s.RoomID] = cloneSession(*s)
	return nil
}

func (f *fakeSessions) SaveStatus(_ context.Context, s *models.VideoSession) error       { return f.save(s) }
func (f *fakeSessions) SaveParticipants(_ context.Context, s *models.VideoSession) error { return f.save(s) }
func (f *fakeSessions) SaveNotes(_ context.Context, s *models.VideoSession) error        { return f.save(s) }
func (f *fakeSessions) SaveRecording(_ context.Context, s *models.VideoSession) error    { return f.save(s) }

func (f *fakeSessions) get(roomID string) models.VideoSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneSession(f.byRoom[roomID])
}

type fakeMessages struct {
	mu       sync.Mutex
	messages []*models.Message
	failNext error
}

func (f *fakeMessages) Create(_ context.Context, m *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	cp := *m
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeMessages) FindByID(_ context.Context, id string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID.Hex() == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: message", models.ErrNotFound)
}

func (f *fakeMessages) FindConversation(_ context.Context, conversationID string, skip, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].ConversationID == conversationID {
			out = append(out, *f.messages[i])
		}
	}
	if skip >= len(out) {
		return []models.Message{}, nil
	}
	out = out[skip:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMessages) MarkRead(_ context.Context, conversationID, readerID string, upto, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.ConversationID == conversationID && m.ReceiverID == readerID && !m.IsRead && !m.CreatedAt.After(upto) {
			m.IsRead = true
			at := now
			m.ReadAt = &at
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) UpdateBody(_ context.Context, id, body string, editedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID.Hex() == id {
			m.Body = body
			m.EditedAt = &editedAt
			return nil
		}
	}
	return fmt.Errorf("%w: message", models.ErrNotFound)
}

func (f *fakeMessages) MarkDeleted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID.Hex() == id {
			m.IsDeleted = true
			return nil
		}
	}
	return fmt.Errorf("%w: message", models.ErrNotFound)
}

func (f *fakeMessages) ListConversations(_ context.Context, userID string, limit int) ([]models.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]int{}
	var out []models.ConversationSummary
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		idx, ok := seen[m.ConversationID]
		if !ok {
			cp := *m
			out = append(out, models.ConversationSummary{ConversationID: m.ConversationID, LastMessage: &cp})
			idx = len(out) - 1
			seen[m.ConversationID] = idx
		}
		if m.ReceiverID == userID && !m.IsRead && !m.IsDeleted {
			out[idx].UnreadCount++
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMessages) CountUnread(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.ReceiverID == userID && !m.IsRead && !m.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type notification struct {
	target  string
	event   models.EventType
	data    interface{}
	durable bool
	room    bool
}

// fakeNotifier records relays; online decides NotifyUser's return value.
type fakeNotifier struct {
	mu     sync.Mutex
	sent   []notification
	online map[string]bool
}

func (f *fakeNotifier) NotifyUser(userID string, event models.EventType, data interface{}, durable bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online[userID] {
		return 0
	}
	f.sent = append(f.sent, notification{target: userID, event: event, data: data, durable: durable})
	return 1
}

func (f *fakeNotifier) NotifyRoom(roomID string, event models.EventType, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{target: roomID, event: event, data: data, room: true})
}

func (f *fakeNotifier) events(target string) []models.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EventType
	for _, n := range f.sent {
		if n.target == target {
			out = append(out, n.event)
		}
	}
	return out
}

type fakeRetryQueue struct {
	mu   sync.Mutex
	jobs []CompletionJob
	err  error
}

func (f *fakeRetryQueue) Enqueue(_ context.Context, job CompletionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}
