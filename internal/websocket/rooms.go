package websocket

import (
	"sync"

	"telehealth/internal/models"
	"telehealth/pkg/logger"
)

// Rooms relays events between the connections that joined a room.
// Membership is per connection.
type Rooms struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]*Client
	byClient map[string]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms:    make(map[string]map[string]*Client),
		byClient: make(map[string]map[string]struct{}),
	}
}

func peerInfo(roomID string, c *Client) PeerInfo {
	return PeerInfo{
		RoomID:       roomID,
		UserID:       c.UserID(),
		Role:         c.Identity.Role,
		ConnectionID: c.ID,
	}
}

// Join adds c to roomID and announces it to the other members. It returns
// the members present before c joined; joining twice announces nothing.
func (r *Rooms) Join(roomID string, c *Client) ([]PeerInfo, error) {
	r.mu.Lock()
	if c.IsClosed() {
		r.mu.Unlock()
		return nil, ErrClientClosed
	}
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[roomID] = members
	}
	_, already := members[c.ID]
	others := make([]*Client, 0, len(members))
	for id, m := range members {
		if id != c.ID {
			others = append(others, m)
		}
	}
	if !already {
		members[c.ID] = c
		if r.byClient[c.ID] == nil {
			r.byClient[c.ID] = make(map[string]struct{})
		}
		r.byClient[c.ID][roomID] = struct{}{}
	}
	r.mu.Unlock()

	peers := make([]PeerInfo, 0, len(others))
	for _, m := range others {
		peers = append(peers, peerInfo(roomID, m))
	}
	if already {
		return peers, nil
	}

	deliver(others, models.EventPeerJoined, peerInfo(roomID, c), false)
	logger.LogSessionEvent("peer_joined", roomID, c.UserID(), map[string]interface{}{
		"connection_id": c.ID,
		"room_size":     len(others) + 1,
	})
	return peers, nil
}

// Leave removes c from roomID and announces it to the remaining members.
func (r *Rooms) Leave(roomID string, c *Client) bool {
	r.mu.Lock()
	remaining, ok := r.removeLocked(roomID, c)
	r.mu.Unlock()
	if !ok {
		return false
	}

	deliver(remaining, models.EventPeerLeft, peerInfo(roomID, c), false)
	logger.LogSessionEvent("peer_left", roomID, c.UserID(), map[string]interface{}{
		"connection_id": c.ID,
		"room_size":     len(remaining),
	})
	return true
}

// LeaveAll removes c from every room it joined and returns those rooms.
func (r *Rooms) LeaveAll(c *Client) []string {
	type departure struct {
		roomID    string
		remaining []*Client
	}

	r.mu.Lock()
	var left []departure
	for roomID := range r.byClient[c.ID] {
		if remaining, ok := r.removeLocked(roomID, c); ok {
			left = append(left, departure{roomID: roomID, remaining: remaining})
		}
	}
	delete(r.byClient, c.ID)
	r.mu.Unlock()

	roomIDs := make([]string, 0, len(left))
	for _, d := range left {
		deliver(d.remaining, models.EventPeerLeft, peerInfo(d.roomID, c), false)
		roomIDs = append(roomIDs, d.roomID)
	}
	return roomIDs
}

func (r *Rooms) removeLocked(roomID string, c *Client) ([]*Client, bool) {
	members, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	if _, member := members[c.ID]; !member {
		return nil, false
	}
	delete(members, c.ID)
	if rooms := r.byClient[c.ID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.byClient, c.ID)
		}
	}
	if len(members) == 0 {
		delete(r.rooms, roomID)
		return nil, true
	}

	remaining := make([]*Client, 0, len(members))
	for _, m := range members {
		remaining = append(remaining, m)
	}
	return remaining, true
}

// Broadcast delivers event to every member of roomID except exclude, and
// returns how many connections accepted it. An unknown room is a no-op.
func (r *Rooms) Broadcast(roomID string, event models.EventType, data interface{}, exclude *Client) int {
	members := r.Members(roomID)
	if exclude != nil {
		for i, m := range members {
			if m.ID == exclude.ID {
				members = append(members[:i], members[i+1:]...)
				break
			}
		}
	}
	return deliver(members, event, data, false)
}

// Members returns a snapshot of roomID's connections.
func (r *Rooms) Members(roomID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]*Client, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out
}

func (r *Rooms) IsMember(roomID string, c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][c.ID]
	return ok
}

// HasUser reports whether any connection of userID is still in roomID.
func (r *Rooms) HasUser(roomID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.rooms[roomID] {
		if m.UserID() == userID {
			return true
		}
	}
	return false
}

// RoomsOf lists the rooms c belongs to.
func (r *Rooms) RoomsOf(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byClient[c.ID]))
	for roomID := range r.byClient[c.ID] {
		out = append(out, roomID)
	}
	return out
}

// RoomCount returns the number of non-empty rooms and their total membership.
func (r *Rooms) RoomCount() (rooms, members int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.rooms {
		members += len(m)
	}
	return len(r.rooms), members
}

// deliver encodes once and pushes to each client. It runs on the caller's
// goroutine so a sender's events reach each recipient in send order.
func deliver(clients []*Client, event models.EventType, data interface{}, durable bool) int {
	if len(clients) == 0 {
		return 0
	}
	raw, err := Encode(event, "", data)
	if err != nil {
		logger.WithError(err).WithField("event", event).Error("Failed to encode broadcast")
		return 0
	}
	n := 0
	for _, c := range clients {
		if c.outbox.Push(raw, durable) {
			n++
		}
	}
	return n
}
