package websocket

import (
	"errors"
	"sync"
)

// ErrClientClosed rejects registration of a connection already torn down.
var ErrClientClosed = errors.New("client closed")

// Presence tracks the live connections of every online identity on this node.
type Presence struct {
	mu    sync.RWMutex
	users map[string]map[string]*Client
}

func NewPresence() *Presence {
	return &Presence{users: make(map[string]map[string]*Client)}
}

// Register adds c to its owner's live set. online is true when this was the
// owner's first connection. Registering twice is a no-op.
func (p *Presence) Register(c *Client) (online bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.IsClosed() {
		return false, ErrClientClosed
	}
	conns, ok := p.users[c.UserID()]
	if !ok {
		conns = make(map[string]*Client)
		p.users[c.UserID()] = conns
	}
	if _, exists := conns[c.ID]; exists {
		return false, nil
	}
	conns[c.ID] = c
	return len(conns) == 1, nil
}

// Unregister removes c. offline is true when c was the owner's last
// connection. Unknown clients are ignored.
func (p *Presence) Unregister(c *Client) (offline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[c.UserID()]
	if !ok {
		return false
	}
	if _, exists := conns[c.ID]; !exists {
		return false
	}
	delete(conns, c.ID)
	if len(conns) == 0 {
		delete(p.users, c.UserID())
		return true
	}
	return false
}

// Lookup returns a snapshot of userID's live connections.
func (p *Presence) Lookup(userID string) []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns := p.users[userID]
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users[userID]) > 0
}

func (p *Presence) OnlineUsers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	users := make([]string, 0, len(p.users))
	for id := range p.users {
		users = append(users, id)
	}
	return users
}

// All returns a snapshot of every live connection.
func (p *Presence) All() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Client
	for _, conns := range p.users {
		for _, c := range conns {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of online identities and live connections.
func (p *Presence) Count() (users, connections int) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, conns := range p.users {
		connections += len(conns)
	}
	return len(p.users), connections
}
