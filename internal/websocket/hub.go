package websocket

import (
	"context"
	"sync"
	"time"

	"telehealth/internal/models"
	"telehealth/pkg/logger"
)

// PresenceMirror publishes this node's presence to a shared store.
type PresenceMirror interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	Refresh(ctx context.Context, userIDs []string) error
}

type HubConfig struct {
	StatsEvery  time.Duration
	SweepEvery  time.Duration
	MirrorEvery time.Duration
	IdleTimeout time.Duration
}

type mirrorUpdate struct {
	userID string
	online bool
}

// Hub owns the presence registry and the room relay for this node.
type Hub struct {
	presence *Presence
	rooms    *Rooms

	mirror  PresenceMirror
	updates chan mirrorUpdate

	cfg       HubConfig
	startedAt time.Time

	stats   HubStats
	statsMu sync.RWMutex
}

// HubStats contains hub statistics
type HubStats struct {
	OnlineUsers     int       `json:"online_users"`
	Connections     int       `json:"connections"`
	ActiveRooms     int       `json:"active_rooms"`
	RoomMembers     int       `json:"room_members"`
	DroppedEvents   int64     `json:"dropped_events"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
	MirrorQueueSize int       `json:"mirror_queue_size"`
	LastUpdated     time.Time `json:"last_updated"`
}

// NewHub creates a hub. mirror may be nil.
func NewHub(mirror PresenceMirror, cfg HubConfig) *Hub {
	if cfg.StatsEvery <= 0 {
		cfg.StatsEvery = 30 * time.Second
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 5 * time.Minute
	}
	if cfg.MirrorEvery <= 0 {
		cfg.MirrorEvery = 30 * time.Second
	}
	h := &Hub{
		presence:  NewPresence(),
		rooms:     NewRooms(),
		mirror:    mirror,
		updates:   make(chan mirrorUpdate, 1024),
		cfg:       cfg,
		startedAt: time.Now(),
	}
	h.updateStats()
	return h
}

func (h *Hub) Presence() *Presence { return h.presence }
func (h *Hub) Rooms() *Rooms       { return h.rooms }

// Connect registers c and greets it.
func (h *Hub) Connect(c *Client) error {
	online, err := h.presence.Register(c)
	if err != nil {
		return err
	}
	if online {
		h.queueMirror(c.UserID(), true)
	}

	logger.LogUserAction(c.UserID(), "websocket_connected", map[string]interface{}{
		"connection_id": c.ID,
		"ip":            c.IP,
		"user_agent":    c.UserAgent,
	})

	c.Send(models.EventConnected, "", map[string]interface{}{
		"connection_id": c.ID,
		"user_id":       c.UserID(),
		"role":          c.Identity.Role,
		"server_time":   time.Now(),
	}, false)
	return nil
}

// Disconnect tears c down: no event is queued for it once this starts, its
// rooms see peer_left, then presence forgets it. It returns the rooms left.
func (h *Hub) Disconnect(c *Client) []string {
	c.Close()
	left := h.rooms.LeaveAll(c)
	if h.presence.Unregister(c) {
		h.queueMirror(c.UserID(), false)
	}

	logger.LogUserAction(c.UserID(), "websocket_disconnected", map[string]interface{}{
		"connection_id":    c.ID,
		"duration_seconds": time.Since(c.ConnectedAt).Seconds(),
		"rooms_left":       len(left),
	})
	return left
}

// NotifyUser delivers an event to every live connection of userID and
// returns how many accepted it. Offline users are not an error.
func (h *Hub) NotifyUser(userID string, event models.EventType, data interface{}, durable bool) int {
	return deliver(h.presence.Lookup(userID), event, data, durable)
}

// NotifyRoom delivers an event to every member of roomID.
func (h *Hub) NotifyRoom(roomID string, event models.EventType, data interface{}) {
	h.rooms.Broadcast(roomID, event, data, nil)
}

func (h *Hub) IsUserOnline(userID string) bool {
	return h.presence.IsOnline(userID)
}

func (h *Hub) queueMirror(userID string, online bool) {
	if h.mirror == nil {
		return
	}
	select {
	case h.updates <- mirrorUpdate{userID: userID, online: online}:
	default:
		logger.WithField("user_id", userID).Warn("Presence mirror queue full, update dropped")
	}
}

// Run drives the hub's background work until ctx is cancelled, then closes
// every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	go h.runMirror(ctx)

	statsTicker := time.NewTicker(h.cfg.StatsEvery)
	sweepTicker := time.NewTicker(h.cfg.SweepEvery)
	mirrorTicker := time.NewTicker(h.cfg.MirrorEvery)
	defer func() {
		statsTicker.Stop()
		sweepTicker.Stop()
		mirrorTicker.Stop()
	}()

	logger.Info("WebSocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case <-statsTicker.C:
			h.updateStats()

		case <-sweepTicker.C:
			h.sweepIdle()

		case <-mirrorTicker.C:
			h.refreshMirror(ctx)
		}
	}
}

// runMirror applies presence transitions in order, one at a time.
func (h *Hub) runMirror(ctx context.Context) {
	if h.mirror == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-h.updates:
			opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			var err error
			if u.online {
				err = h.mirror.MarkOnline(opCtx, u.userID)
			} else {
				err = h.mirror.MarkOffline(opCtx, u.userID)
			}
			cancel()
			if err != nil {
				logger.WithError(err).WithField("user_id", u.userID).Warn("Presence mirror update failed")
			}
		}
	}
}

func (h *Hub) refreshMirror(ctx context.Context) {
	if h.mirror == nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.mirror.Refresh(opCtx, h.presence.OnlineUsers()); err != nil {
		logger.WithError(err).Warn("Presence mirror refresh failed")
	}
}

// sweepIdle closes connections that have been silent past the idle timeout.
// The read pump then runs the normal disconnect path.
func (h *Hub) sweepIdle() {
	if h.cfg.IdleTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-h.cfg.IdleTimeout)
	for _, c := range h.presence.All() {
		if c.LastSeen().Before(cutoff) {
			logger.WithFields(map[string]interface{}{
				"user_id":       c.UserID(),
				"connection_id": c.ID,
				"last_seen":     c.LastSeen(),
			}).Info("Closing idle connection")
			c.Close()
		}
	}
}

func (h *Hub) shutdown() {
	clients := h.presence.All()
	for _, c := range clients {
		c.Close()
	}
	logger.WithField("connections", len(clients)).Info("WebSocket hub stopped")
}

func (h *Hub) updateStats() {
	users, conns := h.presence.Count()
	rooms, members := h.rooms.RoomCount()

	var dropped int64
	for _, c := range h.presence.All() {
		dropped += c.outbox.Dropped()
	}

	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	h.stats = HubStats{
		OnlineUsers:     users,
		Connections:     conns,
		ActiveRooms:     rooms,
		RoomMembers:     members,
		DroppedEvents:   dropped,
		UptimeSeconds:   time.Since(h.startedAt).Seconds(),
		MirrorQueueSize: len(h.updates),
		LastUpdated:     time.Now(),
	}
}

// GetStats returns the latest statistics, refreshed on demand.
func (h *Hub) GetStats() HubStats {
	h.updateStats()
	h.statsMu.RLock()
	defer h.statsMu.RUnlock()
	return h.stats
}

// Connections returns the admin view of every live connection.
func (h *Hub) Connections() []map[string]interface{} {
	clients := h.presence.All()
	out := make([]map[string]interface{}, 0, len(clients))
	for _, c := range clients {
		info := c.Info()
		info["rooms"] = h.rooms.RoomsOf(c)
		out = append(out, info)
	}
	return out
}
