package handlers

import (
	"context"
	"time"

	"telehealth/internal/models"
	"telehealth/internal/utils"
	"telehealth/internal/websocket"
	"telehealth/pkg/database"
	"telehealth/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SessionCounter and MessageCounter back the admin realtime view.
type SessionCounter interface {
	CountByStatus(ctx context.Context) (map[models.SessionStatus]int64, error)
}

type MessageCounter interface {
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

type AdminHandler struct {
	hub      *websocket.Hub
	sessions SessionCounter
	messages MessageCounter
}

func NewAdminHandler(hub *websocket.Hub, sessions SessionCounter, messages MessageCounter) *AdminHandler {
	return &AdminHandler{hub: hub, sessions: sessions, messages: messages}
}

// GetRealtimeStats combines the hub's live counters with store totals.
// Store failures degrade to live counters only.
func (h *AdminHandler) GetRealtimeStats(c *gin.Context) {
	stats := gin.H{"hub": h.hub.GetStats()}

	if h.sessions != nil {
		if counts, err := h.sessions.CountByStatus(c.Request.Context()); err != nil {
			logger.WithError(err).Warn("Failed to count sessions for admin stats")
		} else {
			stats["sessions_by_status"] = counts
		}
	}
	if h.messages != nil {
		if n, err := h.messages.CountSince(c.Request.Context(), time.Now().Add(-24*time.Hour)); err != nil {
			logger.WithError(err).Warn("Failed to count messages for admin stats")
		} else {
			stats["messages_last_24h"] = n
		}
	}

	utils.SuccessResponse(c, stats)
}

func (h *AdminHandler) GetConnections(c *gin.Context) {
	utils.SuccessResponse(c, h.hub.Connections())
}

// Health reports process and database status.
func Health(c *gin.Context) {
	utils.SuccessResponse(c, gin.H{
		"status":   "ok",
		"time":     time.Now(),
		"database": database.HealthCheck(c.Request.Context()),
	})
}
