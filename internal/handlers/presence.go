package handlers

import (
	"context"

	"telehealth/internal/utils"
	"telehealth/pkg/logger"

	"github.com/gin-gonic/gin"
)

// LocalPresence answers for connections held by this node.
type LocalPresence interface {
	IsUserOnline(userID string) bool
}

// SharedPresence answers for every node; it is nil when Redis is disabled.
type SharedPresence interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type PresenceHandler struct {
	local  LocalPresence
	shared SharedPresence
}

func NewPresenceHandler(local LocalPresence, shared SharedPresence) *PresenceHandler {
	return &PresenceHandler{local: local, shared: shared}
}

// GetPresence reports whether :user_id has a live connection anywhere.
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	userID := c.Param("user_id")

	online := h.local.IsUserOnline(userID)
	source := "local"
	if !online && h.shared != nil {
		shared, err := h.shared.IsOnline(c.Request.Context(), userID)
		if err != nil {
			logger.WithError(err).WithField("user_id", userID).Warn("Shared presence lookup failed")
		} else if shared {
			online = true
			source = "cluster"
		}
	}

	utils.SuccessResponse(c, gin.H{
		"user_id": userID,
		"online":  online,
		"source":  source,
	})
}
