package handlers

import (
	"telehealth/internal/services"
	"telehealth/internal/utils"

	"github.com/gin-gonic/gin"
)

// AuthHandler exposes the caller's own resolved identity. Tokens are
// issued by the main API, so there is no login here.
type AuthHandler struct {
	users    services.UserStore
	presence LocalPresence
}

func NewAuthHandler(users services.UserStore, presence LocalPresence) *AuthHandler {
	return &AuthHandler{users: users, presence: presence}
}

// Me returns the caller's profile as the user store sees it.
func (h *AuthHandler) Me(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}

	user, err := h.users.FindUser(c.Request.Context(), caller.UserID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"user":   user,
		"role":   caller.Role,
		"online": h.presence.IsUserOnline(caller.UserID),
	})
}
