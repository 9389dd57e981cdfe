package routes

import (
	"telehealth/internal/handlers"
	"telehealth/internal/middleware"
	"telehealth/internal/models"

	"github.com/gin-gonic/gin"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Sessions  *handlers.SessionHandler
	Chat      *handlers.ChatHandler
	Presence  *handlers.PresenceHandler
	Admin     *handlers.AdminHandler
	WebSocket *handlers.WebSocketHandler
}

func SetupRoutes(router *gin.Engine, h Handlers, verifier middleware.CredentialVerifier, limiter *middleware.RateLimiter) {
	// Health check
	router.GET("/health", handlers.Health)

	auth := middleware.Auth(verifier)

	v1 := router.Group("/api/v1")
	v1.Use(auth, middleware.RateLimit(limiter))
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", middleware.RequireRole(models.RolePatient, models.RoleTherapist), h.Sessions.CreateSession)
			sessions.GET("", h.Sessions.ListSessions)
			sessions.GET("/:room_id", h.Sessions.GetSession)
			sessions.POST("/:room_id/join", h.Sessions.JoinSession)
			sessions.POST("/:room_id/leave", h.Sessions.LeaveSession)
			sessions.PUT("/:room_id/status", h.Sessions.SetStatus)
			sessions.PUT("/:room_id/notes", h.Sessions.UpdateNotes)
			sessions.POST("/:room_id/issues", h.Sessions.ReportIssue)
			sessions.PUT("/:room_id/recording-consent", h.Sessions.SetRecordingConsent)
			sessions.PUT("/:room_id/quality", h.Sessions.UpdateQuality)
		}

		v1.GET("/appointments/:appointment_id/session", h.Sessions.GetByAppointment)

		messages := v1.Group("/messages")
		{
			messages.POST("", h.Chat.SendMessage)
			messages.PUT("/:id", h.Chat.EditMessage)
			messages.DELETE("/:id", h.Chat.DeleteMessage)
			messages.POST("/typing", h.Chat.Typing)
			messages.GET("/unread-count", h.Chat.UnreadCount)
			messages.GET("/conversations", h.Chat.ListConversations)
			messages.GET("/conversations/:user_id", h.Chat.GetConversation)
			messages.POST("/read/:conversation_id", h.Chat.MarkRead)
		}

		v1.GET("/presence/:user_id", h.Presence.GetPresence)
	}

	SetupAuthRoutes(v1, h.Auth)
	SetupAdminRoutes(v1, h.Admin)

	SetupWebSocketRoutes(router, h.WebSocket, auth)
}
