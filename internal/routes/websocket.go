package routes

import (
	"telehealth/internal/handlers"

	"github.com/gin-gonic/gin"
)

func SetupWebSocketRoutes(router *gin.Engine, wsHandler *handlers.WebSocketHandler, auth gin.HandlerFunc) {
	// One socket per connection carries presence, rooms, chat and sessions
	router.GET("/ws", auth, wsHandler.HandleWebSocket)
}
