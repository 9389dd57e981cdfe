package routes

import (
	"telehealth/internal/handlers"

	"github.com/gin-gonic/gin"
)

func SetupAuthRoutes(v1 *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	auth := v1.Group("/auth")
	{
		auth.GET("/me", authHandler.Me)
	}
}
