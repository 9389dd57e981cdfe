package routes

import (
	"telehealth/internal/handlers"
	"telehealth/internal/middleware"

	"github.com/gin-gonic/gin"
)

func SetupAdminRoutes(v1 *gin.RouterGroup, adminHandler *handlers.AdminHandler) {
	admin := v1.Group("/admin")
	admin.Use(middleware.AdminOnly(), middleware.AdminSecurityHeaders(), middleware.AdminActivityLogger())
	{
		// Live hub counters plus store totals
		admin.GET("/realtime", adminHandler.GetRealtimeStats)
		admin.GET("/realtime/connections", adminHandler.GetConnections)
	}
}
