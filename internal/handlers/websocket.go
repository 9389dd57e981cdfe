package handlers

import (
	"net/http"

	"telehealth/internal/config"
	"telehealth/internal/middleware"
	"telehealth/internal/websocket"
	"telehealth/pkg/logger"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	gateway   *websocket.Gateway
	upgrader  gorillaws.Upgrader
	wsConfig  config.WebSocketConfig
	rateLimit int
}

func NewWebSocketHandler(gateway *websocket.Gateway, wsConfig config.WebSocketConfig, messagesPerMinute int) *WebSocketHandler {
	return &WebSocketHandler{
		gateway: gateway,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  wsConfig.ReadBufferSize,
			WriteBufferSize: wsConfig.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// non-browser clients send no origin
				if origin == "" || len(wsConfig.AllowedOrigins) == 0 {
					return true
				}
				return middleware.IsOriginAllowed(origin, wsConfig.AllowedOrigins)
			},
		},
		wsConfig:  wsConfig,
		rateLimit: messagesPerMinute,
	}
}

// HandleWebSocket upgrades an authenticated request and serves the
// connection until it closes.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).Warn("Failed to upgrade WebSocket connection")
		return
	}

	client := websocket.NewClient(conn, caller, h.wsConfig, h.rateLimit)
	client.IP = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	h.gateway.Serve(c.Request.Context(), client)
}
