package handler

import (
	"fingerprint-be/internal/pkg/logger"
	internalWS "fingerprint-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// NotificationHandler upgrades websocket connections that watch capture
// progress events.
type NotificationHandler struct {
	hub    *internalWS.Hub
	logger logger.ILogger
}

func NewNotificationHandler(hub *internalWS.Hub, log logger.ILogger) *NotificationHandler {
	return &NotificationHandler{
		hub:    hub,
		logger: log,
	}
}

// ServeWs handles websocket requests from the peer. The optional "subject"
// query parameter scopes the stream to one registration id; omitted means
// all events.
func (h *NotificationHandler) ServeWs(c *fiber.Ctx) error {
	subject := c.Query("subject")
	if subject == "" {
		subject = "*"
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("NotificationHandler", "Starting WebSocket session", map[string]interface{}{"subject": subject})
			internalWS.ServeWs(h.hub, conn, subject)
			h.logger.Info("NotificationHandler", "WebSocket session ended", map[string]interface{}{"subject": subject})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// RegisterRoutes registers the websocket endpoint.
func (h *NotificationHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws/fingerprint", h.ServeWs)
}
