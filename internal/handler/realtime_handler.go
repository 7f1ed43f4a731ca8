package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/servineo/servineo-api/internal/middleware"
	"github.com/servineo/servineo-api/internal/models"
	"github.com/servineo/servineo-api/internal/realtime"
)

// RealtimeHandler performs the websocket upgrade and hands authenticated
// connections to the dispatcher.
type RealtimeHandler struct {
	dispatcher *realtime.Dispatcher
	logger     zerolog.Logger
}

// NewRealtimeHandler constructs a realtime handler instance.
func NewRealtimeHandler(dispatcher *realtime.Dispatcher, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group. The
// JWT middleware must already have run so the upgrade carries an identity.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	userID, ok := conn.Locals("user_id").(uint)
	if !ok || userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "user id missing"))
		_ = conn.Close()
		return
	}

	role, _ := conn.Locals("user_role").(string)
	if role == "" {
		role = models.RoleClient
	}
	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := realtime.ConnectionOptions{
		UserID:        userID,
		Role:          role,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Uint("user_id", userID).Str("role", role).Msg("realtime websocket connected")
	h.dispatcher.ServeConnection(conn, opts)
	h.logger.Info().Uint("user_id", userID).Str("role", role).Msg("realtime websocket disconnected")
}
