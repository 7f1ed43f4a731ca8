package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/servineo/servineo-api/internal/config"
	"github.com/servineo/servineo-api/internal/handler"
	"github.com/servineo/servineo-api/internal/middleware"
	"github.com/servineo/servineo-api/internal/models"
	"github.com/servineo/servineo-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ConversationHandler *handler.ConversationHandler
	SupportHandler      *handler.SupportHandler
	ModeratorHandler    *handler.ModeratorHandler
	AdminHandler        *handler.AdminHandler
	NotificationHandler *handler.NotificationHandler
	RealtimeHandler     *handler.RealtimeHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.ConversationHandler != nil {
		conversations := api.Group("/conversations", jwtMiddleware)
		reportLimiter := middleware.RateLimit("report", cfg.ReportRateMax, cfg.ReportRateWindow)
		deps.ConversationHandler.Register(conversations, reportLimiter)
	}

	if deps.SupportHandler != nil {
		support := api.Group("/support", jwtMiddleware)
		openLimiter := middleware.RateLimit("support_open", cfg.ReportRateMax, cfg.ReportRateWindow)
		deps.SupportHandler.Register(support, openLimiter)
	}

	if deps.ModeratorHandler != nil {
		moderator := api.Group("/moderator/support", jwtMiddleware, middleware.RequireRole(models.RoleModerator, models.RoleAdmin))
		deps.ModeratorHandler.Register(moderator)
	}

	if deps.AdminHandler != nil {
		admin := api.Group("/admin", jwtMiddleware, middleware.RequireRole(models.RoleAdmin))
		deps.AdminHandler.Register(admin)
	}

	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.RealtimeHandler != nil {
		realtime := api.Group("/realtime", jwtMiddleware)
		deps.RealtimeHandler.Register(realtime)
	}
}
