package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/realtime"
	"github.com/servineo/servineo-api/internal/service"
	"github.com/servineo/servineo-api/internal/utils"
)

// ModeratorHandler is the staff surface for the moderator tier: queue
// inspection, assignment, escalation and archival.
type ModeratorHandler struct {
	service    service.SupportService
	dispatcher *realtime.Dispatcher
	logger     zerolog.Logger
}

// NewModeratorHandler constructs a moderator handler instance.
func NewModeratorHandler(service service.SupportService, dispatcher *realtime.Dispatcher, logger zerolog.Logger) *ModeratorHandler {
	return &ModeratorHandler{
		service:    service,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "moderator_handler").Logger(),
	}
}

// Register binds the moderator routes. The router guards the group with the
// moderator role.
func (h *ModeratorHandler) Register(router fiber.Router) {
	router.Get("/queue", h.queue)
	router.Get("/active", h.active)
	router.Post("/:id/assign", h.assign)
	router.Post("/:id/escalate", h.escalate)
	router.Post("/:id/archive", h.archive)
}

func (h *ModeratorHandler) queue(c *fiber.Ctx) error {
	chats, err := h.service.Queue(withRequestContext(c))
	if err != nil {
		return sendAppError(c, err)
	}
	return utils.SendSuccess(c, "support queue", chats)
}

func (h *ModeratorHandler) active(c *fiber.Ctx) error {
	chats, err := h.service.ActiveChats(withRequestContext(c))
	if err != nil {
		return sendAppError(c, err)
	}
	return utils.SendSuccess(c, "active support chats", chats)
}

func (h *ModeratorHandler) assign(c *fiber.Ctx) error {
	moderatorID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	chatID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)
	transition, err := h.service.Assign(ctx, uint(chatID), moderatorID)
	if err != nil {
		return sendAppError(c, err)
	}

	if h.dispatcher != nil {
		h.dispatcher.DeliverSupportMessage(ctx, transition.Chat, transition.SystemMessage)
	}

	return utils.SendSuccess(c, "support chat assigned", transition.Chat)
}

func (h *ModeratorHandler) escalate(c *fiber.Ctx) error {
	moderatorID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	chatID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SupportEscalateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx := withRequestContext(c)
	transition, err := h.service.Escalate(ctx, uint(chatID), moderatorID, payload)
	if err != nil {
		return sendAppError(c, err)
	}

	if h.dispatcher != nil {
		h.dispatcher.DeliverSupportMessage(ctx, transition.Chat, transition.SystemMessage)
		h.dispatcher.AnnounceSupportChat(ctx, transition.Chat)
	}

	return utils.SendSuccess(c, "support chat escalated", transition.Chat)
}

func (h *ModeratorHandler) archive(c *fiber.Ctx) error {
	moderatorID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	chatID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)
	transition, err := h.service.ArchiveAndClose(ctx, uint(chatID), moderatorID, actorRole(c))
	if err != nil {
		return sendAppError(c, err)
	}

	if h.dispatcher != nil {
		h.dispatcher.DeliverSupportMessage(ctx, transition.Chat, transition.SystemMessage)
	}

	return utils.SendSuccess(c, "support chat archived", transition.Chat)
}
