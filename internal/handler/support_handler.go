package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/realtime"
	"github.com/servineo/servineo-api/internal/service"
	"github.com/servineo/servineo-api/internal/utils"
)

// SupportHandler is the user-facing surface of the support subsystem.
type SupportHandler struct {
	service    service.SupportService
	dispatcher *realtime.Dispatcher
	logger     zerolog.Logger
}

// NewSupportHandler constructs a support handler instance.
func NewSupportHandler(service service.SupportService, dispatcher *realtime.Dispatcher, logger zerolog.Logger) *SupportHandler {
	return &SupportHandler{
		service:    service,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "support_handler").Logger(),
	}
}

// Register binds the user-facing support routes. Opening a chat is rate
// limited because it is the cheapest way to spam the moderator queue.
func (h *SupportHandler) Register(router fiber.Router, openLimiter fiber.Handler) {
	if openLimiter != nil {
		router.Post("/", openLimiter, h.open)
	} else {
		router.Post("/", h.open)
	}
	router.Get("/", h.current)
	router.Post("/messages", h.sendMessage)
	router.Get("/:id/messages", h.messages)
	router.Post("/:id/close", h.close)
}

func (h *SupportHandler) open(c *fiber.Ctx) error {
	userID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.SupportChatOpenRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx := withRequestContext(c)
	chat, created, err := h.service.Open(ctx, userID, payload)
	if err != nil {
		return sendAppError(c, err)
	}

	if created {
		if h.dispatcher != nil {
			h.dispatcher.AnnounceSupportChat(ctx, chat)
		}
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "support chat opened", chat)
	}

	return utils.SendSuccess(c, "active support chat", chat)
}

func (h *SupportHandler) current(c *fiber.Ctx) error {
	userID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	chat, err := h.service.ChatForUser(withRequestContext(c), userID)
	if err != nil {
		return sendAppError(c, err)
	}

	return utils.SendSuccess(c, "active support chat", chat)
}

func (h *SupportHandler) sendMessage(c *fiber.Ctx) error {
	userID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.SupportMessageSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx := withRequestContext(c)
	chat, message, err := h.service.SendMessage(ctx, userID, actorRole(c), payload)
	if err != nil {
		return sendAppError(c, err)
	}

	if h.dispatcher != nil {
		h.dispatcher.DeliverSupportMessage(ctx, chat, message)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *SupportHandler) messages(c *fiber.Ctx) error {
	userID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	chatID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	messages, err := h.service.Messages(withRequestContext(c), uint(chatID), userID, actorRole(c), limit)
	if err != nil {
		return sendAppError(c, err)
	}

	return utils.SendSuccess(c, "support messages", messages)
}

func (h *SupportHandler) close(c *fiber.Ctx) error {
	userID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	chatID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)
	transition, err := h.service.Close(ctx, uint(chatID), userID, actorRole(c))
	if err != nil {
		return sendAppError(c, err)
	}

	if h.dispatcher != nil {
		h.dispatcher.DeliverSupportMessage(ctx, transition.Chat, transition.SystemMessage)
	}

	return utils.SendSuccess(c, "support chat closed", transition.Chat)
}
