package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/realtime"
	"github.com/servineo/servineo-api/internal/service"
	"github.com/servineo/servineo-api/internal/utils"
)

// ConversationHandler exposes the REST fallback surface for conversations.
// Every message posted here is persisted first; connected counterparts get a
// best-effort realtime push on top.
type ConversationHandler struct {
	service    service.ConversationService
	dispatcher *realtime.Dispatcher
	logger     zerolog.Logger
}

// NewConversationHandler constructs a conversation handler instance.
func NewConversationHandler(service service.ConversationService, dispatcher *realtime.Dispatcher, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		service:    service,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "conversation_handler").Logger(),
	}
}

// Register binds the conversation routes. The report route gets its rate
// limiter attached at the router level.
func (h *ConversationHandler) Register(router fiber.Router, reportLimiter fiber.Handler) {
	router.Post("/", h.open)
	router.Get("/", h.list)
	router.Post("/messages", h.sendMessage)
	router.Get("/:id/messages", h.history)
	router.Post("/:id/read", h.markRead)
	router.Delete("/:id", h.remove)

	if reportLimiter != nil {
		router.Post("/:id/report", reportLimiter, h.report)
	} else {
		router.Post("/:id/report", h.report)
	}
}

func (h *ConversationHandler) open(c *fiber.Ctx) error {
	userID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.ConversationCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	conversation, err := h.service.GetOrCreate(withRequestContext(c), userID, payload)
	if err != nil {
		return sendAppError(c, err)
	}

	return utils.SendSuccess(c, "conversation", conversation)
}

func (h *ConversationHandler) list(c *fiber.Ctx) error {
	userID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	conversations, err := h.service.ListForUser(withRequestContext(c), userID)
	if err != nil {
		return sendAppError(c, err)
	}

	return utils.SendSuccess(c, "conversations", conversations)
}

func (h *ConversationHandler) sendMessage(c *fiber.Ctx) error {
	userID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.MessageSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx := withRequestContext(c)
	message, err := h.service.SendMessage(ctx, userID, payload)
	if err != nil {
		return sendAppError(c, err)
	}

	if h.dispatcher != nil {
		h.dispatcher.DeliverConversationMessage(ctx, message)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ConversationHandler) history(c *fiber.Ctx) error {
	userID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	conversationID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var afterPtr *time.Time
	if after := c.Query("after"); after != "" {
		parsed, err := time.Parse(time.RFC3339, after)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid after timestamp")
		}
		afterPtr = &parsed
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.MessageHistoryQuery{
		ConversationID: uint(conversationID),
		After:          afterPtr,
		Limit:          limit,
	}

	messages, err := h.service.History(withRequestContext(c), userID, query)
	if err != nil {
		return sendAppError(c, err)
	}

	return utils.SendSuccess(c, "messages", messages)
}

func (h *ConversationHandler) markRead(c *fiber.Ctx) error {
	userID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	conversationID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.MarkRead(withRequestContext(c), userID, uint(conversationID)); err != nil {
		return sendAppError(c, err)
	}

	return utils.SendSuccess(c, "messages marked read", nil)
}

func (h *ConversationHandler) report(c *fiber.Ctx) error {
	userID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	conversationID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReportCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	report, err := h.service.Report(withRequestContext(c), userID, uint(conversationID), payload)
	if err != nil {
		return sendAppError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "report submitted", report)
}

func (h *ConversationHandler) remove(c *fiber.Ctx) error {
	userID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	conversationID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(withRequestContext(c), userID, uint(conversationID)); err != nil {
		return sendAppError(c, err)
	}

	return utils.SendSuccess(c, "conversation deleted", nil)
}
