package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/realtime"
	"github.com/servineo/servineo-api/internal/service"
	"github.com/servineo/servineo-api/internal/utils"
)

// AdminHandler is the admin tier: escalated chat oversight, interventions,
// archive access and report review.
type AdminHandler struct {
	support    service.SupportService
	reports    service.ReportService
	dispatcher *realtime.Dispatcher
	logger     zerolog.Logger
}

// NewAdminHandler constructs an admin handler instance.
func NewAdminHandler(support service.SupportService, reports service.ReportService, dispatcher *realtime.Dispatcher, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		support:    support,
		reports:    reports,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "admin_handler").Logger(),
	}
}

// Register binds the admin routes. The router guards the group with the
// admin role.
func (h *AdminHandler) Register(router fiber.Router) {
	router.Get("/support/escalated", h.escalated)
	router.Post("/support/:id/intervene", h.intervene)
	router.Post("/support/:id/close", h.close)
	router.Post("/support/:id/archive", h.archive)
	router.Get("/support/:id/snapshot", h.snapshot)

	router.Get("/reports", h.listReports)
	router.Get("/reports/:id", h.getReport)
	router.Post("/reports/:id/review", h.reviewReport)
}

func (h *AdminHandler) escalated(c *fiber.Ctx) error {
	chats, err := h.support.EscalatedChats(withRequestContext(c))
	if err != nil {
		return sendAppError(c, err)
	}
	return utils.SendSuccess(c, "escalated support chats", chats)
}

func (h *AdminHandler) intervene(c *fiber.Ctx) error {
	adminID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	chatID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)
	transition, err := h.support.Intervene(ctx, uint(chatID), adminID)
	if err != nil {
		return sendAppError(c, err)
	}

	if h.dispatcher != nil {
		h.dispatcher.DeliverSupportMessage(ctx, transition.Chat, transition.SystemMessage)
	}

	return utils.SendSuccess(c, "intervention recorded", transition.Chat)
}

func (h *AdminHandler) close(c *fiber.Ctx) error {
	adminID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	chatID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)
	transition, err := h.support.Close(ctx, uint(chatID), adminID, actorRole(c))
	if err != nil {
		return sendAppError(c, err)
	}

	if h.dispatcher != nil {
		h.dispatcher.DeliverSupportMessage(ctx, transition.Chat, transition.SystemMessage)
	}

	return utils.SendSuccess(c, "support chat closed", transition.Chat)
}

func (h *AdminHandler) archive(c *fiber.Ctx) error {
	adminID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	chatID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)
	transition, err := h.support.ArchiveAndClose(ctx, uint(chatID), adminID, actorRole(c))
	if err != nil {
		return sendAppError(c, err)
	}

	if h.dispatcher != nil {
		h.dispatcher.DeliverSupportMessage(ctx, transition.Chat, transition.SystemMessage)
	}

	return utils.SendSuccess(c, "support chat archived", transition.Chat)
}

func (h *AdminHandler) snapshot(c *fiber.Ctx) error {
	chatID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	snapshot, err := h.support.Snapshot(withRequestContext(c), uint(chatID))
	if err != nil {
		return sendAppError(c, err)
	}

	return utils.SendSuccess(c, "support chat snapshot", snapshot)
}

func (h *AdminHandler) listReports(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	reports, err := h.reports.List(withRequestContext(c), c.Query("status"), limit, offset)
	if err != nil {
		return sendAppError(c, err)
	}

	return utils.SendSuccess(c, "reports", reports)
}

func (h *AdminHandler) getReport(c *fiber.Ctx) error {
	reportID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.reports.Get(withRequestContext(c), uint(reportID))
	if err != nil {
		return sendAppError(c, err)
	}

	return utils.SendSuccess(c, "report", report)
}

func (h *AdminHandler) reviewReport(c *fiber.Ctx) error {
	adminID, ok := actorID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	reportID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReportReviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	report, err := h.reports.Review(withRequestContext(c), uint(reportID), adminID, payload)
	if err != nil {
		return sendAppError(c, err)
	}

	return utils.SendSuccess(c, "report reviewed", report)
}
