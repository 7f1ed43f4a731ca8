package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/middleware"
	"github.com/servineo/servineo-api/internal/models"
	"github.com/servineo/servineo-api/internal/utils"
)

// sendAppError maps a classified service error onto the REST response shape.
func sendAppError(c *fiber.Ctx, err error) error {
	return utils.SendError(c, apperr.HTTPStatus(err), apperr.Message(err))
}

func withRequestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

// actorID returns the authenticated identity set by the JWT middleware.
func actorID(c *fiber.Ctx) (uint, bool) {
	if value, ok := c.Locals("user_id").(uint); ok && value > 0 {
		return value, true
	}
	return 0, false
}

func actorRole(c *fiber.Ctx) string {
	if value, ok := c.Locals("user_role").(string); ok {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return models.RoleClient
}

func parseUintParamValue(c *fiber.Ctx, key string) (uint64, error) {
	value := strings.TrimSpace(c.Params(key))
	if value == "" {
		return 0, fmt.Errorf("%s required", key)
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}
