package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/handler"
	"github.com/servineo/servineo-api/internal/models"
	"github.com/servineo/servineo-api/internal/service"
)

type mockSupportService struct {
	chat       dto.SupportChatResponse
	created    bool
	err        error
	lastAction string
}

func (m *mockSupportService) Open(_ context.Context, userID uint, payload dto.SupportChatOpenRequest) (dto.SupportChatResponse, bool, error) {
	m.lastAction = "open"
	if m.err != nil {
		return dto.SupportChatResponse{}, false, m.err
	}
	chat := m.chat
	chat.UserID = userID
	chat.Subject = payload.Subject
	return chat, m.created, nil
}

func (m *mockSupportService) ChatForUser(_ context.Context, userID uint) (dto.SupportChatResponse, error) {
	if m.err != nil {
		return dto.SupportChatResponse{}, m.err
	}
	chat := m.chat
	chat.UserID = userID
	return chat, nil
}

func (m *mockSupportService) Queue(context.Context) ([]dto.SupportChatResponse, error) {
	m.lastAction = "queue"
	return []dto.SupportChatResponse{m.chat}, m.err
}

func (m *mockSupportService) ActiveChats(context.Context) ([]dto.SupportChatResponse, error) {
	return []dto.SupportChatResponse{m.chat}, m.err
}

func (m *mockSupportService) EscalatedChats(context.Context) ([]dto.SupportChatResponse, error) {
	return []dto.SupportChatResponse{m.chat}, m.err
}

func (m *mockSupportService) Messages(context.Context, uint, uint, string, int) ([]dto.SupportMessageResponse, error) {
	return nil, m.err
}

func (m *mockSupportService) SendMessage(_ context.Context, actorID uint, actorRole string, payload dto.SupportMessageSendRequest) (dto.SupportChatResponse, dto.SupportMessageResponse, error) {
	m.lastAction = "send"
	if m.err != nil {
		return dto.SupportChatResponse{}, dto.SupportMessageResponse{}, m.err
	}
	message := dto.SupportMessageResponse{ID: 1, SupportChatID: payload.ChatID, SenderID: &actorID, SenderType: actorRole, Content: payload.Content}
	return m.chat, message, nil
}

func (m *mockSupportService) Assign(_ context.Context, chatID, moderatorID uint) (service.SupportTransition, error) {
	m.lastAction = "assign"
	if m.err != nil {
		return service.SupportTransition{}, m.err
	}
	chat := m.chat
	chat.ID = chatID
	chat.ModeratorID = &moderatorID
	chat.Status = models.SupportStatusAssigned
	return service.SupportTransition{Chat: chat}, nil
}

func (m *mockSupportService) Escalate(_ context.Context, chatID, _ uint, _ dto.SupportEscalateRequest) (service.SupportTransition, error) {
	m.lastAction = "escalate"
	if m.err != nil {
		return service.SupportTransition{}, m.err
	}
	chat := m.chat
	chat.ID = chatID
	chat.Status = models.SupportStatusEscalated
	return service.SupportTransition{Chat: chat}, nil
}

func (m *mockSupportService) Intervene(_ context.Context, chatID, _ uint) (service.SupportTransition, error) {
	m.lastAction = "intervene"
	chat := m.chat
	chat.ID = chatID
	return service.SupportTransition{Chat: chat}, m.err
}

func (m *mockSupportService) Close(_ context.Context, chatID, _ uint, _ string) (service.SupportTransition, error) {
	m.lastAction = "close"
	if m.err != nil {
		return service.SupportTransition{}, m.err
	}
	chat := m.chat
	chat.ID = chatID
	chat.Status = models.SupportStatusClosed
	return service.SupportTransition{Chat: chat}, nil
}

func (m *mockSupportService) ArchiveAndClose(_ context.Context, chatID, _ uint, _ string) (service.SupportTransition, error) {
	m.lastAction = "archive"
	if m.err != nil {
		return service.SupportTransition{}, m.err
	}
	chat := m.chat
	chat.ID = chatID
	chat.Status = models.SupportStatusClosed
	return service.SupportTransition{Chat: chat}, nil
}

func (m *mockSupportService) Snapshot(context.Context, uint) (dto.SupportChatSnapshot, error) {
	return dto.SupportChatSnapshot{}, m.err
}

func newSupportApp(svc service.SupportService, userID uint, role string) *fiber.App {
	logger := zerolog.New(io.Discard)
	app := fiber.New()

	inject := func(c *fiber.Ctx) error {
		if userID > 0 {
			c.Locals("user_id", userID)
			c.Locals("user_role", role)
		}
		return c.Next()
	}

	handler.NewSupportHandler(svc, nil, logger).Register(app.Group("/api/v1/support", inject), nil)
	handler.NewModeratorHandler(svc, nil, logger).Register(app.Group("/api/v1/moderator/support", inject))
	return app
}

func TestSupportHandler_OpenDistinguishesNewFromExisting(t *testing.T) {
	svc := &mockSupportService{chat: dto.SupportChatResponse{ID: 3, Status: models.SupportStatusOpen}, created: true}
	app := newSupportApp(svc, 7, models.RoleClient)

	req := jsonRequest(t, http.MethodPost, "/api/v1/support", dto.SupportChatOpenRequest{Subject: "Payment issue"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var response struct {
		Success bool                    `json:"success"`
		Data    dto.SupportChatResponse `json:"data"`
		Message string                  `json:"message"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, "support chat opened", response.Message)
	require.Equal(t, "Payment issue", response.Data.Subject)

	// Reopening yields the existing chat with a plain 200.
	svc.created = false
	req = jsonRequest(t, http.MethodPost, "/api/v1/support", dto.SupportChatOpenRequest{Subject: "Payment issue"})
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	decodeResponse(t, resp, &response)
	require.Equal(t, "active support chat", response.Message)
}

func TestSupportHandler_SendMessageCarriesActorRole(t *testing.T) {
	svc := &mockSupportService{chat: dto.SupportChatResponse{ID: 3, Status: models.SupportStatusAssigned}}
	app := newSupportApp(svc, 7, models.RoleModerator)

	req := jsonRequest(t, http.MethodPost, "/api/v1/support/messages", dto.SupportMessageSendRequest{ChatID: 3, Content: "checking in"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var response struct {
		Success bool                       `json:"success"`
		Data    dto.SupportMessageResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, models.RoleModerator, response.Data.SenderType)
}

func TestModeratorHandler_AssignConflictSurfacesAs409(t *testing.T) {
	svc := &mockSupportService{err: apperr.Conflict("support chat is not open")}
	app := newSupportApp(svc, 7, models.RoleModerator)

	req := jsonRequest(t, http.MethodPost, "/api/v1/moderator/support/3/assign", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestModeratorHandler_EscalateHappyPath(t *testing.T) {
	svc := &mockSupportService{chat: dto.SupportChatResponse{ID: 3, Status: models.SupportStatusAssigned}}
	app := newSupportApp(svc, 7, models.RoleModerator)

	req := jsonRequest(t, http.MethodPost, "/api/v1/moderator/support/3/escalate", dto.SupportEscalateRequest{Reason: "needs a refund override"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "escalate", svc.lastAction)

	var response struct {
		Success bool                    `json:"success"`
		Data    dto.SupportChatResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, models.SupportStatusEscalated, response.Data.Status)
}

func TestModeratorHandler_QueueRequiresNoBody(t *testing.T) {
	svc := &mockSupportService{chat: dto.SupportChatResponse{ID: 3}}
	app := newSupportApp(svc, 7, models.RoleModerator)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/moderator/support/queue", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "queue", svc.lastAction)
}
