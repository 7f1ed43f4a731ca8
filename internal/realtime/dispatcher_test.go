package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/models"
	"github.com/servineo/servineo-api/internal/observability"
	"github.com/servineo/servineo-api/internal/service"
)

// fakeConn feeds scripted inbound events and captures everything written.
type fakeConn struct {
	inbound chan json.RawMessage
	written chan Event
	done    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan json.RawMessage, 8),
		written: make(chan Event, 16),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v interface{}) error {
	select {
	case payload, ok := <-c.inbound:
		if !ok {
			return context.Canceled
		}
		return json.Unmarshal(payload, v)
	case <-c.done:
		return context.Canceled
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	if event, ok := v.(Event); ok {
		c.written <- event
	}
	return nil
}

func (c *fakeConn) WriteMessage(int, []byte) error { return nil }

func (c *fakeConn) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}

func (c *fakeConn) push(t *testing.T, eventType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	envelope, err := json.Marshal(ClientEvent{Type: eventType, Payload: raw})
	require.NoError(t, err)
	c.inbound <- envelope
}

func (c *fakeConn) expect(t *testing.T, eventType string) Event {
	t.Helper()
	select {
	case event := <-c.written:
		require.Equal(t, eventType, event.Type)
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s event", eventType)
		return Event{}
	}
}

func (c *fakeConn) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case event := <-c.written:
		t.Fatalf("unexpected event %s", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

type stubConversations struct {
	sendErr error
}

func (s *stubConversations) GetOrCreate(context.Context, uint, dto.ConversationCreateRequest) (dto.ConversationResponse, error) {
	return dto.ConversationResponse{}, nil
}

func (s *stubConversations) ListForUser(context.Context, uint) ([]dto.ConversationResponse, error) {
	return nil, nil
}

func (s *stubConversations) SendMessage(_ context.Context, senderID uint, payload dto.MessageSendRequest) (dto.MessageResponse, error) {
	if s.sendErr != nil {
		return dto.MessageResponse{}, s.sendErr
	}
	return dto.MessageResponse{ID: 1, ConversationID: payload.ConversationID, SenderID: senderID, Content: payload.Content}, nil
}

func (s *stubConversations) History(context.Context, uint, dto.MessageHistoryQuery) ([]dto.MessageResponse, error) {
	return nil, nil
}

func (s *stubConversations) MarkRead(context.Context, uint, uint) error { return nil }

func (s *stubConversations) Report(context.Context, uint, uint, dto.ReportCreateRequest) (dto.ReportResponse, error) {
	return dto.ReportResponse{}, nil
}

func (s *stubConversations) Delete(context.Context, uint, uint) error { return nil }

func (s *stubConversations) Participants(_ context.Context, conversationID uint) (service.ConversationParticipants, error) {
	return service.ConversationParticipants{ConversationID: conversationID, ClientUserID: 1, ProfessionalUserID: 2}, nil
}

type stubSupport struct{}

func (s *stubSupport) Open(context.Context, uint, dto.SupportChatOpenRequest) (dto.SupportChatResponse, bool, error) {
	return dto.SupportChatResponse{}, false, nil
}

func (s *stubSupport) ChatForUser(context.Context, uint) (dto.SupportChatResponse, error) {
	return dto.SupportChatResponse{}, nil
}

func (s *stubSupport) Queue(context.Context) ([]dto.SupportChatResponse, error)       { return nil, nil }
func (s *stubSupport) ActiveChats(context.Context) ([]dto.SupportChatResponse, error) { return nil, nil }
func (s *stubSupport) EscalatedChats(context.Context) ([]dto.SupportChatResponse, error) {
	return nil, nil
}

func (s *stubSupport) Messages(context.Context, uint, uint, string, int) ([]dto.SupportMessageResponse, error) {
	return nil, nil
}

func (s *stubSupport) SendMessage(_ context.Context, actorID uint, actorRole string, payload dto.SupportMessageSendRequest) (dto.SupportChatResponse, dto.SupportMessageResponse, error) {
	moderatorID := uint(7)
	chat := dto.SupportChatResponse{ID: payload.ChatID, UserID: 1, ModeratorID: &moderatorID, Status: models.SupportStatusAssigned}
	message := dto.SupportMessageResponse{ID: 1, SupportChatID: payload.ChatID, SenderID: &actorID, SenderType: actorRole, Content: payload.Content}
	return chat, message, nil
}

func (s *stubSupport) Assign(context.Context, uint, uint) (service.SupportTransition, error) {
	return service.SupportTransition{}, nil
}

func (s *stubSupport) Escalate(context.Context, uint, uint, dto.SupportEscalateRequest) (service.SupportTransition, error) {
	return service.SupportTransition{}, nil
}

func (s *stubSupport) Intervene(context.Context, uint, uint) (service.SupportTransition, error) {
	return service.SupportTransition{}, nil
}

func (s *stubSupport) Close(context.Context, uint, uint, string) (service.SupportTransition, error) {
	return service.SupportTransition{}, nil
}

func (s *stubSupport) ArchiveAndClose(context.Context, uint, uint, string) (service.SupportTransition, error) {
	return service.SupportTransition{}, nil
}

func (s *stubSupport) Snapshot(context.Context, uint) (dto.SupportChatSnapshot, error) {
	return dto.SupportChatSnapshot{}, nil
}

type stubNotifications struct{}

func (s *stubNotifications) Publish(_ context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	return dto.NotificationResponse{ID: 1, UserID: payload.UserID, Type: payload.Type, Message: payload.Message}, nil
}

func (s *stubNotifications) List(context.Context, uint, int, int) ([]dto.NotificationResponse, error) {
	return nil, nil
}

func (s *stubNotifications) MarkRead(context.Context, uint, uint) (dto.NotificationResponse, error) {
	return dto.NotificationResponse{}, nil
}

func newTestDispatcher(conversations service.ConversationService) (*Dispatcher, *Registry) {
	registry := NewRegistry(zerolog.Nop())
	dispatcher := NewDispatcher(registry, conversations, &stubSupport{}, &stubNotifications{}, nil, "", nil, zerolog.Nop())
	return dispatcher, registry
}

func TestDispatcherFansOutChatMessage(t *testing.T) {
	dispatcher, registry := newTestDispatcher(&stubConversations{})

	senderConn := newFakeConn()
	recipientConn := newFakeConn()

	recipient := registry.NewSession(recipientConn, 2, models.RoleProfessional, "")
	defer recipient.Close()

	go dispatcher.ServeConnection(senderConn, ConnectionOptions{UserID: 1, Role: models.RoleClient})

	senderConn.push(t, ClientEventChatMessage, dto.MessageSendRequest{ConversationID: 5, Content: "hello"})

	ack := senderConn.expect(t, EventMessageSent)
	sent, ok := ack.Data.(dto.MessageResponse)
	require.True(t, ok)
	require.Equal(t, uint(1), sent.SenderID)

	recipientConn.expect(t, EventNewMessage)
	recipientConn.expect(t, EventNewNotification)

	close(senderConn.inbound)
}

func TestDispatcherOfflineRecipientIsNotAnError(t *testing.T) {
	dispatcher, _ := newTestDispatcher(&stubConversations{})

	senderConn := newFakeConn()
	go dispatcher.ServeConnection(senderConn, ConnectionOptions{UserID: 1, Role: models.RoleClient})

	senderConn.push(t, ClientEventChatMessage, dto.MessageSendRequest{ConversationID: 5, Content: "anyone home?"})
	senderConn.expect(t, EventMessageSent)

	close(senderConn.inbound)
}

func TestDispatcherAcksServiceErrors(t *testing.T) {
	dispatcher, _ := newTestDispatcher(&stubConversations{sendErr: apperr.Authorization("not a participant")})

	senderConn := newFakeConn()
	go dispatcher.ServeConnection(senderConn, ConnectionOptions{UserID: 1, Role: models.RoleClient})

	senderConn.push(t, ClientEventChatMessage, dto.MessageSendRequest{ConversationID: 5, Content: "hi"})

	ack := senderConn.expect(t, EventError)
	data, ok := ack.Data.(ErrorData)
	require.True(t, ok)
	require.Equal(t, "authorization_error", data.Code)

	close(senderConn.inbound)
}

func TestDispatcherAcksUnknownEventTypes(t *testing.T) {
	dispatcher, _ := newTestDispatcher(&stubConversations{})

	senderConn := newFakeConn()
	go dispatcher.ServeConnection(senderConn, ConnectionOptions{UserID: 1, Role: models.RoleClient})

	senderConn.push(t, "telepathy", struct{}{})

	ack := senderConn.expect(t, EventError)
	data, ok := ack.Data.(ErrorData)
	require.True(t, ok)
	require.Equal(t, "validation_error", data.Code)

	close(senderConn.inbound)
}

func TestDispatcherSupportMessageReachesAllTiers(t *testing.T) {
	dispatcher, registry := newTestDispatcher(&stubConversations{})

	requesterConn := newFakeConn()
	moderatorConn := newFakeConn()

	requester := registry.NewSession(requesterConn, 1, models.RoleClient, "")
	defer requester.Close()
	moderator := registry.NewSession(moderatorConn, 7, models.RoleModerator, "")
	defer moderator.Close()

	senderConn := newFakeConn()
	go dispatcher.ServeConnection(senderConn, ConnectionOptions{UserID: 1, Role: models.RoleClient})

	senderConn.push(t, ClientEventSupportMessage, dto.SupportMessageSendRequest{ChatID: 3, Content: "still broken"})

	senderConn.expect(t, EventMessageSent)
	requesterConn.expect(t, EventMessageSent)
	requesterConn.expect(t, EventSupportMessage)
	moderatorConn.expect(t, EventSupportMessage)

	close(senderConn.inbound)
}

func TestDispatcherAcksEverySenderConnection(t *testing.T) {
	dispatcher, registry := newTestDispatcher(&stubConversations{})

	senderConn := newFakeConn()
	otherTabConn := newFakeConn()

	otherTab := registry.NewSession(otherTabConn, 1, models.RoleClient, "")
	defer otherTab.Close()

	go dispatcher.ServeConnection(senderConn, ConnectionOptions{UserID: 1, Role: models.RoleClient})

	senderConn.push(t, ClientEventChatMessage, dto.MessageSendRequest{ConversationID: 5, Content: "hello"})

	senderConn.expect(t, EventMessageSent)
	ack := otherTabConn.expect(t, EventMessageSent)
	sent, ok := ack.Data.(dto.MessageResponse)
	require.True(t, ok)
	require.Equal(t, uint(1), sent.SenderID)
	otherTabConn.expectSilence(t)

	close(senderConn.inbound)
}

func TestDispatcherBridgeSyncsSenderConnections(t *testing.T) {
	dispatcher, registry := newTestDispatcher(&stubConversations{})

	senderTabConn := newFakeConn()
	recipientConn := newFakeConn()

	senderTab := registry.NewSession(senderTabConn, 1, models.RoleClient, "")
	defer senderTab.Close()
	recipient := registry.NewSession(recipientConn, 2, models.RoleProfessional, "")
	defer recipient.Close()

	payload, err := json.Marshal(bridgeEvent{
		Source:      "peer-node",
		Kind:        bridgeKindConversation,
		Message:     &dto.MessageResponse{ID: 9, ConversationID: 5, SenderID: 1, Content: "hello"},
		RecipientID: 2,
	})
	require.NoError(t, err)

	dispatcher.handleBridgeEvent(payload)

	senderTabConn.expect(t, EventMessageSent)
	recipientConn.expect(t, EventNewMessage)
}

func TestDispatcherAnnouncesSupportChatsToModeratorsOnly(t *testing.T) {
	dispatcher, registry := newTestDispatcher(&stubConversations{})

	userConn := newFakeConn()
	moderatorConn := newFakeConn()

	user := registry.NewSession(userConn, 1, models.RoleClient, "")
	defer user.Close()
	moderator := registry.NewSession(moderatorConn, 7, models.RoleModerator, "")
	defer moderator.Close()

	dispatcher.AnnounceSupportChat(context.Background(), dto.SupportChatResponse{ID: 3, UserID: 1, Status: models.SupportStatusOpen})

	moderatorConn.expect(t, EventNewSupportChat)
	userConn.expectSilence(t)
}

func TestDispatcherBridgeCountsOnlyHandledKinds(t *testing.T) {
	dispatcher, registry := newTestDispatcher(&stubConversations{})

	moderatorConn := newFakeConn()
	moderator := registry.NewSession(moderatorConn, 7, models.RoleModerator, "")
	defer moderator.Close()

	unknownCounter := observability.MessagesSent().WithLabelValues("bridge", "carrier_pigeon")
	before := testutil.ToFloat64(unknownCounter)

	payload, err := json.Marshal(bridgeEvent{Source: "peer-node", Kind: "carrier_pigeon"})
	require.NoError(t, err)
	dispatcher.handleBridgeEvent(payload)

	require.Equal(t, before, testutil.ToFloat64(unknownCounter), "unknown kinds must not count as sent")
	moderatorConn.expectSilence(t)

	chatCounter := observability.MessagesSent().WithLabelValues("bridge", bridgeKindSupportChat)
	beforeChat := testutil.ToFloat64(chatCounter)

	payload, err = json.Marshal(bridgeEvent{
		Source: "peer-node",
		Kind:   bridgeKindSupportChat,
		Chat:   &dto.SupportChatResponse{ID: 3, UserID: 1, Status: models.SupportStatusOpen},
	})
	require.NoError(t, err)
	dispatcher.handleBridgeEvent(payload)

	moderatorConn.expect(t, EventNewSupportChat)
	require.Equal(t, beforeChat+1, testutil.ToFloat64(chatCounter))
}

func TestDispatcherModeratorJoinRequiresStaffRole(t *testing.T) {
	dispatcher, _ := newTestDispatcher(&stubConversations{})

	senderConn := newFakeConn()
	go dispatcher.ServeConnection(senderConn, ConnectionOptions{UserID: 1, Role: models.RoleClient})

	senderConn.push(t, ClientEventModeratorJoin, struct{}{})

	ack := senderConn.expect(t, EventError)
	data, ok := ack.Data.(ErrorData)
	require.True(t, ok)
	require.Equal(t, "authorization_error", data.Code)

	close(senderConn.inbound)
}
