package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/models"
	"github.com/servineo/servineo-api/internal/repository"
)

type stubSupportRepo struct {
	chats    map[uint]models.SupportChat
	messages []models.SupportMessage
	archived map[uint]bool
	nextID   uint
}

func newStubSupportRepo() *stubSupportRepo {
	return &stubSupportRepo{chats: make(map[uint]models.SupportChat), archived: make(map[uint]bool)}
}

func (s *stubSupportRepo) FindByID(_ context.Context, id uint) (models.SupportChat, error) {
	chat, ok := s.chats[id]
	if !ok {
		return models.SupportChat{}, apperr.NotFound("support chat %d not found", id)
	}
	return chat, nil
}

func (s *stubSupportRepo) FindActiveByUser(_ context.Context, userID uint) (models.SupportChat, error) {
	for _, chat := range s.chats {
		if chat.UserID == userID && chat.Status != models.SupportStatusClosed {
			return chat, nil
		}
	}
	return models.SupportChat{}, apperr.NotFound("no active support chat for user %d", userID)
}

func (s *stubSupportRepo) Create(_ context.Context, chat *models.SupportChat) error {
	s.nextID++
	chat.ID = s.nextID
	if chat.Status == "" {
		chat.Status = models.SupportStatusOpen
	}
	if chat.Priority == "" {
		chat.Priority = models.SupportPriorityNormal
	}
	chat.LastMessageAt = time.Now().UTC()
	s.chats[chat.ID] = *chat
	return nil
}

func (s *stubSupportRepo) ListByStatus(_ context.Context, statuses ...string) ([]models.SupportChat, error) {
	var out []models.SupportChat
	for _, chat := range s.chats {
		for _, status := range statuses {
			if chat.Status == status {
				out = append(out, chat)
			}
		}
	}
	return out, nil
}

func (s *stubSupportRepo) Assign(_ context.Context, chatID, moderatorID uint) (models.SupportChat, error) {
	chat, ok := s.chats[chatID]
	if !ok {
		return models.SupportChat{}, apperr.NotFound("support chat %d not found", chatID)
	}
	if chat.Status != models.SupportStatusOpen {
		return models.SupportChat{}, apperr.Conflict("chat is not open for assignment")
	}
	chat.Status = models.SupportStatusAssigned
	chat.ModeratorID = &moderatorID
	s.chats[chatID] = chat
	return chat, nil
}

func (s *stubSupportRepo) Escalate(_ context.Context, chatID, moderatorID uint) (models.SupportChat, error) {
	chat, ok := s.chats[chatID]
	if !ok {
		return models.SupportChat{}, apperr.NotFound("support chat %d not found", chatID)
	}
	if chat.Status != models.SupportStatusAssigned {
		return models.SupportChat{}, apperr.Conflict("chat cannot be escalated")
	}
	if chat.ModeratorID == nil || *chat.ModeratorID != moderatorID {
		return models.SupportChat{}, apperr.Authorization("only the assigned moderator may escalate")
	}
	chat.Status = models.SupportStatusEscalated
	chat.AdminIntervened = true
	s.chats[chatID] = chat
	return chat, nil
}

func (s *stubSupportRepo) Intervene(_ context.Context, chatID, adminID uint) (models.SupportChat, error) {
	chat, ok := s.chats[chatID]
	if !ok {
		return models.SupportChat{}, apperr.NotFound("support chat %d not found", chatID)
	}
	if chat.Status == models.SupportStatusClosed {
		return models.SupportChat{}, apperr.Conflict("cannot intervene on a closed chat")
	}
	chat.AdminInterventionID = &adminID
	chat.AdminIntervened = true
	s.chats[chatID] = chat
	return chat, nil
}

func (s *stubSupportRepo) Close(_ context.Context, chatID uint) (models.SupportChat, error) {
	chat, ok := s.chats[chatID]
	if !ok {
		return models.SupportChat{}, apperr.NotFound("support chat %d not found", chatID)
	}
	if chat.Status == models.SupportStatusClosed {
		return models.SupportChat{}, apperr.Conflict("chat is already closed")
	}
	now := time.Now().UTC()
	chat.Status = models.SupportStatusClosed
	chat.ClosedAt = &now
	s.chats[chatID] = chat
	return chat, nil
}

func (s *stubSupportRepo) MarkArchived(_ context.Context, chatID uint) error {
	chat, ok := s.chats[chatID]
	if !ok {
		return apperr.NotFound("support chat %d not found", chatID)
	}
	chat.Archived = true
	s.chats[chatID] = chat
	s.archived[chatID] = true
	return nil
}

func (s *stubSupportRepo) AppendMessage(_ context.Context, chatID uint, senderID *uint, senderType, content, messageType string) (models.SupportMessage, error) {
	chat, ok := s.chats[chatID]
	if !ok {
		return models.SupportMessage{}, apperr.NotFound("support chat %d not found", chatID)
	}
	if chat.Status == models.SupportStatusClosed && senderType != models.SenderTypeSystem {
		return models.SupportMessage{}, apperr.Conflict("support chat %d is closed", chatID)
	}
	if messageType == "" {
		messageType = models.SupportMessageTypeText
	}
	message := models.SupportMessage{
		ID:            uint(len(s.messages) + 1),
		SupportChatID: chatID,
		SenderID:      senderID,
		SenderType:    senderType,
		Content:       content,
		MessageType:   messageType,
		CreatedAt:     time.Now().UTC(),
	}
	s.messages = append(s.messages, message)
	return message, nil
}

func (s *stubSupportRepo) ListMessages(_ context.Context, chatID uint, limit int) ([]models.SupportMessage, error) {
	all, _ := s.ListAllMessages(context.Background(), chatID)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *stubSupportRepo) ListAllMessages(_ context.Context, chatID uint) ([]models.SupportMessage, error) {
	var out []models.SupportMessage
	for _, message := range s.messages {
		if message.SupportChatID == chatID {
			out = append(out, message)
		}
	}
	return out, nil
}

type stubModeratorRepo struct {
	active map[uint]bool
}

func (s *stubModeratorRepo) FindByID(_ context.Context, id uint) (models.Moderator, error) {
	if _, ok := s.active[id]; !ok {
		return models.Moderator{}, apperr.NotFound("moderator %d not found", id)
	}
	return models.Moderator{ID: id, IsActive: s.active[id]}, nil
}

func (s *stubModeratorRepo) FindActiveByID(_ context.Context, id uint) (models.Moderator, error) {
	moderator, err := s.FindByID(context.Background(), id)
	if err != nil {
		return models.Moderator{}, err
	}
	if !moderator.IsActive {
		return models.Moderator{}, apperr.Authorization("moderator %d is inactive", id)
	}
	return moderator, nil
}

type stubArchiveRepo struct {
	snapshots map[uint]dto.SupportChatSnapshot
}

func (s *stubArchiveRepo) SaveSnapshot(_ context.Context, chatID uint, snapshot dto.SupportChatSnapshot) error {
	if s.snapshots == nil {
		s.snapshots = make(map[uint]dto.SupportChatSnapshot)
	}
	s.snapshots[chatID] = snapshot
	return nil
}

func (s *stubArchiveRepo) GetSnapshot(_ context.Context, chatID uint) (dto.SupportChatSnapshot, error) {
	snapshot, ok := s.snapshots[chatID]
	if !ok {
		return dto.SupportChatSnapshot{}, apperr.NotFound("no archive snapshot for chat %d", chatID)
	}
	return snapshot, nil
}

func newSupportServiceForTest(repo *stubSupportRepo, moderators *stubModeratorRepo, archive *stubArchiveRepo) SupportService {
	if moderators == nil {
		moderators = &stubModeratorRepo{active: map[uint]bool{7: true}}
	}

	var archiveRepo repository.ArchiveRepository
	if archive != nil {
		archiveRepo = archive
	}

	return NewSupportService(repo, moderators, archiveRepo, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
}

func TestSupportServiceOpenIsIdempotentPerUser(t *testing.T) {
	repo := newStubSupportRepo()
	svc := newSupportServiceForTest(repo, nil, nil)

	first, created, err := svc.Open(context.Background(), 5, dto.SupportChatOpenRequest{Subject: "Billing problem"})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, models.SupportStatusOpen, first.Status)

	second, created, err := svc.Open(context.Background(), 5, dto.SupportChatOpenRequest{Subject: "Another subject"})
	require.NoError(t, err)
	require.False(t, created, "second open must return the existing active chat")
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Billing problem", second.Subject)
}

func TestSupportServiceAssignInjectsSystemNotice(t *testing.T) {
	repo := newStubSupportRepo()
	svc := newSupportServiceForTest(repo, nil, nil)

	chat, _, err := svc.Open(context.Background(), 5, dto.SupportChatOpenRequest{Subject: "Billing problem"})
	require.NoError(t, err)

	transition, err := svc.Assign(context.Background(), chat.ID, 7)
	require.NoError(t, err)
	require.Equal(t, models.SupportStatusAssigned, transition.Chat.Status)
	require.Equal(t, models.SenderTypeSystem, transition.SystemMessage.SenderType)
	require.Equal(t, models.SupportMessageTypeSystemInfo, transition.SystemMessage.MessageType)
	require.Contains(t, transition.SystemMessage.Content, "moderator has joined")
	require.Nil(t, transition.SystemMessage.SenderID)
}

func TestSupportServiceAssignRejectsInactiveModerator(t *testing.T) {
	repo := newStubSupportRepo()
	moderators := &stubModeratorRepo{active: map[uint]bool{7: false}}
	svc := newSupportServiceForTest(repo, moderators, nil)

	chat, _, err := svc.Open(context.Background(), 5, dto.SupportChatOpenRequest{Subject: "Billing problem"})
	require.NoError(t, err)

	_, err = svc.Assign(context.Background(), chat.ID, 7)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestSupportServiceEscalateRecordsReason(t *testing.T) {
	repo := newStubSupportRepo()
	svc := newSupportServiceForTest(repo, nil, nil)

	chat, _, err := svc.Open(context.Background(), 5, dto.SupportChatOpenRequest{Subject: "Billing problem"})
	require.NoError(t, err)
	_, err = svc.Assign(context.Background(), chat.ID, 7)
	require.NoError(t, err)

	transition, err := svc.Escalate(context.Background(), chat.ID, 7, dto.SupportEscalateRequest{Reason: "refund requires approval"})
	require.NoError(t, err)
	require.Equal(t, models.SupportStatusEscalated, transition.Chat.Status)
	require.Equal(t, models.SupportMessageTypeSystemWarning, transition.SystemMessage.MessageType)
	require.Contains(t, transition.SystemMessage.Content, "refund requires approval")
}

func TestSupportServiceCloseAuthorization(t *testing.T) {
	repo := newStubSupportRepo()
	svc := newSupportServiceForTest(repo, nil, nil)

	chat, _, err := svc.Open(context.Background(), 5, dto.SupportChatOpenRequest{Subject: "Billing problem"})
	require.NoError(t, err)
	_, err = svc.Assign(context.Background(), chat.ID, 7)
	require.NoError(t, err)

	// A different user cannot close someone else's chat.
	_, err = svc.Close(context.Background(), chat.ID, 6, models.RoleClient)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	// A moderator who is not assigned cannot close it either.
	_, err = svc.Close(context.Background(), chat.ID, 8, models.RoleModerator)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	transition, err := svc.Close(context.Background(), chat.ID, 5, models.RoleClient)
	require.NoError(t, err)
	require.Equal(t, models.SupportStatusClosed, transition.Chat.Status)
	require.NotNil(t, transition.Chat.ClosedAt)
}

func TestSupportServiceSendMessageRules(t *testing.T) {
	repo := newStubSupportRepo()
	svc := newSupportServiceForTest(repo, nil, nil)

	chat, _, err := svc.Open(context.Background(), 5, dto.SupportChatOpenRequest{Subject: "Billing problem"})
	require.NoError(t, err)
	_, err = svc.Assign(context.Background(), chat.ID, 7)
	require.NoError(t, err)

	_, message, err := svc.SendMessage(context.Background(), 5, models.RoleClient, dto.SupportMessageSendRequest{ChatID: chat.ID, Content: "<b>still</b> waiting"})
	require.NoError(t, err)
	require.Equal(t, models.SenderTypeUser, message.SenderType)

	_, moderatorMessage, err := svc.SendMessage(context.Background(), 7, models.RoleModerator, dto.SupportMessageSendRequest{ChatID: chat.ID, Content: "on it"})
	require.NoError(t, err)
	require.Equal(t, models.SenderTypeModerator, moderatorMessage.SenderType)

	// An unassigned moderator cannot write into the chat.
	_, _, err = svc.SendMessage(context.Background(), 8, models.RoleModerator, dto.SupportMessageSendRequest{ChatID: chat.ID, Content: "me too"})
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	_, err = svc.Close(context.Background(), chat.ID, 5, models.RoleClient)
	require.NoError(t, err)

	_, _, err = svc.SendMessage(context.Background(), 5, models.RoleClient, dto.SupportMessageSendRequest{ChatID: chat.ID, Content: "hello?"})
	require.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestSupportServiceArchiveAndClose(t *testing.T) {
	repo := newStubSupportRepo()
	archive := &stubArchiveRepo{}
	svc := newSupportServiceForTest(repo, nil, archive)

	chat, _, err := svc.Open(context.Background(), 5, dto.SupportChatOpenRequest{Subject: "Billing problem"})
	require.NoError(t, err)
	_, err = svc.Assign(context.Background(), chat.ID, 7)
	require.NoError(t, err)

	// The requesting user cannot archive, only close.
	_, err = svc.ArchiveAndClose(context.Background(), chat.ID, 5, models.RoleClient)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	transition, err := svc.ArchiveAndClose(context.Background(), chat.ID, 7, models.RoleModerator)
	require.NoError(t, err)
	require.True(t, transition.Chat.Archived)
	require.True(t, repo.archived[chat.ID])

	snapshot, err := svc.Snapshot(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Equal(t, uint(7), snapshot.ArchivedBy)
	require.NotEmpty(t, snapshot.Messages, "snapshot must carry the chat history")
}

func TestSupportServiceArchiveSnapshotKeepsFullHistory(t *testing.T) {
	repo := newStubSupportRepo()
	archive := &stubArchiveRepo{}
	svc := newSupportServiceForTest(repo, nil, archive)

	chat, _, err := svc.Open(context.Background(), 5, dto.SupportChatOpenRequest{Subject: "Billing problem"})
	require.NoError(t, err)
	_, err = svc.Assign(context.Background(), chat.ID, 7)
	require.NoError(t, err)

	for i := 0; i < 230; i++ {
		_, _, err := svc.SendMessage(context.Background(), 5, models.RoleClient, dto.SupportMessageSendRequest{ChatID: chat.ID, Content: "still waiting"})
		require.NoError(t, err)
	}

	_, err = svc.ArchiveAndClose(context.Background(), chat.ID, 7, models.RoleModerator)
	require.NoError(t, err)

	stored, err := repo.ListAllMessages(context.Background(), chat.ID)
	require.NoError(t, err)

	snapshot, err := svc.Snapshot(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Len(t, snapshot.Messages, len(stored), "snapshot must hold every persisted message")
	last := snapshot.Messages[len(snapshot.Messages)-1]
	require.Equal(t, models.SenderTypeSystem, last.SenderType, "closure notice belongs in the snapshot")
}
