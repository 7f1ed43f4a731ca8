package repository

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/models"
)

func TestArchiveRepositorySnapshotRoundTrip(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	repo := NewArchiveRepository(client, time.Hour)

	snapshot := dto.SupportChatSnapshot{
		Chat: dto.SupportChatResponse{
			ID:      42,
			UserID:  7,
			Subject: "Payment issue",
			Status:  models.SupportStatusClosed,
		},
		Messages: []dto.SupportMessageResponse{
			{ID: 1, SupportChatID: 42, SenderType: models.SenderTypeUser, Content: "help", MessageType: models.SupportMessageTypeText},
			{ID: 2, SupportChatID: 42, SenderType: models.SenderTypeSystem, Content: "A moderator has joined the chat.", MessageType: models.SupportMessageTypeSystemInfo},
		},
		ArchivedBy: 9,
		ArchivedAt: time.Now().UTC(),
	}

	require.NoError(t, repo.SaveSnapshot(context.Background(), 42, snapshot))

	restored, err := repo.GetSnapshot(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, snapshot.Chat.ID, restored.Chat.ID)
	require.Len(t, restored.Messages, 2)
	require.Equal(t, uint(9), restored.ArchivedBy)

	require.True(t, mini.Exists("support:archive:42"))
	mini.FastForward(2 * time.Hour)

	_, err = repo.GetSnapshot(context.Background(), 42)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound), "snapshot must expire with the configured TTL")
}

func TestArchiveRepositoryMissingSnapshot(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	repo := NewArchiveRepository(client, 0)

	_, err = repo.GetSnapshot(context.Background(), 99)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
