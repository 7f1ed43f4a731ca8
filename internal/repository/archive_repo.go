package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/dto"
)

// ArchiveRepository is the log store that receives full support chat
// snapshots when a chat is archived on close.
type ArchiveRepository interface {
	SaveSnapshot(ctx context.Context, chatID uint, snapshot dto.SupportChatSnapshot) error
	GetSnapshot(ctx context.Context, chatID uint) (dto.SupportChatSnapshot, error)
}

type archiveRepository struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewArchiveRepository constructs a Redis-backed archive store. A zero TTL
// keeps snapshots indefinitely.
func NewArchiveRepository(client *redis.Client, ttl time.Duration) ArchiveRepository {
	return &archiveRepository{redis: client, ttl: ttl}
}

func (r *archiveRepository) key(chatID uint) string {
	return fmt.Sprintf("support:archive:%d", chatID)
}

func (r *archiveRepository) SaveSnapshot(ctx context.Context, chatID uint, snapshot dto.SupportChatSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	return r.redis.Set(ctx, r.key(chatID), payload, r.ttl).Err()
}

func (r *archiveRepository) GetSnapshot(ctx context.Context, chatID uint) (dto.SupportChatSnapshot, error) {
	return retryRead(ctx, func(ctx context.Context) (dto.SupportChatSnapshot, error) {
		result, err := r.redis.Get(ctx, r.key(chatID)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return dto.SupportChatSnapshot{}, apperr.NotFound("no archive snapshot for chat %d", chatID)
			}
			return dto.SupportChatSnapshot{}, err
		}

		var snapshot dto.SupportChatSnapshot
		if err := json.Unmarshal([]byte(result), &snapshot); err != nil {
			return dto.SupportChatSnapshot{}, err
		}

		return snapshot, nil
	})
}
