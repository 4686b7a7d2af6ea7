package store

import (
	"context"
	"errors"
	"time"

	"anonchat/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateChat persists a new chat room, grounded on storage.Service.SaveRoom.
func (s *Service) CreateChat(ctx context.Context, chat *models.ChatRecord) error {
	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	if chat.StartedAt.IsZero() {
		chat.StartedAt = time.Now()
	}
	chat.IsActive = true
	return withCtx(ctx, s.DB).Create(chat).Error
}

// DeleteChat removes a chat outright — used only to roll back a failed
// atomic pair creation (spec.md §4.1.3), never for a normal chat end.
func (s *Service) DeleteChat(ctx context.Context, chatID string) error {
	return withCtx(ctx, s.DB).Where("id = ?", chatID).Delete(&models.ChatRecord{}).Error
}

// GetChatByID loads a chat room by id.
func (s *Service) GetChatByID(ctx context.Context, chatID string) (*models.ChatRecord, error) {
	var chat models.ChatRecord
	err := withCtx(ctx, s.DB).Where("id = ?", chatID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetActiveChatIDs returns every currently active chat id, grounded on
// storage.Service.GetActiveRoomIDs.
func (s *Service) GetActiveChatIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := withCtx(ctx, s.DB).Model(&models.ChatRecord{}).
		Where("is_active = ?", true).
		Pluck("id", &ids).Error
	return ids, err
}

// EndChat closes a chat, explicitly by a participant.
func (s *Service) EndChat(ctx context.Context, chatID, endedBy, reason string) error {
	now := time.Now()
	return withCtx(ctx, s.DB).Model(&models.ChatRecord{}).
		Where("id = ? AND is_active = ?", chatID, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   &now,
			"ended_by":   endedBy,
			"end_reason": reason,
		}).Error
}

// ExpireChats closes every chat whose expiresAt has passed.
func (s *Service) ExpireChats(ctx context.Context, now time.Time) ([]models.ChatRecord, error) {
	var rows []models.ChatRecord
	if err := withCtx(ctx, s.DB).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	if err := withCtx(ctx, s.DB).Model(&models.ChatRecord{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   &now,
			"ended_by":   "system",
			"end_reason": "expired",
		}).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AppendMessage inserts a new append-only message row, grounded on
// storage.Service.SaveMessage.
func (s *Service) AppendMessage(ctx context.Context, msg *models.ChatMessageRow) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	return withCtx(ctx, s.DB).Create(msg).Error
}

// MarkMessagesRead flips isRead on every message in chatID not sent by
// readerID with a timestamp at or before upTo.
func (s *Service) MarkMessagesRead(ctx context.Context, chatID, readerID string, upTo time.Time) error {
	return withCtx(ctx, s.DB).Model(&models.ChatMessageRow{}).
		Where("chat_id = ? AND sender_id <> ? AND created_at <= ?", chatID, readerID, upTo).
		Update("is_read", true).Error
}

// SetLastMessage updates the chat's lastMessage preview field.
func (s *Service) SetLastMessage(ctx context.Context, chatID, content string) error {
	return withCtx(ctx, s.DB).Model(&models.ChatRecord{}).
		Where("id = ?", chatID).
		Update("last_message", content).Error
}

// PruneMessagesOlderThan deletes message rows created before cutoff, used
// by JanitorLoop's 24h retention sweep (spec.md §4.6).
func (s *Service) PruneMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := withCtx(ctx, s.DB).Where("created_at < ?", cutoff).Delete(&models.ChatMessageRow{})
	return res.RowsAffected, res.Error
}
