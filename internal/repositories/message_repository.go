package repositories

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/pkg/errors"
	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// GetLast retrieves the message with the highest position, or nil.
func (r *MessageRepository) GetLast(ctx context.Context, sessionID string) (*models.Message, error) {
	var msg models.Message
	result := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC").
		First(&msg)

	if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get last message")
	}

	return &msg, nil
}

// CreateMessage appends a message. The caller assigns Seq while holding the
// session lock.
func (r *MessageRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		if IsUniqueViolation(err) {
			return errors.Wrap(err, errors.ErrCodeConflict, "message position already taken")
		}
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create message")
	}
	return nil
}

// GetMessage retrieves one message of a session.
func (r *MessageRepository) GetMessage(ctx context.Context, sessionID, messageID string) (*models.Message, error) {
	var msg models.Message
	result := r.db.WithContext(ctx).
		Where("session_id = ? AND id = ?", sessionID, messageID).
		First(&msg)

	if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, errors.ErrMessageNotFound
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get message")
	}

	return &msg, nil
}

// ListSince retrieves up to limit messages positioned after sinceSeq, in order.
func (r *MessageRepository) ListSince(ctx context.Context, sessionID string, sinceSeq int64, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND seq > ?", sessionID, sinceSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list messages")
	}
	return msgs, nil
}

// MarkDeleted soft-deletes a message written by senderID.
func (r *MessageRepository) MarkDeleted(ctx context.Context, sessionID, messageID string, senderID uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("session_id = ? AND id = ? AND sender_id = ? AND deleted_at IS NULL", sessionID, messageID, senderID).
		Update("deleted_at", at)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to delete message")
	}
	return result.RowsAffected > 0, nil
}

// CountUnread counts visible messages from the other participant after
// sinceSeq.
func (r *MessageRepository) CountUnread(ctx context.Context, sessionID string, viewerID uint, sinceSeq int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("session_id = ? AND seq > ? AND sender_id <> ? AND deleted_at IS NULL", sessionID, sinceSeq, viewerID).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to count unread messages")
	}
	return count, nil
}
