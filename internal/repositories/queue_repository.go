package repositories

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueueRepository manages the blind-date waiting pool. The pairing methods
// lock rows and must run inside Store.Transaction.
type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// GetEntry retrieves the user's queue entry, or nil if not queued.
func (r *QueueRepository) GetEntry(ctx context.Context, userID uint) (*models.BlindDateQueueEntry, error) {
	var entry models.BlindDateQueueEntry
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&entry)

	if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get queue entry")
	}

	return &entry, nil
}

// LockEntry locks and returns the user's queue entry, or nil if not queued.
// A pairing that already took the entry has committed by the time this
// returns.
func (r *QueueRepository) LockEntry(ctx context.Context, userID uint) (*models.BlindDateQueueEntry, error) {
	var entry models.BlindDateQueueEntry
	result := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&entry)

	if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		if IsConflict(result.Error) {
			return nil, errors.Wrap(result.Error, errors.ErrCodeConflict, "queue lock conflict")
		}
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to lock queue entry")
	}

	return &entry, nil
}

// Upsert makes sure the user has exactly one entry for category. An existing
// entry keeps its place in line unless its category differs or it was
// enqueued before staleBefore, in which case it is replaced by a fresh row.
func (r *QueueRepository) Upsert(ctx context.Context, userID uint, category models.Category, now, staleBefore time.Time) (*models.BlindDateQueueEntry, error) {
	db := r.db.WithContext(ctx)

	var existing models.BlindDateQueueEntry
	result := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&existing)

	switch {
	case result.Error == nil:
		if existing.Category == category && !existing.EnqueuedAt.Before(staleBefore) {
			return &existing, nil
		}
		if err := db.Delete(&models.BlindDateQueueEntry{}, existing.ID).Error; err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to replace stale queue entry")
		}
	case !stderrors.Is(result.Error, gorm.ErrRecordNotFound):
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to check queue")
	}

	entry := &models.BlindDateQueueEntry{
		UserID:     userID,
		Category:   category,
		EnqueuedAt: now,
	}
	if err := db.Create(entry).Error; err != nil {
		if IsConflict(err) {
			return nil, errors.Wrap(err, errors.ErrCodeConflict, "concurrent queue insert")
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to add to queue")
	}

	return entry, nil
}

// FindOldestEligible locks and returns the longest-waiting entry of the given
// category that does not belong to excludeUserID (FIFO), or nil. Entries
// enqueued before staleBefore are left for the sweep.
func (r *QueueRepository) FindOldestEligible(ctx context.Context, category models.Category, excludeUserID uint, staleBefore time.Time) (*models.BlindDateQueueEntry, error) {
	var entry models.BlindDateQueueEntry
	result := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("category = ? AND user_id <> ? AND enqueued_at >= ?", category, excludeUserID, staleBefore).
		Order("enqueued_at ASC, id ASC").
		First(&entry)

	if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		if IsConflict(result.Error) {
			return nil, errors.Wrap(result.Error, errors.ErrCodeConflict, "queue scan conflict")
		}
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to find match")
	}

	return &entry, nil
}

// RemovePair deletes both users' entries. Anything other than two deleted
// rows means another request took one of them first.
func (r *QueueRepository) RemovePair(ctx context.Context, userA, userB uint) error {
	result := r.db.WithContext(ctx).
		Where("user_id IN ?", []uint{userA, userB}).
		Delete(&models.BlindDateQueueEntry{})
	if result.Error != nil {
		if IsConflict(result.Error) {
			return errors.Wrap(result.Error, errors.ErrCodeConflict, "queue delete conflict")
		}
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to remove from queue")
	}
	if result.RowsAffected != 2 {
		return errors.ErrConflict
	}
	return nil
}

// RemoveFromQueue removes a user from the queue and reports whether an
// entry existed.
func (r *QueueRepository) RemoveFromQueue(ctx context.Context, userID uint) (bool, error) {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.BlindDateQueueEntry{})
	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to remove from queue")
	}
	return result.RowsAffected > 0, nil
}

// RemoveEntry deletes one specific entry row. A refreshed entry gets a new
// ID, so this never removes a request made after entry was read.
func (r *QueueRepository) RemoveEntry(ctx context.Context, entryID uint) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&models.BlindDateQueueEntry{}, entryID)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to remove queue entry")
	}
	return result.RowsAffected > 0, nil
}

// ListWaiting retrieves entries enqueued at or after since, oldest first.
func (r *QueueRepository) ListWaiting(ctx context.Context, since time.Time, limit int) ([]models.BlindDateQueueEntry, error) {
	var entries []models.BlindDateQueueEntry
	err := r.db.WithContext(ctx).
		Where("enqueued_at >= ?", since).
		Order("enqueued_at ASC, id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list waiting queue entries")
	}
	return entries, nil
}

// ListStale retrieves entries enqueued before the cutoff, oldest first.
func (r *QueueRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]models.BlindDateQueueEntry, error) {
	var entries []models.BlindDateQueueEntry
	err := r.db.WithContext(ctx).
		Where("enqueued_at < ?", before).
		Order("enqueued_at ASC, id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list stale queue entries")
	}
	return entries, nil
}

// Count returns the number of waiting entries per category.
func (r *QueueRepository) Count(ctx context.Context) (map[models.Category]int64, error) {
	var rows []struct {
		Category models.Category
		Total    int64
	}
	err := r.db.WithContext(ctx).Model(&models.BlindDateQueueEntry{}).
		Select("category, COUNT(*) AS total").
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to count queue")
	}

	counts := make(map[models.Category]int64, len(rows))
	for _, row := range rows {
		counts[row.Category] = row.Total
	}
	return counts, nil
}
