package repositories

import (
	"context"
	stderrors "errors"

	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// CreateIfAbsent inserts the match unless its canonical pair already exists.
// created is true only for the caller whose row was written.
func (r *MatchRepository) CreateIfAbsent(ctx context.Context, match *models.Match) (bool, error) {
	match.UserLowID, match.UserHighID = models.CanonicalPair(match.UserLowID, match.UserHighID)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_low_id"}, {Name: "user_high_id"}},
			DoNothing: true,
		}).
		Create(match)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to create match")
	}

	return result.RowsAffected > 0, nil
}

// GetByPair retrieves the match between two users in either order, or nil.
func (r *MatchRepository) GetByPair(ctx context.Context, a, b uint) (*models.Match, error) {
	low, high := models.CanonicalPair(a, b)

	var match models.Match
	result := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		First(&match)

	if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get match")
	}

	return &match, nil
}

// ListForUser retrieves all matches of a user, newest first.
func (r *MatchRepository) ListForUser(ctx context.Context, userID uint) ([]models.Match, error) {
	var matches []models.Match
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? OR user_high_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Find(&matches).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list matches")
	}
	return matches, nil
}

// ListRecent retrieves up to limit matches, newest first.
func (r *MatchRepository) ListRecent(ctx context.Context, limit int) ([]models.Match, error) {
	var matches []models.Match
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&matches).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list matches")
	}
	return matches, nil
}
