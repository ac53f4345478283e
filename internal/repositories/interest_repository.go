package repositories

import (
	"context"
	"time"

	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InterestRepository struct {
	db *gorm.DB
}

func NewInterestRepository(db *gorm.DB) *InterestRepository {
	return &InterestRepository{db: db}
}

// Insert records source→target. Inserting an existing edge is a no-op and
// reports created=false.
func (r *InterestRepository) Insert(ctx context.Context, sourceID, targetID uint, at time.Time) (bool, error) {
	edge := &models.InterestEdge{
		SourceID:  sourceID,
		TargetID:  targetID,
		CreatedAt: at,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}, {Name: "target_id"}},
			DoNothing: true,
		}).
		Create(edge)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to insert interest edge")
	}

	return result.RowsAffected > 0, nil
}

// Exists checks for the directed edge source→target.
func (r *InterestRepository) Exists(ctx context.Context, sourceID, targetID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InterestEdge{}).
		Where("source_id = ? AND target_id = ?", sourceID, targetID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternalError, "failed to check interest edge")
	}
	return count > 0, nil
}

// ListPendingReceived returns edges pointing at userID that userID has not
// reciprocated, newest first.
func (r *InterestRepository) ListPendingReceived(ctx context.Context, userID uint) ([]models.InterestEdge, error) {
	var edges []models.InterestEdge

	err := r.db.WithContext(ctx).
		Where("interest_edges.target_id = ?", userID).
		Where("NOT EXISTS (SELECT 1 FROM interest_edges rev WHERE rev.source_id = interest_edges.target_id AND rev.target_id = interest_edges.source_id)").
		Order("interest_edges.created_at DESC, interest_edges.id DESC").
		Find(&edges).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list received interests")
	}

	return edges, nil
}
