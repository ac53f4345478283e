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

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession creates a new session
func (r *SessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create session")
	}
	return nil
}

// GetSession retrieves a session by ID
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return r.get(ctx, r.db.WithContext(ctx), id)
}

// GetSessionForUpdate retrieves a session and holds its row lock until the
// surrounding transaction ends.
func (r *SessionRepository) GetSessionForUpdate(ctx context.Context, id string) (*models.Session, error) {
	return r.get(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *SessionRepository) get(ctx context.Context, db *gorm.DB, id string) (*models.Session, error) {
	var session models.Session
	result := db.Where("id = ?", id).First(&session)

	if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, errors.ErrSessionNotFound
	}
	if result.Error != nil {
		if IsConflict(result.Error) {
			return nil, errors.Wrap(result.Error, errors.ErrCodeConflict, "session lock conflict")
		}
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get session")
	}

	return &session, nil
}

// GetActiveByKind retrieves the newest active session of the given kind the
// user takes part in, or nil.
func (r *SessionRepository) GetActiveByKind(ctx context.Context, userID uint, kind string) (*models.Session, error) {
	var session models.Session
	result := r.db.WithContext(ctx).
		Where("(participant_a = ? OR participant_b = ?) AND kind = ? AND status = ?",
			userID, userID, kind, models.SessionStatusActive).
		Order("created_at DESC").
		First(&session)

	if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get active session")
	}

	return &session, nil
}

// Terminate moves an active session to status. Only the first caller wins;
// later calls and calls on terminal sessions report false.
func (r *SessionRepository) Terminate(ctx context.Context, id, status string, at time.Time, endedBy *uint) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND status = ?", id, models.SessionStatusActive).
		Updates(map[string]interface{}{
			"status":   status,
			"ended_at": at,
			"ended_by": endedBy,
		})

	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to end session")
	}

	return result.RowsAffected > 0, nil
}

// ListOverdue retrieves active sessions whose TTL has elapsed at now.
func (r *SessionRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.SessionStatusActive, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to check timeouts")
	}
	return sessions, nil
}

// ListRecent retrieves up to limit sessions, newest first.
func (r *SessionRepository) ListRecent(ctx context.Context, limit int) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list sessions")
	}
	return sessions, nil
}
