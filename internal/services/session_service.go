package services

import (
	"context"
	"time"

	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/internal/repositories"
	"github.com/mroshb/campus_match/pkg/errors"
	"github.com/mroshb/campus_match/pkg/logger"
)

// SessionService owns session status transitions. Expiry is applied lazily
// on access and by the sweeper through the same expireDue check.
type SessionService struct {
	store   *repositories.Store
	emitter *Emitter
	now     Clock
}

func NewSessionService(store *repositories.Store, emitter *Emitter, now Clock) *SessionService {
	if now == nil {
		now = SystemClock
	}
	return &SessionService{
		store:   store,
		emitter: emitter,
		now:     now,
	}
}

// expireDue moves an active session whose TTL has elapsed at now to expired
// and refreshes session in place. It reports whether this call made the
// transition and so owns the notification.
func expireDue(ctx context.Context, sessions *repositories.SessionRepository, session *models.Session, now time.Time) (bool, error) {
	if session.Status != models.SessionStatusActive || !session.ExpiredAt(now) {
		return false, nil
	}

	endedAt := *session.ExpiresAt
	won, err := sessions.Terminate(ctx, session.ID, models.SessionStatusExpired, endedAt, nil)
	if err != nil {
		return false, err
	}
	if won {
		session.Status = models.SessionStatusExpired
		session.EndedAt = &endedAt
		return true, nil
	}

	current, err := sessions.GetSession(ctx, session.ID)
	if err != nil {
		return false, err
	}
	*session = *current
	return false, nil
}

// GetSession returns the session to one of its participants with expiry
// applied.
func (s *SessionService) GetSession(ctx context.Context, sessionID string, viewerID uint) (*models.Session, error) {
	session, err := s.store.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasParticipant(viewerID) {
		logger.Warn("Session access by non-participant", "session_id", sessionID, "user_id", viewerID)
		return nil, errors.ErrNotParticipant
	}
	if err := s.refresh(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// refresh applies lazy expiry to session.
func (s *SessionService) refresh(ctx context.Context, session *models.Session) error {
	won, err := expireDue(ctx, s.store.Sessions, session, s.now())
	if err != nil {
		return err
	}
	if won {
		logger.Info("Session expired", "session_id", session.ID)
		s.emitter.SessionTerminated(ctx, session)
	}
	return nil
}

// CloseSession ends an active session on behalf of a participant. Closing a
// terminal session is a no-op that returns its current state.
func (s *SessionService) CloseSession(ctx context.Context, sessionID string, userID uint) (*models.Session, error) {
	var (
		session     *models.Session
		transitions bool
	)

	err := retryConflict("close_session", func() error {
		transitions = false
		now := s.now()
		return s.store.Transaction(ctx, func(tx *repositories.Store) error {
			var err error
			session, err = tx.Sessions.GetSessionForUpdate(ctx, sessionID)
			if err != nil {
				return err
			}
			if !session.HasParticipant(userID) {
				logger.Warn("Close attempt by non-participant", "session_id", sessionID, "user_id", userID)
				return errors.ErrNotParticipant
			}
			if session.IsTerminal() {
				return nil
			}

			if session.ExpiredAt(now) {
				transitions, err = expireDue(ctx, tx.Sessions, session, now)
				return err
			}

			won, err := tx.Sessions.Terminate(ctx, session.ID, models.SessionStatusEnded, now, &userID)
			if err != nil {
				return err
			}
			if won {
				endedBy := userID
				session.Status = models.SessionStatusEnded
				session.EndedAt = &now
				session.EndedBy = &endedBy
				transitions = true
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if transitions {
		logger.Info("Session terminated", "session_id", session.ID, "status", session.Status)
		s.emitter.SessionTerminated(ctx, session)
	}
	return session, nil
}

// ExpireOverdue expires up to limit sessions whose TTL has elapsed and
// returns the ones this call transitioned.
func (s *SessionService) ExpireOverdue(ctx context.Context, limit int) ([]models.Session, error) {
	now := s.now()
	overdue, err := s.store.Sessions.ListOverdue(ctx, now, limit)
	if err != nil {
		return nil, err
	}

	var expired []models.Session
	for i := range overdue {
		session := &overdue[i]
		won, err := expireDue(ctx, s.store.Sessions, session, now)
		if err != nil {
			logger.Error("Failed to expire session", "session_id", session.ID, "error", err)
			continue
		}
		if won {
			s.emitter.SessionTerminated(ctx, session)
			expired = append(expired, *session)
		}
	}
	return expired, nil
}
