package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mroshb/campus_match/internal/metrics"
	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/internal/repositories"
	"github.com/mroshb/campus_match/pkg/errors"
	"github.com/mroshb/campus_match/pkg/logger"
)

// PairingService runs the blind-date queue. All queue state lives in the
// database; the pop-and-pair step is one transaction.
type PairingService struct {
	store    *repositories.Store
	identity Identity
	sessions *SessionService
	emitter  *Emitter
	settings Settings
	now      Clock
}

func NewPairingService(store *repositories.Store, identity Identity, sessions *SessionService, emitter *Emitter, settings Settings, now Clock) *PairingService {
	if now == nil {
		now = SystemClock
	}
	return &PairingService{
		store:    store,
		identity: identity,
		sessions: sessions,
		emitter:  emitter,
		settings: settings,
		now:      now,
	}
}

// pairAttempt is what one pairing transaction decided.
type pairAttempt struct {
	outcome *models.PairingOutcome
	created bool
	expired *models.Session
}

// RequestPairing queues the user and pairs them with the longest-waiting
// user of the opposite category if there is one. Calling it again while
// waiting keeps the user's place; calling it while paired returns the
// existing session.
func (s *PairingService) RequestPairing(ctx context.Context, userID uint, category models.Category) (*models.PairingOutcome, error) {
	if !category.Valid() {
		return nil, errors.InvalidInput("invalid category")
	}

	verified, err := s.identity.IsVerified(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to check verification")
	}
	if !verified {
		return nil, errors.ErrNotEligible
	}

	declared, err := s.identity.Category(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get category")
	}
	if declared != category {
		return nil, errors.ErrNotEligible
	}

	var attempt *pairAttempt
	err = retryConflict("pairing", func() error {
		var err error
		attempt, err = s.tryPair(ctx, userID, category)
		return err
	})
	if errors.HasCode(err, errors.ErrCodeConflict) {
		metrics.PairingRequests.WithLabelValues("conflict").Inc()
		logger.Warn("Pairing conflict persisted, leaving user queued", "user_id", userID)
		return s.stayQueued(ctx, userID, category)
	}
	if err != nil {
		return nil, err
	}

	if attempt.expired != nil {
		s.emitter.SessionTerminated(ctx, attempt.expired)
	}
	if attempt.created {
		logger.Info("Blind date paired", "session_id", attempt.outcome.Session.ID)
		s.emitter.BlindDatePaired(ctx, attempt.outcome.Session)
	}
	metrics.PairingRequests.WithLabelValues(string(attempt.outcome.Status)).Inc()

	return attempt.outcome, nil
}

func (s *PairingService) tryPair(ctx context.Context, userID uint, category models.Category) (*pairAttempt, error) {
	now := s.now()
	staleBefore := now.Add(-s.settings.PairingWait)
	attempt := &pairAttempt{}

	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		// Locking the entry first waits out any pairing that is taking it,
		// so the session check below sees that pairing's session.
		if _, err := tx.Queue.LockEntry(ctx, userID); err != nil {
			return err
		}

		active, err := tx.Sessions.GetActiveByKind(ctx, userID, models.SessionKindBlindDate)
		if err != nil {
			return err
		}
		if active != nil {
			won, err := expireDue(ctx, tx.Sessions, active, now)
			if err != nil {
				return err
			}
			if won {
				attempt.expired = active
			} else if active.Status == models.SessionStatusActive {
				attempt.outcome = &models.PairingOutcome{Status: models.PairingPaired, Session: active}
				return nil
			}
		}

		if _, err := tx.Queue.Upsert(ctx, userID, category, now, staleBefore); err != nil {
			return err
		}

		partner, err := tx.Queue.FindOldestEligible(ctx, category.Opposite(), userID, staleBefore)
		if err != nil {
			return err
		}
		if partner == nil {
			attempt.outcome = &models.PairingOutcome{Status: models.PairingWaiting}
			return nil
		}

		session, err := s.openBlindDate(ctx, tx, partner.UserID, userID, now)
		if err != nil {
			return err
		}

		attempt.outcome = &models.PairingOutcome{Status: models.PairingPaired, Session: session}
		attempt.created = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

// openBlindDate takes both users out of the queue and opens their session.
// The longer-waiting user becomes participant A.
func (s *PairingService) openBlindDate(ctx context.Context, tx *repositories.Store, waiting, newcomer uint, now time.Time) (*models.Session, error) {
	if err := tx.Queue.RemovePair(ctx, waiting, newcomer); err != nil {
		return nil, err
	}

	expires := now.Add(s.settings.BlindDateTTL)
	session := &models.Session{
		ID:           uuid.NewString(),
		Kind:         models.SessionKindBlindDate,
		ParticipantA: waiting,
		ParticipantB: newcomer,
		Status:       models.SessionStatusActive,
		CreatedAt:    now,
		ExpiresAt:    &expires,
	}
	if err := tx.Sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// PairWaiting pairs entries that are waiting while an eligible partner is
// also waiting. Two requests that skipped each other's locked rows both end
// up queued; this picks them up.
func (s *PairingService) PairWaiting(ctx context.Context, limit int) (int, error) {
	now := s.now()
	staleBefore := now.Add(-s.settings.PairingWait)
	waiting, err := s.store.Queue.ListWaiting(ctx, staleBefore, limit)
	if err != nil {
		return 0, err
	}

	paired := 0
	for i := range waiting {
		entry := &waiting[i]
		var session *models.Session
		err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
			current, err := tx.Queue.LockEntry(ctx, entry.UserID)
			if err != nil || current == nil || current.ID != entry.ID {
				return err
			}

			partner, err := tx.Queue.FindOldestEligible(ctx, current.Category.Opposite(), current.UserID, staleBefore)
			if err != nil || partner == nil {
				return err
			}

			older, newer := current.UserID, partner.UserID
			if partner.EnqueuedAt.Before(current.EnqueuedAt) {
				older, newer = newer, older
			}
			session, err = s.openBlindDate(ctx, tx, older, newer, now)
			return err
		})
		if err != nil {
			logger.Warn("Failed to pair waiting entry", "user_id", entry.UserID, "error", err)
			continue
		}
		if session != nil {
			paired++
			logger.Info("Blind date paired", "session_id", session.ID)
			metrics.PairingRequests.WithLabelValues(string(models.PairingPaired)).Inc()
			s.emitter.BlindDatePaired(ctx, session)
		}
	}
	return paired, nil
}

// stayQueued makes sure the user is still waiting after pairing gave up.
func (s *PairingService) stayQueued(ctx context.Context, userID uint, category models.Category) (*models.PairingOutcome, error) {
	now := s.now()
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		_, err := tx.Queue.Upsert(ctx, userID, category, now, now.Add(-s.settings.PairingWait))
		return err
	})
	if err != nil && !errors.HasCode(err, errors.ErrCodeConflict) {
		return nil, err
	}
	return &models.PairingOutcome{Status: models.PairingWaiting}, nil
}

// CancelPairing removes the user's waiting entry. It reports whether the
// user was waiting; cancelling after pairing is a no-op.
func (s *PairingService) CancelPairing(ctx context.Context, userID uint) (bool, error) {
	removed, err := s.store.Queue.RemoveFromQueue(ctx, userID)
	if err != nil {
		return false, err
	}
	if removed {
		metrics.PairingRequests.WithLabelValues("cancelled").Inc()
	}
	return removed, nil
}

// GetActiveBlindDateSession returns the user's live blind-date session, or
// nil when there is none.
func (s *PairingService) GetActiveBlindDateSession(ctx context.Context, userID uint) (*models.Session, error) {
	session, err := s.store.Sessions.GetActiveByKind(ctx, userID, models.SessionKindBlindDate)
	if err != nil || session == nil {
		return nil, err
	}
	if err := s.sessions.refresh(ctx, session); err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return nil, nil
	}
	return session, nil
}

// TimeoutStale drops queue entries that waited longer than the wait ceiling
// and notifies their owners. An entry refreshed since it was listed has a
// new ID and is left alone.
func (s *PairingService) TimeoutStale(ctx context.Context, limit int) (int, error) {
	cutoff := s.now().Add(-s.settings.PairingWait)
	stale, err := s.store.Queue.ListStale(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	timedOut := 0
	for i := range stale {
		entry := &stale[i]
		removed, err := s.store.Queue.RemoveEntry(ctx, entry.ID)
		if err != nil {
			logger.Error("Failed to time out queue entry", "user_id", entry.UserID, "error", err)
			continue
		}
		if removed {
			timedOut++
			s.emitter.PairingTimeout(ctx, entry)
		}
	}
	return timedOut, nil
}

// QueueDepth reports how many users wait per category.
func (s *PairingService) QueueDepth(ctx context.Context) (map[models.Category]int64, error) {
	return s.store.Queue.Count(ctx)
}

