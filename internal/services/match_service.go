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

// InterestResult is the outcome of ExpressInterest. Created is true only for
// the call that materialized the match.
type InterestResult struct {
	Matched bool            `json:"matched"`
	Created bool            `json:"created"`
	Match   *models.Match   `json:"match,omitempty"`
	Session *models.Session `json:"session,omitempty"`
}

// MatchService records interest edges and turns mutual interest into a
// match with a permanent session. Swipe-style and secret-style likes both
// go through ExpressInterest.
type MatchService struct {
	store    *repositories.Store
	identity Identity
	emitter  *Emitter
	now      Clock
}

func NewMatchService(store *repositories.Store, identity Identity, emitter *Emitter, now Clock) *MatchService {
	if now == nil {
		now = SystemClock
	}
	return &MatchService{
		store:    store,
		identity: identity,
		emitter:  emitter,
		now:      now,
	}
}

// ExpressInterest records source→target and materializes the match when the
// reverse edge already exists.
func (s *MatchService) ExpressInterest(ctx context.Context, sourceID, targetID uint) (*InterestResult, error) {
	if sourceID == targetID {
		return nil, errors.InvalidInput("cannot express interest in yourself")
	}

	for _, userID := range []uint{sourceID, targetID} {
		verified, err := s.identity.IsVerified(ctx, userID)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to check verification")
		}
		if !verified {
			return nil, errors.ErrNotEligible
		}
	}

	now := s.now()

	// The edge is committed on its own before the reverse lookup, so of two
	// concurrent reciprocal calls at least one sees the other's edge.
	if _, err := s.store.Interests.Insert(ctx, sourceID, targetID, now); err != nil {
		return nil, err
	}

	mutual, err := s.store.Interests.Exists(ctx, targetID, sourceID)
	if err != nil {
		return nil, err
	}
	if !mutual {
		return &InterestResult{}, nil
	}

	var result *InterestResult
	err = retryConflict("match", func() error {
		var err error
		result, err = s.materialize(ctx, sourceID, targetID, now)
		return err
	})
	if errors.HasCode(err, errors.ErrCodeConflict) {
		metrics.Conflicts.WithLabelValues("match").Inc()
		return s.currentMatch(ctx, sourceID, targetID, err)
	}
	if err != nil {
		return nil, err
	}

	if result.Created {
		logger.Info("Match created", "match_id", result.Match.ID, "session_id", result.Match.SessionID)
		s.emitter.MatchCreated(ctx, result.Match, result.Session)
	}

	return result, nil
}

// materialize inserts the canonical match and, for the inserting caller
// only, its permanent session.
func (s *MatchService) materialize(ctx context.Context, a, b uint, now time.Time) (*InterestResult, error) {
	low, high := models.CanonicalPair(a, b)
	var result *InterestResult

	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		existing, err := tx.Matches.GetByPair(ctx, low, high)
		if err != nil {
			return err
		}
		if existing != nil {
			result = &InterestResult{Matched: true, Match: existing}
			return nil
		}

		session := &models.Session{
			ID:           uuid.NewString(),
			Kind:         models.SessionKindMatch,
			ParticipantA: low,
			ParticipantB: high,
			Status:       models.SessionStatusActive,
			CreatedAt:    now,
		}
		match := &models.Match{
			UserLowID:  low,
			UserHighID: high,
			SessionID:  session.ID,
			CreatedAt:  now,
		}

		created, err := tx.Matches.CreateIfAbsent(ctx, match)
		if err != nil {
			return err
		}
		if !created {
			existing, err = tx.Matches.GetByPair(ctx, low, high)
			if err != nil {
				return err
			}
			if existing == nil {
				return errors.ErrConflict
			}
			result = &InterestResult{Matched: true, Match: existing}
			return nil
		}

		if err := tx.Sessions.CreateSession(ctx, session); err != nil {
			return err
		}
		result = &InterestResult{Matched: true, Created: true, Match: match, Session: session}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// currentMatch degrades a repeated conflict to whatever match is visible now.
func (s *MatchService) currentMatch(ctx context.Context, a, b uint, cause error) (*InterestResult, error) {
	existing, err := s.store.Matches.GetByPair(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, cause
	}
	return &InterestResult{Matched: true, Match: existing}, nil
}

// GetMatches returns all matches the user belongs to, newest first.
func (s *MatchService) GetMatches(ctx context.Context, userID uint) ([]models.Match, error) {
	return s.store.Matches.ListForUser(ctx, userID)
}

// GetPendingInterestReceived returns interest pointing at the user that the
// user has not reciprocated.
func (s *MatchService) GetPendingInterestReceived(ctx context.Context, userID uint) ([]models.InterestEdge, error) {
	return s.store.Interests.ListPendingReceived(ctx, userID)
}
