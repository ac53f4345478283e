package repositories

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mroshb/campus_match/pkg/errors"
	"gorm.io/gorm"
)

// Store groups the repositories that share one *gorm.DB, so a service can
// run several of them inside a single transaction.
type Store struct {
	db *gorm.DB

	Users     *UserRepository
	Interests *InterestRepository
	Matches   *MatchRepository
	Queue     *QueueRepository
	Sessions  *SessionRepository
	Messages  *MessageRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		Users:     NewUserRepository(db),
		Interests: NewInterestRepository(db),
		Matches:   NewMatchRepository(db),
		Queue:     NewQueueRepository(db),
		Sessions:  NewSessionRepository(db),
		Messages:  NewMessageRepository(db),
	}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn with a Store bound to one database transaction.
// Deadlocks and serialization failures surface with the CONFLICT code.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
	if err != nil && !errors.HasCode(err, errors.ErrCodeConflict) && IsConflict(err) {
		return errors.Wrap(err, errors.ErrCodeConflict, "transaction conflict")
	}
	return err
}

// Postgres SQLSTATE codes
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// IsConflict reports whether err is a transient concurrency failure that a
// caller may retry: deadlocks, serialization failures and busy locks.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgUniqueViolation:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsUniqueViolation reports whether err comes from a unique index.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
