package models

import (
	"time"
)

// InterestEdge records that Source is interested in Target. Edges are only
// ever inserted; the unique index makes repeated inserts a no-op.
type InterestEdge struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SourceID  uint      `gorm:"not null;uniqueIndex:idx_interest_pair,priority:1" json:"source_id"`
	TargetID  uint      `gorm:"not null;uniqueIndex:idx_interest_pair,priority:2;index" json:"target_id"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (InterestEdge) TableName() string {
	return "interest_edges"
}

// Match is a materialized mutual interest. The pair is stored in canonical
// order (UserLowID < UserHighID) so each unordered pair has one key.
type Match struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserLowID  uint      `gorm:"not null;uniqueIndex:idx_match_pair,priority:1" json:"user_low_id"`
	UserHighID uint      `gorm:"not null;uniqueIndex:idx_match_pair,priority:2;index" json:"user_high_id"`
	SessionID  string    `gorm:"type:varchar(36);not null;index" json:"session_id"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
}

func (Match) TableName() string {
	return "matches"
}

// CanonicalPair orders two user IDs into the match key.
func CanonicalPair(a, b uint) (low, high uint) {
	if a < b {
		return a, b
	}
	return b, a
}

// Other returns the counterpart of userID in the match.
func (m *Match) Other(userID uint) uint {
	if m.UserLowID == userID {
		return m.UserHighID
	}
	return m.UserLowID
}

// BlindDateQueueEntry is one waiting pairing request. UserID is unique, so a
// user has at most one outstanding request.
type BlindDateQueueEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Category   Category  `gorm:"type:varchar(10);not null;index:idx_queue_scan,priority:1" json:"category"`
	EnqueuedAt time.Time `gorm:"not null;index:idx_queue_scan,priority:2" json:"enqueued_at"`
}

func (BlindDateQueueEntry) TableName() string {
	return "blind_date_queue"
}

// PairingStatus is the outcome of a pairing request.
type PairingStatus string

const (
	PairingPaired  PairingStatus = "paired"
	PairingWaiting PairingStatus = "waiting"
)

// PairingOutcome is returned by a pairing request; Session is set only when
// Status is PairingPaired.
type PairingOutcome struct {
	Status  PairingStatus `json:"status"`
	Session *Session      `json:"session,omitempty"`
}
