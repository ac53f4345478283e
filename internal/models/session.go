package models

import (
	"time"
)

// Session kinds
const (
	SessionKindMatch     = "match"
	SessionKindBlindDate = "blind_date"
)

// Session status constants
const (
	SessionStatusActive  = "active"
	SessionStatusEnded   = "ended"
	SessionStatusExpired = "expired"
)

// Session is a two-party conversation. Match sessions never expire;
// blind-date sessions carry ExpiresAt.
type Session struct {
	ID           string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Kind         string     `gorm:"type:varchar(20);not null;index:idx_session_a,priority:2;index:idx_session_b,priority:2" json:"kind"`
	ParticipantA uint       `gorm:"not null;index:idx_session_a,priority:1" json:"participant_a"`
	ParticipantB uint       `gorm:"not null;index:idx_session_b,priority:1" json:"participant_b"`
	Status       string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	ExpiresAt    *time.Time `gorm:"index" json:"expires_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	EndedBy      *uint      `json:"ended_by,omitempty"`
}

func (Session) TableName() string {
	return "sessions"
}

// HasParticipant reports whether userID is one of the two participants.
func (s *Session) HasParticipant(userID uint) bool {
	return s.ParticipantA == userID || s.ParticipantB == userID
}

// Other returns the counterpart of userID.
func (s *Session) Other(userID uint) uint {
	if s.ParticipantA == userID {
		return s.ParticipantB
	}
	return s.ParticipantA
}

// IsTerminal reports whether the stored status no longer accepts messages.
func (s *Session) IsTerminal() bool {
	return s.Status != SessionStatusActive
}

// ExpiredAt is the single TTL predicate shared by the lazy check and the
// sweep: a session is expired from ExpiresAt onwards.
func (s *Session) ExpiredAt(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// ActiveAt reports whether the session accepts messages at now.
func (s *Session) ActiveAt(now time.Time) bool {
	return s.Status == SessionStatusActive && !s.ExpiredAt(now)
}
