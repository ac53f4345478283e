package models

import (
	"time"
)

// Message is one entry of a session's append-only log. Seq is the position
// within the session; clients use it as the read cursor and ID to drop
// duplicate deliveries.
type Message struct {
	ID        string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	SessionID string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_message_position,priority:1" json:"session_id"`
	Seq       int64      `gorm:"not null;uniqueIndex:idx_message_position,priority:2" json:"seq"`
	SenderID  uint       `gorm:"not null;index" json:"sender_id"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// IsDeleted reports whether the sender soft-deleted the message.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}
