package api

import (
	"time"

	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/internal/realtime"
)

// sessionView is a session as one participant sees it. Blind-date sessions
// never reveal who the counterpart is.
type sessionView struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	CounterpartID *uint      `json:"counterpart_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	EndedByMe     bool       `json:"ended_by_me"`
}

func toSessionView(s *models.Session, viewer uint) *sessionView {
	if s == nil {
		return nil
	}
	v := &sessionView{
		ID:        s.ID,
		Kind:      s.Kind,
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		EndedAt:   s.EndedAt,
		EndedByMe: s.EndedBy != nil && *s.EndedBy == viewer,
	}
	if s.Kind == models.SessionKindMatch {
		other := s.Other(viewer)
		v.CounterpartID = &other
	}
	return v
}

type messageView struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Seq       int64     `json:"seq"`
	Mine      bool      `json:"mine"`
	SenderID  *uint     `json:"sender_id,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Deleted   bool      `json:"deleted"`
}

func toMessageView(m *models.Message, viewer uint, kind string) *messageView {
	if m == nil {
		return nil
	}
	v := &messageView{
		ID:        m.ID,
		SessionID: m.SessionID,
		Seq:       m.Seq,
		Mine:      m.SenderID == viewer,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Deleted:   m.IsDeleted(),
	}
	if kind == models.SessionKindMatch {
		sender := m.SenderID
		v.SenderID = &sender
	}
	return v
}

func toMessageViews(msgs []models.Message, viewer uint, kind string) []*messageView {
	views := make([]*messageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, toMessageView(&msgs[i], viewer, kind))
	}
	return views
}

type matchView struct {
	ID            uint      `json:"id"`
	CounterpartID uint      `json:"counterpart_id"`
	SessionID     string    `json:"session_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func toMatchView(m *models.Match, viewer uint) *matchView {
	if m == nil {
		return nil
	}
	return &matchView{
		ID:            m.ID,
		CounterpartID: m.Other(viewer),
		SessionID:     m.SessionID,
		CreatedAt:     m.CreatedAt,
	}
}

type eventView struct {
	Kind      string       `json:"kind"`
	SessionID string       `json:"session_id,omitempty"`
	Message   *messageView `json:"message,omitempty"`
	Session   *sessionView `json:"session,omitempty"`
	Match     *matchView   `json:"match,omitempty"`
	At        time.Time    `json:"at"`
}

// toEventView renders ev for viewer. kind is the session kind when the
// event arrives on a session stream and empty on the user stream.
func toEventView(ev realtime.Event, viewer uint, kind string) eventView {
	if kind == "" && ev.Session != nil {
		kind = ev.Session.Kind
	}
	return eventView{
		Kind:      ev.Kind,
		SessionID: ev.SessionID,
		Message:   toMessageView(ev.Message, viewer, kind),
		Session:   toSessionView(ev.Session, viewer),
		Match:     toMatchView(ev.Match, viewer),
		At:        ev.At,
	}
}
