package services

import (
	"context"

	"github.com/mroshb/campus_match/internal/metrics"
	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/internal/realtime"
	"github.com/mroshb/campus_match/pkg/logger"
)

// Emitter pushes domain events to the realtime broker and the notification
// sink. Failures are logged and counted, never returned to the caller.
type Emitter struct {
	broker   realtime.Broker
	notifier Notifier
}

// NewEmitter creates an emitter. Either collaborator may be nil.
func NewEmitter(broker realtime.Broker, notifier Notifier) *Emitter {
	return &Emitter{broker: broker, notifier: notifier}
}

// MatchCreated tells both users about a new match and its session.
func (e *Emitter) MatchCreated(ctx context.Context, match *models.Match, session *models.Session) {
	metrics.MatchesCreated.Inc()
	for _, userID := range []uint{match.UserLowID, match.UserHighID} {
		e.publish(ctx, realtime.UserTopic(userID), realtime.Event{
			Kind:      realtime.EventMatchCreated,
			SessionID: match.SessionID,
			UserID:    userID,
			Match:     match,
			Session:   session,
			At:        match.CreatedAt,
		})
		e.notify(ctx, userID, NotifyMatchCreated, map[string]interface{}{
			"match_id":    match.ID,
			"session_id":  match.SessionID,
			"counterpart": match.Other(userID),
			"matched_at":  match.CreatedAt,
		})
	}
}

// BlindDatePaired tells both participants their session is ready. The
// counterpart stays anonymous.
func (e *Emitter) BlindDatePaired(ctx context.Context, session *models.Session) {
	for _, userID := range []uint{session.ParticipantA, session.ParticipantB} {
		e.publish(ctx, realtime.UserTopic(userID), realtime.Event{
			Kind:      realtime.EventBlindDatePaired,
			SessionID: session.ID,
			UserID:    userID,
			At:        session.CreatedAt,
		})
		e.notify(ctx, userID, NotifyBlindDatePaired, map[string]interface{}{
			"session_id": session.ID,
			"expires_at": session.ExpiresAt,
		})
	}
}

// PairingTimeout tells a user their queue entry was dropped.
func (e *Emitter) PairingTimeout(ctx context.Context, entry *models.BlindDateQueueEntry) {
	metrics.PairingTimeouts.Inc()
	e.publish(ctx, realtime.UserTopic(entry.UserID), realtime.Event{
		Kind:   realtime.EventPairingTimeout,
		UserID: entry.UserID,
		At:     entry.EnqueuedAt,
	})
	e.notify(ctx, entry.UserID, NotifyPairingTimeout, map[string]interface{}{
		"category":    entry.Category,
		"enqueued_at": entry.EnqueuedAt,
	})
}

// SessionTerminated announces that session reached a terminal status.
func (e *Emitter) SessionTerminated(ctx context.Context, session *models.Session) {
	metrics.SessionsTerminated.WithLabelValues(session.Status).Inc()

	kind, notifyKind := realtime.EventSessionEnded, NotifySessionEnded
	if session.Status == models.SessionStatusExpired {
		kind, notifyKind = realtime.EventSessionExpired, NotifySessionExpired
	}

	at := session.CreatedAt
	if session.EndedAt != nil {
		at = *session.EndedAt
	}

	e.publish(ctx, realtime.SessionTopic(session.ID), realtime.Event{
		Kind:      kind,
		SessionID: session.ID,
		Session:   session,
		At:        at,
	})

	for _, userID := range []uint{session.ParticipantA, session.ParticipantB} {
		// The participant who closed the session already knows.
		if session.EndedBy != nil && *session.EndedBy == userID {
			continue
		}
		e.notify(ctx, userID, notifyKind, map[string]interface{}{
			"session_id": session.ID,
			"kind":       session.Kind,
		})
	}
}

// MessageAppended pushes a new message to the session's subscribers.
func (e *Emitter) MessageAppended(ctx context.Context, msg *models.Message) {
	metrics.MessagesSent.Inc()
	e.publish(ctx, realtime.SessionTopic(msg.SessionID), realtime.Event{
		Kind:      realtime.EventMessage,
		SessionID: msg.SessionID,
		Message:   msg,
		At:        msg.CreatedAt,
	})
}

// MessageDeleted pushes a masked message to the session's subscribers.
func (e *Emitter) MessageDeleted(ctx context.Context, msg *models.Message) {
	at := msg.CreatedAt
	if msg.DeletedAt != nil {
		at = *msg.DeletedAt
	}
	e.publish(ctx, realtime.SessionTopic(msg.SessionID), realtime.Event{
		Kind:      realtime.EventMessageDeleted,
		SessionID: msg.SessionID,
		Message:   msg,
		At:        at,
	})
}

func (e *Emitter) publish(ctx context.Context, topic string, event realtime.Event) {
	if e == nil || e.broker == nil {
		return
	}
	if err := e.broker.Publish(ctx, topic, event); err != nil {
		metrics.DeliveryFailures.WithLabelValues("realtime").Inc()
		logger.Error("Failed to publish event", "topic", topic, "kind", event.Kind, "error", err)
	}
}

func (e *Emitter) notify(ctx context.Context, userID uint, kind string, payload map[string]interface{}) {
	if e == nil || e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, userID, kind, payload); err != nil {
		metrics.DeliveryFailures.WithLabelValues("notify").Inc()
		logger.Warn("Failed to notify user", "user_id", userID, "kind", kind, "error", err)
	}
}
