// Package realtime fans out session and user events to live subscribers.
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/mroshb/campus_match/internal/models"
)

// Event kinds
const (
	EventMessage         = "message"
	EventMessageDeleted  = "message_deleted"
	EventSessionEnded    = "session_ended"
	EventSessionExpired  = "session_expired"
	EventMatchCreated    = "match_created"
	EventBlindDatePaired = "blind_date_paired"
	EventPairingTimeout  = "pairing_timeout"
)

// Event is the payload pushed to subscribers. Delivery is at-least-once;
// message events carry the message ID so clients can drop duplicates.
type Event struct {
	Kind      string          `json:"kind"`
	SessionID string          `json:"session_id,omitempty"`
	UserID    uint            `json:"user_id,omitempty"`
	Message   *models.Message `json:"message,omitempty"`
	Session   *models.Session `json:"session,omitempty"`
	Match     *models.Match   `json:"match,omitempty"`
	At        time.Time       `json:"at"`
}

// SessionTopic carries the message log and lifecycle of one session.
func SessionTopic(sessionID string) string {
	return "session." + sessionID
}

// UserTopic carries pairing and match events addressed to one user.
func UserTopic(userID uint) string {
	return fmt.Sprintf("user.%d", userID)
}

// Subscription delivers events until Close is called or the context passed
// to Subscribe is cancelled. Events is closed when the subscription ends.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Broker publishes events to topics and opens subscriptions on them.
type Broker interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

const subscriberBuffer = 64
