package services

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/internal/realtime"
	"github.com/mroshb/campus_match/internal/repositories"
	"github.com/mroshb/campus_match/internal/security"
	"github.com/mroshb/campus_match/pkg/errors"
	"github.com/mroshb/campus_match/pkg/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MessageService appends to and reads session message logs and opens live
// subscriptions on them.
type MessageService struct {
	store    *repositories.Store
	sessions *SessionService
	broker   realtime.Broker
	emitter  *Emitter
	settings Settings
	now      Clock
}

func NewMessageService(store *repositories.Store, sessions *SessionService, broker realtime.Broker, emitter *Emitter, settings Settings, now Clock) *MessageService {
	if now == nil {
		now = SystemClock
	}
	return &MessageService{
		store:    store,
		sessions: sessions,
		broker:   broker,
		emitter:  emitter,
		settings: settings,
		now:      now,
	}
}

// SendMessage appends a message to an active session. The session row stays
// locked while the next position is assigned, so a concurrent close either
// happens before (and the send fails) or after (and the message is kept).
func (s *MessageService) SendMessage(ctx context.Context, sessionID string, senderID uint, content string) (*models.Message, error) {
	content = security.SanitizeMessage(content)
	if content == "" {
		return nil, errors.ErrEmptyContent
	}
	if s.settings.MessageMaxLength > 0 && utf8.RuneCountInString(content) > s.settings.MessageMaxLength {
		return nil, errors.InvalidInput(fmt.Sprintf("message exceeds %d characters", s.settings.MessageMaxLength))
	}

	var (
		msg      *models.Message
		expired  *models.Session
		terminal bool
	)

	err := retryConflict("send_message", func() error {
		msg, expired, terminal = nil, nil, false
		now := s.now()

		return s.store.Transaction(ctx, func(tx *repositories.Store) error {
			session, err := tx.Sessions.GetSessionForUpdate(ctx, sessionID)
			if err != nil {
				return err
			}
			if !session.HasParticipant(senderID) {
				logger.Warn("Send attempt by non-participant", "session_id", sessionID, "user_id", senderID)
				return errors.ErrNotParticipant
			}

			won, err := expireDue(ctx, tx.Sessions, session, now)
			if err != nil {
				return err
			}
			if won {
				expired = session
			}
			if session.IsTerminal() {
				// Commit the expiry, if any, and refuse the message.
				terminal = true
				return nil
			}

			last, err := tx.Messages.GetLast(ctx, sessionID)
			if err != nil {
				return err
			}

			seq, createdAt := int64(1), now
			if last != nil {
				seq = last.Seq + 1
				if createdAt.Before(last.CreatedAt) {
					createdAt = last.CreatedAt
				}
			}

			msg = &models.Message{
				ID:        uuid.NewString(),
				SessionID: sessionID,
				Seq:       seq,
				SenderID:  senderID,
				Content:   content,
				CreatedAt: createdAt,
			}
			return tx.Messages.CreateMessage(ctx, msg)
		})
	})
	if err != nil {
		return nil, err
	}

	if expired != nil {
		logger.Info("Session expired", "session_id", expired.ID)
		s.emitter.SessionTerminated(ctx, expired)
	}
	if terminal {
		return nil, errors.ErrSessionTerminal
	}

	s.emitter.MessageAppended(ctx, msg)
	return msg, nil
}

// GetMessages returns up to limit messages positioned after sinceSeq.
// Deleted messages keep their place with the content removed.
func (s *MessageService) GetMessages(ctx context.Context, sessionID string, viewerID uint, sinceSeq int64, limit int) ([]models.Message, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID, viewerID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if sinceSeq < 0 {
		sinceSeq = 0
	}

	msgs, err := s.store.Messages.ListSince(ctx, sessionID, sinceSeq, limit)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		mask(&msgs[i])
	}
	return msgs, nil
}

// DeleteMessage soft-deletes one of the sender's own messages. Deleting an
// already deleted message returns it unchanged.
func (s *MessageService) DeleteMessage(ctx context.Context, sessionID string, senderID uint, messageID string) (*models.Message, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID, senderID); err != nil {
		return nil, err
	}

	msg, err := s.store.Messages.GetMessage(ctx, sessionID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != senderID {
		logger.Warn("Delete attempt on another user's message", "message_id", messageID, "user_id", senderID)
		return nil, errors.ErrNotParticipant
	}
	if msg.IsDeleted() {
		mask(msg)
		return msg, nil
	}

	now := s.now()
	deleted, err := s.store.Messages.MarkDeleted(ctx, sessionID, messageID, senderID, now)
	if err != nil {
		return nil, err
	}
	if !deleted {
		current, err := s.store.Messages.GetMessage(ctx, sessionID, messageID)
		if err != nil {
			return nil, err
		}
		mask(current)
		return current, nil
	}

	msg.DeletedAt = &now
	mask(msg)
	s.emitter.MessageDeleted(ctx, msg)
	return msg, nil
}

// UnreadCount counts the other participant's visible messages after the
// viewer's cursor. The cursor is held by the client.
func (s *MessageService) UnreadCount(ctx context.Context, sessionID string, viewerID uint, sinceSeq int64) (int64, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID, viewerID); err != nil {
		return 0, err
	}
	return s.store.Messages.CountUnread(ctx, sessionID, viewerID, sinceSeq)
}

// Subscribe opens a live stream of the session's events for a participant.
// Cancelling ctx or closing the subscription ends it.
func (s *MessageService) Subscribe(ctx context.Context, sessionID string, viewerID uint) (realtime.Subscription, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID, viewerID); err != nil {
		return nil, err
	}
	if s.broker == nil {
		return nil, errors.New(errors.ErrCodeInternalError, "realtime transport not configured")
	}
	return s.broker.Subscribe(ctx, realtime.SessionTopic(sessionID))
}

// SubscribeUser opens a live stream of match and pairing events for a user.
func (s *MessageService) SubscribeUser(ctx context.Context, userID uint) (realtime.Subscription, error) {
	if s.broker == nil {
		return nil, errors.New(errors.ErrCodeInternalError, "realtime transport not configured")
	}
	return s.broker.Subscribe(ctx, realtime.UserTopic(userID))
}

func mask(msg *models.Message) {
	if msg.IsDeleted() {
		msg.Content = ""
	}
}
