package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mroshb/campus_match/internal/realtime"
	"github.com/mroshb/campus_match/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	readLimit  = 4 * 1024
)

// handleSessionStream pushes a session's messages and lifecycle events to a
// participant. The stream closes after the session ends or expires.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	sessionID := chi.URLParam(r, "id")

	session, err := s.svc.Sessions.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.svc.Messages.Subscribe(ctx, sessionID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &streamClient{conn: conn, viewer: userID, kind: session.Kind, closeOnEnd: true}
	go c.readLoop(cancel)
	c.writeLoop(ctx, sub)
}

// handleUserStream pushes match and pairing events addressed to the user.
func (s *Server) handleUserStream(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.svc.Messages.SubscribeUser(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &streamClient{conn: conn, viewer: userID}
	go c.readLoop(cancel)
	c.writeLoop(ctx, sub)
}

type streamClient struct {
	conn       *websocket.Conn
	viewer     uint
	kind       string
	closeOnEnd bool
}

// readLoop discards inbound frames and cancels the stream when the peer
// goes away.
func (c *streamClient) readLoop(cancel context.CancelFunc) {
	defer cancel()
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writeLoop(ctx context.Context, sub realtime.Subscription) {
	defer c.conn.Close()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.closeFrame(websocket.CloseNormalClosure)
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				// dropped as a slow subscriber
				c.closeFrame(websocket.CloseTryAgainLater)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(toEventView(ev, c.viewer, c.kind)); err != nil {
				logger.Debug("Stream write failed", "user_id", c.viewer, "error", err)
				return
			}
			if c.closeOnEnd && (ev.Kind == realtime.EventSessionEnded || ev.Kind == realtime.EventSessionExpired) {
				c.closeFrame(websocket.CloseNormalClosure)
				return
			}
		}
	}
}

func (c *streamClient) closeFrame(code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
