package api

import (
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/pkg/errors"
	"github.com/mroshb/campus_match/pkg/utils"
)

func (s *Server) handleExpressInterest(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	targetID, err := utils.ParseUint(chi.URLParam(r, "userID"))
	if err != nil || targetID == 0 {
		writeError(w, errors.InvalidInput("invalid user id"))
		return
	}

	result, err := s.svc.Matches.ExpressInterest(r.Context(), userID, uint(targetID))
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"matched": result.Matched,
		"match":   toMatchView(result.Match, userID),
		"session": toSessionView(result.Session, userID),
	})
}

func (s *Server) handleInterestsReceived(w http.ResponseWriter, r *http.Request) {
	edges, err := s.svc.Matches.GetPendingInterestReceived(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	type interestView struct {
		FromUserID uint      `json:"from_user_id"`
		CreatedAt  time.Time `json:"created_at"`
	}
	views := make([]interestView, 0, len(edges))
	for _, e := range edges {
		views = append(views, interestView{FromUserID: e.SourceID, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"interests": views})
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	matches, err := s.svc.Matches.GetMatches(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]*matchView, 0, len(matches))
	for i := range matches {
		views = append(views, toMatchView(&matches[i], userID))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"matches": views})
}

func (s *Server) handleRequestPairing(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	var req struct {
		Category models.Category `json:"category"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	outcome, err := s.svc.Pairing.RequestPairing(r.Context(), userID, req.Category)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusAccepted
	if outcome.Status == models.PairingPaired {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{
		"status":  outcome.Status,
		"session": toSessionView(outcome.Session, userID),
	})
}

func (s *Server) handleCancelPairing(w http.ResponseWriter, r *http.Request) {
	cancelled, err := s.svc.Pairing.CancelPairing(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) handlePairingSession(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	session, err := s.svc.Pairing.GetActiveBlindDateSession(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": toSessionView(session, userID)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	session, err := s.svc.Sessions.GetSession(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(session, userID))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	session, err := s.svc.Sessions.CloseSession(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(session, userID))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	// Once the message is stored the request succeeds, so the session kind
	// is read first.
	sessionID := chi.URLParam(r, "id")
	kind, err := s.sessionKind(r, sessionID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := s.svc.Messages.SendMessage(r.Context(), sessionID, userID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageView(msg, userID, kind))
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	sessionID := chi.URLParam(r, "id")

	since, err := queryInt(r, "since")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	kind, err := s.sessionKind(r, sessionID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	msgs, err := s.svc.Messages.GetMessages(r.Context(), sessionID, userID, since, int(limit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": toMessageViews(msgs, userID, kind)})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	sessionID := chi.URLParam(r, "id")

	kind, err := s.sessionKind(r, sessionID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := s.svc.Messages.DeleteMessage(r.Context(), sessionID, userID, chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageView(msg, userID, kind))
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	since, err := queryInt(r, "since")
	if err != nil {
		writeError(w, err)
		return
	}

	count, err := s.svc.Messages.UnreadCount(r.Context(), chi.URLParam(r, "id"), userIDFrom(r.Context()), since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": count})
}

func (s *Server) sessionKind(r *http.Request, sessionID string, userID uint) (string, error) {
	session, err := s.svc.Sessions.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		return "", err
	}
	return session.Kind, nil
}

// queryInt reads an optional non-negative integer query parameter.
func queryInt(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := utils.ParseUint(raw)
	if err != nil || v > math.MaxInt64 {
		return 0, errors.InvalidInput("invalid " + key)
	}
	return int64(v), nil
}
