// Package api exposes the matching engine over HTTP and websockets.
package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/mroshb/campus_match/internal/middleware"
	"github.com/mroshb/campus_match/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestTimeout = 30 * time.Second

// Services are the engine operations the handlers call.
type Services struct {
	Matches  *services.MatchService
	Pairing  *services.PairingService
	Sessions *services.SessionService
	Messages *services.MessageService
}

// Config controls authentication and throttling.
type Config struct {
	JWTSecret   string
	RateLimiter *middleware.RateLimiter
}

// Server holds the handlers' dependencies.
type Server struct {
	svc      Services
	secret   string
	limiter  *middleware.RateLimiter
	upgrader websocket.Upgrader
}

// New validates the dependencies and returns a Server.
func New(svc Services, cfg Config) (*Server, error) {
	if svc.Matches == nil || svc.Pairing == nil || svc.Sessions == nil || svc.Messages == nil {
		return nil, stderrors.New("all services are required")
	}
	if cfg.JWTSecret == "" {
		return nil, stderrors.New("jwt secret is required")
	}

	return &Server{
		svc:     svc,
		secret:  cfg.JWTSecret,
		limiter: cfg.RateLimiter,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
			return true
		}},
	}, nil
}

// Routes constructs the chi router containing all endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogging)
	r.Use(s.limitIP)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		// streams outlive the request timeout
		r.Get("/stream", s.handleUserStream)
		r.Get("/sessions/{id}/stream", s.handleSessionStream)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(requestTimeout))

			r.Get("/interests/received", s.handleInterestsReceived)
			r.Get("/matches", s.handleMatches)
			r.Get("/pairing/session", s.handlePairingSession)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Get("/sessions/{id}/messages", s.handleGetMessages)
			r.Get("/sessions/{id}/unread", s.handleUnread)

			r.Group(func(r chi.Router) {
				r.Use(s.limitUser)

				r.Post("/interests/{userID}", s.handleExpressInterest)
				r.Post("/pairing", s.handleRequestPairing)
				r.Delete("/pairing", s.handleCancelPairing)
				r.Post("/sessions/{id}/close", s.handleCloseSession)
				r.Post("/sessions/{id}/messages", s.handleSendMessage)
				r.Delete("/sessions/{id}/messages/{messageID}", s.handleDeleteMessage)
			})
		})
	})

	return r
}

type ctxKey int

const userIDKey ctxKey = iota

func withUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// userIDFrom returns the authenticated user of the request.
func userIDFrom(ctx context.Context) uint {
	id, _ := ctx.Value(userIDKey).(uint)
	return id
}
