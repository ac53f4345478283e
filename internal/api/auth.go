package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mroshb/campus_match/internal/metrics"
	"github.com/mroshb/campus_match/internal/security"
	"github.com/mroshb/campus_match/pkg/errors"
	"github.com/mroshb/campus_match/pkg/logger"
)

var errRateLimited = errors.New(errors.ErrCodeRateLimitExceeded, "too many requests, slow down")

// authenticate accepts a bearer token, or a token query parameter for
// websocket clients that cannot set headers.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := security.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing token"))
			return
		}

		claims, err := security.ValidateJWT(token, s.secret)
		if err != nil {
			logger.Debug("Rejected token", "error", err)
			writeError(w, errors.New(errors.ErrCodeUnauthorized, "invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), claims.UserID)))
	})
}

func (s *Server) limitUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.CheckUserLimit(userIDFrom(r.Context())) {
			writeError(w, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.CheckIPLimit(clientIP(r)) {
			writeError(w, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestLogging logs each request and counts it by route pattern.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		logger.Debug("HTTP request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
