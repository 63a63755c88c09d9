// Package api exposes the flag platform over HTTP: flag administration,
// evaluation, audit queries and the change stream.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/flagdeck/flagdeck/internal/coordinator"
	"github.com/flagdeck/flagdeck/internal/notifier"
	"github.com/flagdeck/flagdeck/internal/telemetry"
)

type Server struct {
	coord          *coordinator.Coordinator
	notifier       *notifier.Notifier
	adminAPIKey    string
	rateLimitPerIP int
	logger         zerolog.Logger
}

func NewServer(coord *coordinator.Coordinator, n *notifier.Notifier, adminKey string, rateLimitPerIP int, logger zerolog.Logger) *Server {
	return &Server{
		coord:          coord,
		notifier:       n,
		adminAPIKey:    adminKey,
		rateLimitPerIP: rateLimitPerIP,
		logger:         logger.With().Str("component", "api").Logger(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(telemetry.Middleware)
	if s.rateLimitPerIP > 0 {
		r.Use(httprate.LimitByIP(s.rateLimitPerIP, time.Minute))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// The stream endpoint holds connections open, so the request timeout
	// applies to everything else.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))

		// public: reads and evaluation
		r.Get("/v1/flags", s.handleListFlags)
		r.Get("/v1/flags/{key}", s.handleGetFlag)
		r.Post("/v1/evaluate", s.handleEvaluate)

		// admin: mutations and audit
		r.Post("/v1/flags", s.authAdmin(s.handleCreateFlag))
		r.Put("/v1/flags/{key}", s.authAdmin(s.handleUpdateFlag))
		r.Delete("/v1/flags/{key}", s.authAdmin(s.handleDeleteFlag))
		r.Post("/v1/flags/{key}/toggle", s.authAdmin(s.handleToggleFlag))
		r.Post("/v1/flags/{key}/variants", s.authAdmin(s.handleAddVariant))
		r.Post("/v1/flags/{key}/targets", s.authAdmin(s.handleAddTarget))
		r.Get("/v1/flags/{key}/audit", s.authAdmin(s.handleFlagAudit))
		r.Get("/v1/audit", s.authAdmin(s.handleAudit))
	})

	r.Get("/v1/stream", s.handleStream)

	return r
}

// ---- middleware & helpers ----

func (s *Server) authAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
		if got == "" {
			UnauthorizedError(w, r, "missing bearer token")
			return
		}
		// constant-time compare
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminAPIKey)) != 1 {
			ForbiddenError(w, r, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	}
}

// requestMeta captures who performed the request for the audit trail.
func requestMeta(r *http.Request) coordinator.Meta {
	return coordinator.Meta{
		ActorID:   r.Header.Get("X-Actor-ID"),
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
