// Package api provides the HTTP server for nemshi.
// It receives document-change triggers, serves the invite callable, and
// exposes the badge catalog, health, and metrics.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yalla-nemshi/nemshi/internal/app/engagement"
	"github.com/yalla-nemshi/nemshi/internal/app/friends"
	"github.com/yalla-nemshi/nemshi/internal/app/invite"
	"github.com/yalla-nemshi/nemshi/internal/app/walks"
	"github.com/yalla-nemshi/nemshi/internal/health"
	"github.com/yalla-nemshi/nemshi/internal/security"
)

// Version is reported by /api/version. Overridden at build time.
var Version = "0.1.0"

// TokenVerifier resolves a Firebase ID token to a uid.
// Implemented by infra/firebase.Verifier.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, idToken string) (string, error)
}

// Services are the application components the server routes to.
type Services struct {
	Walks    *walks.Service
	Friends  *friends.Service
	Invites  *invite.Service
	Catalog  *engagement.Catalog
	Health   *health.Checker
	Verifier TokenVerifier // nil rejects every callable as unauthenticated
}

// Server is the nemshi HTTP API server.
type Server struct {
	svc            Services
	metricsEnabled bool
	retryOnError   bool
	triggerToken   string
	timeout        time.Duration
}

// NewServer creates a new API server.
func NewServer(svc Services) *Server {
	return &Server{svc: svc, timeout: time.Minute}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetRetryOnError makes retryable trigger failures answer 500 so the
// delivery platform redelivers the event.
func (s *Server) SetRetryOnError(on bool) { s.retryOnError = on }

// SetTriggerToken requires trigger deliveries to carry this value in the
// X-Trigger-Token header, or an X-Trigger-Signature HMAC of the body keyed
// by it. Empty disables the check.
func (s *Server) SetTriggerToken(token string) { s.triggerToken = token }

// SetTimeout bounds each request.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.handleHealth)

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})

	if s.svc.Catalog != nil {
		r.Get("/api/badges", s.handleBadges)
	}

	r.Route("/triggers", func(r chi.Router) {
		r.Use(s.requireTriggerToken)
		if s.svc.Walks != nil {
			r.Post("/walks/{walkId}", s.trigger("walk_write", s.onWalkWrite))
			r.Post("/users/{uid}/walks/{walkId}", s.trigger("participation_write", s.onParticipationWrite))
		}
		if s.svc.Friends != nil {
			r.Post("/users/{uid}", s.trigger("user_write", s.onUserWrite))
			r.Post("/users/{uid}/stats", s.trigger("stats_write", s.onStatsWrite))
		}
	})

	if s.svc.Invites != nil {
		r.Post("/callable/redeemWalkInvite", s.handleRedeemWalkInvite)
	}

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.svc.Health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.svc.Health.Statuses(),
	})
}

func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"badges": s.svc.Catalog.Definitions(),
	})
}

func (s *Server) requireTriggerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.triggerToken == "" || security.TokenMatches(r.Header.Get("X-Trigger-Token"), s.triggerToken) {
			next.ServeHTTP(w, r)
			return
		}
		sig := r.Header.Get("X-Trigger-Signature")
		if sig == "" {
			writeError(w, http.StatusUnauthorized, "invalid trigger token")
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		if !security.VerifySignature(s.triggerToken, body, sig) {
			writeError(w, http.StatusUnauthorized, "invalid trigger signature")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}
