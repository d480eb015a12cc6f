package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/yalla-nemshi/nemshi/internal/domain"
	"github.com/yalla-nemshi/nemshi/internal/infra/metrics"
)

// maxEventBytes caps a trigger body. Documents are limited to 1 MiB and an
// event carries two of them.
const maxEventBytes = 3 << 20

// Event is one document change delivered by the trigger feed.
// Before is null on create and After is null on delete.
type Event struct {
	ID     string        `json:"id"`
	Before domain.Fields `json:"before"`
	After  domain.Fields `json:"after"`
}

// Trigger outcomes.
const (
	outcomeOK      = "ok"
	outcomeSkipped = "skipped"
	outcomeError   = "error"
)

// triggerResponse is the acknowledgement body.
type triggerResponse struct {
	ID      string `json:"id"`
	Handler string `json:"handler"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

type triggerFunc func(ctx context.Context, r *http.Request, ev Event) (string, error)

// trigger decodes the event envelope and runs fn. Failures are logged and
// acknowledged with 200 unless retries are enabled and the failure is
// retryable, in which case 500 asks the platform to redeliver.
func (s *Server) trigger(handler string, fn triggerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			metrics.TriggerLatency.WithLabelValues(handler).Observe(time.Since(start).Seconds())
		}()

		var ev Event
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&ev); err != nil {
			metrics.TriggerInvocations.WithLabelValues(handler, outcomeError).Inc()
			writeError(w, http.StatusBadRequest, "invalid event: "+err.Error())
			return
		}
		if ev.ID == "" {
			ev.ID = r.Header.Get("Ce-Id")
		}
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}

		outcome, err := fn(r.Context(), r, ev)
		resp := triggerResponse{ID: ev.ID, Handler: handler, Outcome: outcome}
		if err != nil {
			resp.Outcome = outcomeError
			resp.Error = err.Error()
			resp.Kind = string(domain.KindOf(err))
			log.Printf("[api] trigger %s event %s: %v", handler, ev.ID, err)
		}
		metrics.TriggerInvocations.WithLabelValues(handler, resp.Outcome).Inc()

		status := http.StatusOK
		if err != nil && s.retryOnError && domain.Retryable(err) {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, resp)
	}
}

func (s *Server) onWalkWrite(ctx context.Context, r *http.Request, ev Event) (string, error) {
	walkID := chi.URLParam(r, "walkId")
	out, err := s.svc.Walks.HandleWalkWrite(ctx, walkID, ev.Before, ev.After)
	if err != nil {
		return outcomeError, err
	}
	if out.Prompted == 0 && len(out.Credited) == 0 && !out.AutoCompleted &&
		len(out.Summaries.Upserted) == 0 && len(out.Summaries.Deleted) == 0 {
		return outcomeSkipped, nil
	}
	return outcomeOK, nil
}

func (s *Server) onParticipationWrite(ctx context.Context, r *http.Request, ev Event) (string, error) {
	credited, err := s.svc.Walks.HandleParticipationWrite(ctx,
		chi.URLParam(r, "uid"), chi.URLParam(r, "walkId"), ev.Before, ev.After)
	if err != nil {
		return outcomeError, err
	}
	if !credited {
		return outcomeSkipped, nil
	}
	return outcomeOK, nil
}

func (s *Server) onUserWrite(ctx context.Context, r *http.Request, ev Event) (string, error) {
	uid := chi.URLParam(r, "uid")
	if ev.After == nil {
		return outcomeOK, s.svc.Friends.DeleteProfile(ctx, uid)
	}
	return outcomeOK, s.svc.Friends.RefreshProfile(ctx, uid)
}

func (s *Server) onStatsWrite(ctx context.Context, r *http.Request, ev Event) (string, error) {
	return outcomeOK, s.svc.Friends.RefreshProfile(ctx, chi.URLParam(r, "uid"))
}
