// Package walks reacts to walk and participation writes: it prompts
// participants when a walk starts, credits them when it ends or when they
// leave early, closes walks a host forgot to end, and keeps the friend
// walk summaries in step with every walk write.
package walks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yalla-nemshi/nemshi/internal/app/engagement"
	"github.com/yalla-nemshi/nemshi/internal/app/friends"
	"github.com/yalla-nemshi/nemshi/internal/domain"
	"github.com/yalla-nemshi/nemshi/internal/infra/metrics"
)

const (
	// DefaultPlannedMinutes is assumed when a walk has no planned duration.
	DefaultPlannedMinutes = 120
	// DefaultGrace is how long past its planned end a walk may stay active.
	DefaultGrace = 30 * time.Minute

	creditConcurrency = 8
)

// Broadcaster sends one push to several users. Implemented by
// notify.Dispatcher.
type Broadcaster interface {
	SendToUsers(ctx context.Context, uids []string, n domain.Notification, data map[string]string, tag string) int
}

// Config tunes the lifecycle handlers.
type Config struct {
	PlannedMinutes float64       // fallback planned duration
	Grace          time.Duration // buffer after the planned end
	// Inline runs the walk-ended handler right after an auto-complete write.
	// Set it when no change feed will deliver that write back (SQLite).
	Inline bool
}

// Service handles walk lifecycle events.
type Service struct {
	store    domain.DocumentStore
	recorder *engagement.Recorder
	push     Broadcaster
	friends  *friends.Service
	cfg      Config
	now      func() time.Time
}

// NewService creates the lifecycle handlers.
func NewService(store domain.DocumentStore, recorder *engagement.Recorder, push Broadcaster, views *friends.Service, cfg Config) *Service {
	if cfg.PlannedMinutes <= 0 {
		cfg.PlannedMinutes = DefaultPlannedMinutes
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	return &Service{store: store, recorder: recorder, push: push, friends: views, cfg: cfg, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Outcome reports what one walk write triggered.
type Outcome struct {
	Prompted      int      // participants reached by the start prompt
	Credited      []string // users whose completion was recorded
	AutoCompleted bool
	Summaries     friends.SyncResult
}

// HandleWalkWrite runs every walk handler for one change of walks/{walkID}.
// before is nil on create and after is nil on delete. Lifecycle handlers
// only run on updates; summary sync runs on every write. Handler errors are
// joined so one failing handler does not hide the others.
func (s *Service) HandleWalkWrite(ctx context.Context, walkID string, before, after domain.Fields) (Outcome, error) {
	var (
		out  Outcome
		errs []error
	)
	prev := domain.DecodeWalk(walkID, before)
	next := domain.DecodeWalk(walkID, after)

	if prev != nil && next != nil {
		if prev.Status != domain.WalkStatusStarting && next.Status == domain.WalkStatusStarting {
			out.Prompted = s.WalkStarted(ctx, next)
		}
		if prev.Status != domain.WalkStatusCompleted && next.Status == domain.WalkStatusCompleted {
			credited, err := s.WalkEnded(ctx, next)
			out.Credited = credited
			if err != nil {
				errs = append(errs, err)
			}
		}
		done, err := s.AutoComplete(ctx, next)
		out.AutoCompleted = done
		if err != nil {
			errs = append(errs, err)
		}
	}

	if s.friends != nil {
		res, err := s.friends.SyncWalk(ctx, walkID, prev, next)
		out.Summaries = res
		if err != nil {
			errs = append(errs, err)
		}
	}
	return out, errors.Join(errs...)
}

// ─── Walk Started ───────────────────────────────────────────────────────────

// WalkStarted asks every joined participant other than the host whether
// they are joining. Returns how many users were reached.
func (s *Service) WalkStarted(ctx context.Context, w *domain.Walk) int {
	uids := w.Participants()
	if len(uids) == 0 {
		log.Printf("[walks] walk %s started with no participants to prompt", w.ID)
		return 0
	}
	title := strings.TrimSpace(w.Title)
	if title == "" {
		title = "Your walk"
	}
	n := domain.Notification{
		Title: title + " has started!",
		Body:  "Are you joining this walk now?",
	}
	data := map[string]string{
		"action": "walk_confirmation_prompt",
		"walkId": w.ID,
		"type":   "confirmation_needed",
	}
	reached := s.push.SendToUsers(ctx, uids, n, data, "")
	log.Printf("[walks] walk %s started, prompted %d/%d participants", w.ID, reached, len(uids))
	return reached
}

// ─── Walk Ended ─────────────────────────────────────────────────────────────

// WalkEnded marks every participant still actively walking as completed
// and records the walk for each of them. Each user is credited with the
// time from their confirmation (or the walk start) to the walk end and the
// walk's distance. Returns the users credited.
func (s *Service) WalkEnded(ctx context.Context, w *domain.Walk) ([]string, error) {
	const op = "walks.ended"
	now := s.now().UTC()
	startedAt := timeOr(w.StartedAt, now)
	completedAt := timeOr(w.CompletedAt, now)

	docs, err := s.store.Query(ctx, domain.Query{
		Collection: domain.CollWalks,
		Group:      true,
		Where: []domain.Filter{
			{Field: "walkId", Value: w.ID},
			{Field: "status", Value: domain.ParticipationActivelyWalking},
		},
	})
	if err != nil {
		return nil, domain.E(op, domain.KindPersistence, err)
	}
	log.Printf("[walks] walk %s completed, %d active participants", w.ID, len(docs))
	if len(docs) == 0 {
		return nil, nil
	}

	type credit struct {
		uid     string
		minutes float64
	}
	var credits []credit
	batch := s.store.Batch()
	for _, doc := range docs {
		p := domain.DecodeParticipation(doc.Data)
		uid := p.UserID
		if uid == "" {
			uid = ownerOf(doc.Path)
		}
		if uid == "" {
			continue
		}
		minutes := roundMinutes(completedAt.Sub(timeOr(p.ConfirmedAt, startedAt)))
		batch.Set(doc.Path, map[string]any{
			"status":                domain.ParticipationCompleted,
			"completedAt":           completedAt,
			"actualDurationMinutes": minutes,
		}, true)
		credits = append(credits, credit{uid: uid, minutes: minutes})
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, domain.E(op, domain.KindPersistence, err)
	}

	distance := domain.NumberOr(w.Raw().Truthy("distanceKm"), 0, -1)
	credited := make([]bool, len(credits))
	errs := make([]error, len(credits))
	var g errgroup.Group
	g.SetLimit(creditConcurrency)
	for i, c := range credits {
		g.Go(func() error {
			_, _, err := s.recorder.Record(ctx, c.uid, engagement.Completion{
				WalkID:          w.ID,
				DurationMinutes: c.minutes,
				DistanceKm:      distance,
			})
			switch {
			case errors.Is(err, domain.ErrDuplicateCompletion):
				log.Printf("[walks] walk %s already counted for %s", w.ID, c.uid)
			case err != nil:
				log.Printf("[walks] credit %s for walk %s: %v", c.uid, w.ID, err)
				errs[i] = err
			default:
				credited[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []string
	for i, c := range credits {
		if credited[i] {
			out = append(out, c.uid)
		}
	}
	return out, errors.Join(errs...)
}

// ─── Auto-complete ──────────────────────────────────────────────────────────

// AutoComplete closes an active walk whose planned end plus the grace
// period has passed. Returns whether the walk was closed.
func (s *Service) AutoComplete(ctx context.Context, w *domain.Walk) (bool, error) {
	if w == nil || w.Status != domain.WalkStatusActive || w.Completed || w.DateTime == nil {
		return false, nil
	}
	planned := s.cfg.PlannedMinutes
	if w.PlannedDurationMinutes != nil && *w.PlannedDurationMinutes > 0 {
		planned = *w.PlannedDurationMinutes
	}
	now := s.now().UTC()
	deadline := w.DateTime.Add(time.Duration(planned*float64(time.Minute)) + s.cfg.Grace)
	if !now.After(deadline) {
		return false, nil
	}

	update := map[string]any{
		"status":                domain.WalkStatusCompleted,
		"completedAt":           now,
		"actualDurationMinutes": roundMinutes(now.Sub(timeOr(w.StartedAt, *w.DateTime))),
	}
	if err := s.store.Set(ctx, domain.WalkPath(w.ID), update, true); err != nil {
		return false, domain.E("walks.auto_complete", domain.KindPersistence, err)
	}
	metrics.WalksAutoCompleted.Inc()
	log.Printf("[walks] auto-completed walk %s after grace period", w.ID)

	if s.cfg.Inline {
		closed := make(domain.Fields, len(w.Raw())+len(update))
		for k, v := range w.Raw() {
			closed[k] = v
		}
		for k, v := range update {
			closed[k] = v
		}
		if _, err := s.WalkEnded(ctx, domain.DecodeWalk(w.ID, closed)); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Sweep checks every active walk for auto-completion. Returns how many
// walks were closed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	const pageSize = 200
	metrics.SweepRuns.Inc()

	closed := 0
	var errs []error
	cursor := ""
	for {
		docs, err := s.store.Query(ctx, domain.Query{
			Collection: domain.CollWalks,
			Where:      []domain.Filter{{Field: "status", Value: domain.WalkStatusActive}},
			Limit:      pageSize,
			StartAfter: cursor,
		})
		if err != nil {
			return closed, domain.E("walks.sweep", domain.KindPersistence, err)
		}
		for _, doc := range docs {
			done, err := s.AutoComplete(ctx, domain.DecodeWalk(doc.ID, doc.Data))
			if err != nil {
				errs = append(errs, fmt.Errorf("walk %s: %w", doc.ID, err))
				continue
			}
			if done {
				closed++
			}
		}
		if len(docs) < pageSize {
			break
		}
		cursor = docs[len(docs)-1].ID
	}
	if closed > 0 {
		log.Printf("[walks] sweep closed %d walks", closed)
	}
	return closed, errors.Join(errs...)
}

// ─── Left Early ─────────────────────────────────────────────────────────────

// HandleParticipationWrite credits a user who left a walk early, once their
// participation flips to completed_early. Users who never confirmed they
// were walking get nothing. Returns whether a completion was recorded.
func (s *Service) HandleParticipationWrite(ctx context.Context, uid, walkID string, before, after domain.Fields) (bool, error) {
	prev := domain.DecodeParticipation(before)
	next := domain.DecodeParticipation(after)
	if prev == nil || next == nil {
		return false, nil
	}
	if prev.Status == domain.ParticipationCompletedEarly || next.Status != domain.ParticipationCompletedEarly {
		return false, nil
	}
	if next.ConfirmedAt == nil {
		log.Printf("[walks] %s left walk %s without confirming, no credit", uid, walkID)
		return false, nil
	}

	leftAt := timeOr(next.CompletedAt, s.now().UTC())
	minutes := roundMinutes(leftAt.Sub(*next.ConfirmedAt))
	_, _, err := s.recorder.Record(ctx, uid, engagement.Completion{
		WalkID:          walkID,
		DurationMinutes: minutes,
		DistanceKm:      next.ActualDistanceKm,
		PartialCredit:   true,
	})
	if errors.Is(err, domain.ErrDuplicateCompletion) {
		log.Printf("[walks] early leave of %s from %s already counted", uid, walkID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	log.Printf("[walks] %s left walk %s early, credited %.0f min", uid, walkID, minutes)
	return true, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func timeOr(t *time.Time, fallback time.Time) time.Time {
	if t == nil {
		return fallback
	}
	return *t
}

// roundMinutes rounds half up, so -0.5 becomes 0.
func roundMinutes(d time.Duration) float64 {
	return math.Floor(d.Minutes() + 0.5)
}

// ownerOf returns uid from a users/{uid}/walks/{walkId} path.
func ownerOf(path string) string {
	segs := strings.Split(path, "/")
	if len(segs) == 4 && segs[0] == domain.CollUsers && segs[2] == domain.CollWalks {
		return segs[1]
	}
	return ""
}
