package friends

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yalla-nemshi/nemshi/internal/domain"
	"github.com/yalla-nemshi/nemshi/internal/infra/metrics"
)

const (
	syncConcurrency = 8
	pruneBatchSize  = 400
)

// ─── Roles & Categories ─────────────────────────────────────────────────────

// ShareableRoles returns who may see w in friend timelines and in which
// role. Private or hidden walks share with nobody. The host keeps the host
// role even when also listed as a participant.
func ShareableRoles(w *domain.Walk) map[string]domain.WalkRole {
	roles := make(map[string]domain.WalkRole)
	if w == nil || w.Visibility == domain.VisibilityPrivate || w.HideFromFriends {
		return roles
	}
	if w.HostUID != "" {
		roles[w.HostUID] = domain.RoleHost
	}
	for _, uid := range w.JoinedUIDs {
		if _, ok := roles[uid]; ok {
			continue
		}
		if uid == w.HostUID {
			roles[uid] = domain.RoleHost
		} else {
			roles[uid] = domain.RoleParticipant
		}
	}
	return roles
}

// Category buckets a walk: cancelled wins, then a completed or past status,
// then a start time at or before now; everything else is upcoming.
func Category(w *domain.Walk, start *time.Time, now time.Time) domain.WalkCategory {
	if w == nil {
		return domain.CategoryUnknown
	}
	if w.Cancelled {
		return domain.CategoryCancelled
	}
	switch w.StatusLower() {
	case domain.WalkStatusCompleted, domain.WalkStatusPast:
		return domain.CategoryPast
	}
	if start != nil && !start.After(now) {
		return domain.CategoryPast
	}
	return domain.CategoryUpcoming
}

// BuildSummary projects w into the summary stored for a user holding role.
// A nil walk yields nil.
func BuildSummary(w *domain.Walk, role domain.WalkRole, now time.Time) *domain.WalkSummary {
	if w == nil {
		return nil
	}
	raw := w.Raw()
	start := w.StartTime()

	s := &domain.WalkSummary{
		WalkID:     w.ID,
		Role:       role,
		Title:      defaultWalkTitle,
		Visibility: w.Visibility,
		StartTime:  start,
		EndTime:    w.EndTime(),
		Category:   Category(w, start, now),
		MeetingPlaceName: domain.SanitizeNullable(
			raw.Truthy("meetingPlaceName", "meetingPointName", "meetingPlace"), maxMeetingPlace),
		DistanceKm: domain.NumberOr(raw.First("distanceKm", "distance", "lengthKm"), 0, 2),
		EstimatedDurationMinutes: domain.NullableNumber(
			raw.First("plannedDurationMinutes", "expectedDurationMinutes", "estimatedDurationMinutes"), 0),
		CoverPhotoURL: domain.SanitizeNullable(
			raw.Truthy("coverPhotoUrl", "photoUrl", "heroImageUrl"), maxURL),
		UpdatedAt: now,
	}
	if title, ok := domain.SanitizeString(raw.Get("title"), maxWalkTitle); ok {
		s.Title = title
	}
	if w.Status != "" {
		status := w.Status
		s.Status = &status
	}
	if w.HostUID != "" {
		host := w.HostUID
		s.HostUID = &host
	}
	return s
}

// ─── Summary Writes ─────────────────────────────────────────────────────────

// UpsertSummary writes the summary of w for uid. A nil walk removes it.
func (s *Service) UpsertSummary(ctx context.Context, uid string, w *domain.Walk, role domain.WalkRole) error {
	sum := BuildSummary(w, role, s.now().UTC())
	if sum == nil {
		if w == nil {
			return nil
		}
		return s.DeleteSummary(ctx, uid, w.ID)
	}
	if err := s.store.Set(ctx, domain.WalkSummaryPath(uid, w.ID), sum.Fields(), true); err != nil {
		return domain.E("friends.upsert_summary", domain.KindPersistence, err)
	}
	metrics.SummaryWrites.WithLabelValues("upsert").Inc()
	return nil
}

// DeleteSummary removes uid's summary of walkID. Idempotent.
func (s *Service) DeleteSummary(ctx context.Context, uid, walkID string) error {
	if err := s.store.Delete(ctx, domain.WalkSummaryPath(uid, walkID)); err != nil {
		return domain.E("friends.delete_summary", domain.KindPersistence, err)
	}
	metrics.SummaryWrites.WithLabelValues("delete").Inc()
	return nil
}

// EnforceWalkSummaryLimit keeps uid's most recently updated summaries and
// deletes the rest. Returns how many were pruned.
func (s *Service) EnforceWalkSummaryLimit(ctx context.Context, uid string) (int, error) {
	const op = "friends.prune"
	overflow, err := s.store.Query(ctx, domain.Query{
		Collection: domain.WalkSummariesCollection(uid),
		OrderBy:    "updatedAt",
		Direction:  domain.Desc,
		Offset:     s.maxSummaries,
	})
	if err != nil {
		return 0, domain.E(op, domain.KindPersistence, err)
	}
	if len(overflow) == 0 {
		return 0, nil
	}

	for start := 0; start < len(overflow); start += pruneBatchSize {
		end := min(start+pruneBatchSize, len(overflow))
		batch := s.store.Batch()
		for _, doc := range overflow[start:end] {
			batch.Delete(doc.Path)
		}
		if err := batch.Commit(ctx); err != nil {
			return start, domain.E(op, domain.KindPersistence, err)
		}
	}
	metrics.SummaryWrites.WithLabelValues("prune").Add(float64(len(overflow)))
	log.Printf("[friends] pruned %d excess summaries for %s", len(overflow), uid)
	return len(overflow), nil
}

// ─── Walk Sync ──────────────────────────────────────────────────────────────

// SyncResult reports what a walk sync touched.
type SyncResult struct {
	Upserted []string
	Deleted  []string
	Pruned   int
}

// SyncWalk reconciles summaries after a walk write. Users in after's role
// set get an upsert, users only in before's lose their summary, and every
// touched user is pruned back to the cap. Users are processed concurrently;
// a failure for one is logged and does not stop the others.
func (s *Service) SyncWalk(ctx context.Context, walkID string, before, after *domain.Walk) (SyncResult, error) {
	beforeRoles := ShareableRoles(before)
	afterRoles := ShareableRoles(after)

	var res SyncResult
	for uid := range afterRoles {
		res.Upserted = append(res.Upserted, uid)
	}
	for uid := range beforeRoles {
		if _, kept := afterRoles[uid]; !kept {
			res.Deleted = append(res.Deleted, uid)
		}
	}
	sort.Strings(res.Upserted)
	sort.Strings(res.Deleted)

	var (
		mu     sync.Mutex
		errs   []error
		pruned int
		g      errgroup.Group
	)
	g.SetLimit(syncConcurrency)
	record := func(uid string, err error) {
		log.Printf("[friends] sync walk %s for %s: %v", walkID, uid, err)
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	prune := func(uid string) {
		n, err := s.EnforceWalkSummaryLimit(ctx, uid)
		mu.Lock()
		pruned += n
		mu.Unlock()
		if err != nil {
			record(uid, err)
		}
	}

	for _, uid := range res.Upserted {
		g.Go(func() error {
			if err := s.UpsertSummary(ctx, uid, after, afterRoles[uid]); err != nil {
				record(uid, err)
				return nil
			}
			prune(uid)
			return nil
		})
	}
	for _, uid := range res.Deleted {
		g.Go(func() error {
			if err := s.DeleteSummary(ctx, uid, walkID); err != nil {
				record(uid, err)
				return nil
			}
			prune(uid)
			return nil
		})
	}
	_ = g.Wait()

	res.Pruned = pruned
	if len(errs) > 0 {
		return res, domain.E("friends.sync_walk", domain.KindPersistence, errors.Join(errs...))
	}
	return res, nil
}
