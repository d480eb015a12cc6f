// Package engagement folds walk completions into per-user stats and
// evaluates badge progress against those stats.
package engagement

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/yalla-nemshi/nemshi/internal/domain"
	"github.com/yalla-nemshi/nemshi/internal/infra/metrics"
)

// Completion is one walk finished by one user.
type Completion struct {
	WalkID          string  // empty disables the duplicate check
	DurationMinutes float64 // negative or non-finite values count as 0
	DistanceKm      float64 // negative or non-finite values count as 0
	PartialCredit   bool    // left early; counted like a full completion
}

// StatsService maintains users/{uid}/stats/walkStats.
// Counters only ever grow.
type StatsService struct {
	store  domain.DocumentStore
	dedupe bool
	now    func() time.Time
}

// NewStatsService creates a stats service. With dedupe set, a completion
// carrying a walk id is counted at most once per user.
func NewStatsService(store domain.DocumentStore, dedupe bool) *StatsService {
	return &StatsService{store: store, dedupe: dedupe, now: time.Now}
}

// WithClock overrides the time source.
func (s *StatsService) WithClock(now func() time.Time) *StatsService {
	s.now = now
	return s
}

// Get reads a user's stats. Missing stats decode as all zeros.
func (s *StatsService) Get(ctx context.Context, uid string) (domain.UserStats, error) {
	doc, err := s.store.Get(ctx, domain.StatsPath(uid))
	if err != nil {
		return domain.UserStats{}, domain.E("stats.get", domain.KindPersistence, err)
	}
	if doc == nil {
		return domain.UserStats{UserID: uid}, nil
	}
	st := domain.DecodeUserStats(doc.Data)
	if st.UserID == "" {
		st.UserID = uid
	}
	return st, nil
}

// ApplyCompletion adds one completed walk to uid's totals and returns the
// stats as stored afterwards. Only changed fields are merged, so fields
// other writers own (totalWalksHosted, ...) are left alone.
//
// A redelivered completion for a walk already counted returns the current
// stats with an error wrapping domain.ErrDuplicateCompletion.
func (s *StatsService) ApplyCompletion(ctx context.Context, uid string, c Completion) (domain.UserStats, error) {
	const op = "stats.apply"
	if uid == "" {
		return domain.UserStats{}, domain.E(op, domain.KindInvalidInput, errors.New("user id is required"))
	}

	minutes := nonNegative(c.DurationMinutes)
	distance := nonNegative(c.DistanceKm)
	seconds := int64(math.Floor(minutes*60 + 0.5))

	useLedger := s.dedupe && c.WalkID != ""
	if useLedger {
		seen, err := s.store.Get(ctx, domain.StatsLedgerPath(uid, c.WalkID))
		if err != nil {
			return domain.UserStats{}, domain.E(op, domain.KindPersistence, err)
		}
		if seen != nil {
			metrics.StatsUpdates.WithLabelValues("duplicate").Inc()
			log.Printf("[stats] walk %s already counted for %s, skipping", c.WalkID, uid)
			current, err := s.Get(ctx, uid)
			if err != nil {
				return domain.UserStats{}, err
			}
			return current, domain.E(op, domain.KindDuplicate, domain.ErrDuplicateCompletion)
		}
	}

	doc, err := s.store.Get(ctx, domain.StatsPath(uid))
	if err != nil {
		return domain.UserStats{}, domain.E(op, domain.KindPersistence, err)
	}

	now := s.now().UTC()
	var (
		update map[string]any
		merged = domain.Fields{}
	)
	if doc == nil {
		update = map[string]any{
			"userId":                 uid,
			"totalWalksCompleted":    1,
			"totalWalksJoined":       1,
			"totalWalksHosted":       0,
			"totalDistanceKm":        distance,
			"totalDuration":          seconds,
			"totalParticipants":      1,
			"averageDistancePerWalk": distance,
			"averageDurationPerWalk": float64(seconds),
			"lastWalkDate":           now,
			"createdAt":              now,
			"lastUpdated":            now,
		}
	} else {
		for k, v := range doc.Data {
			merged[k] = v
		}
		prev := domain.DecodeUserStats(doc.Data)
		walks := prev.TotalWalksCompleted + 1
		totalDistance := prev.TotalDistanceKm + distance
		totalSeconds := prev.TotalDurationSeconds + seconds
		update = map[string]any{
			"totalWalksCompleted":    walks,
			"totalDistanceKm":        totalDistance,
			"totalDuration":          totalSeconds,
			"averageDistancePerWalk": totalDistance / float64(walks),
			"averageDurationPerWalk": float64(totalSeconds) / float64(walks),
			"lastWalkDate":           now,
			"lastUpdated":            now,
		}
	}
	for k, v := range update {
		merged[k] = v
	}

	batch := s.store.Batch()
	batch.Set(domain.StatsPath(uid), update, true)
	if useLedger {
		batch.Set(domain.StatsLedgerPath(uid, c.WalkID), map[string]any{
			"walkId":          c.WalkID,
			"durationMinutes": minutes,
			"distanceKm":      distance,
			"partialCredit":   c.PartialCredit,
			"recordedAt":      now,
		}, false)
	}
	if err := batch.Commit(ctx); err != nil {
		return domain.UserStats{}, domain.E(op, domain.KindPersistence, err)
	}

	kind := "full"
	if c.PartialCredit {
		kind = "partial"
	}
	metrics.StatsUpdates.WithLabelValues(kind).Inc()
	log.Printf("[stats] updated %s: +%.0f min, +%.2f km (%s)", uid, minutes, distance, kind)

	st := domain.DecodeUserStats(merged)
	if st.UserID == "" {
		st.UserID = uid
	}
	return st, nil
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
