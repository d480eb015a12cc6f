// Package friends maintains the friend-facing read views: one public
// profile per user and a bounded set of walk summaries per user. Both are
// derived from the primary user, stats, and walk documents and rebuilt
// wholesale on every relevant write.
package friends

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yalla-nemshi/nemshi/internal/domain"
	"github.com/yalla-nemshi/nemshi/internal/infra/metrics"
)

// Field length limits of the public projections.
const (
	maxDisplayName  = 120
	maxBio          = 280
	maxURL          = 2000
	maxWalkTitle    = 140
	maxMeetingPlace = 120

	defaultDisplayName = "Walker"
	defaultWalkTitle   = "Walk"
)

// Service syncs friend profiles and walk summaries.
type Service struct {
	store        domain.DocumentStore
	maxSummaries int
	now          func() time.Time
}

// NewService creates a sync service keeping at most maxSummaries walk
// summaries per user (domain.MaxWalkSummariesPerUser when <= 0).
func NewService(store domain.DocumentStore, maxSummaries int) *Service {
	if maxSummaries <= 0 {
		maxSummaries = domain.MaxWalkSummariesPerUser
	}
	return &Service{store: store, maxSummaries: maxSummaries, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ─── Profile ────────────────────────────────────────────────────────────────

// BuildProfile projects a user document and its stats into the public
// profile. Field aliases written by older app versions are honoured and
// every malformed value falls back to its default.
func BuildProfile(uid string, user, stats domain.Fields, now time.Time) domain.FriendProfile {
	p := domain.FriendProfile{
		UID:         uid,
		DisplayName: defaultDisplayName,
		PhotoURL:    domain.SanitizeNullable(user.Truthy("photoUrl", "photoURL"), maxURL),
		Bio:         domain.SanitizeNullable(user.Truthy("bio", "about"), maxBio),
		UpdatedAt:   now,
	}
	if name, ok := domain.SanitizeString(user.Get("displayName"), maxDisplayName); ok {
		p.DisplayName = name
	}

	rating := stats.First("hostRating", "averageHostRating")
	if rating == nil {
		rating = user.Get("hostRating")
	}
	p.HostRating = domain.NullableNumber(rating, 2)

	p.TotalWalksHosted = domain.NumberOr(stats.First("totalWalksHosted", "hostedWalks"), 0, 0)
	p.TotalWalksJoined = domain.NumberOr(stats.First("totalWalksJoined", "joinedWalks", "totalWalks"), 0, 0)
	p.TotalDistanceKm = domain.NumberOr(stats.First("totalDistanceKm", "totalDistance"), 0, 2)

	if minutes := stats.First("totalMinutes", "totalDurationMinutes"); minutes != nil {
		p.TotalMinutes = domain.NumberOr(minutes, 0, 0)
	} else if secs, ok := domain.CoerceNumber(stats.Get("totalDuration"), -1); ok {
		p.TotalMinutes = domain.NumberOr(secs/60, 0, 0)
	}

	last := user.Truthy("lastActiveAt")
	if last == nil {
		last = stats.Truthy("lastCompletedAt", "lastWalkAt", "lastWalkDate")
	}
	p.LastActiveAt = domain.CoerceTime(last)
	return p
}

// RefreshProfile rebuilds friend_profiles/{uid}. A user whose document no
// longer exists has the profile removed instead.
func (s *Service) RefreshProfile(ctx context.Context, uid string) error {
	const op = "friends.refresh"

	var user, stats *domain.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.store.Get(gctx, domain.UserPath(uid))
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.store.Get(gctx, domain.StatsPath(uid))
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.E(op, domain.KindPersistence, err)
	}

	if user == nil {
		log.Printf("[friends] user %s missing, removing profile", uid)
		return s.DeleteProfile(ctx, uid)
	}

	var statsData domain.Fields
	if stats != nil {
		statsData = stats.Data
	}
	p := BuildProfile(uid, user.Data, statsData, s.now().UTC())
	if err := s.store.Set(ctx, domain.FriendProfilePath(uid), p.Fields(), true); err != nil {
		return domain.E(op, domain.KindPersistence, err)
	}
	metrics.ProfileSyncs.WithLabelValues("refresh").Inc()
	log.Printf("[friends] synced profile for %s", uid)
	return nil
}

// DeleteProfile removes friend_profiles/{uid}. Idempotent.
func (s *Service) DeleteProfile(ctx context.Context, uid string) error {
	if err := s.store.Delete(ctx, domain.FriendProfilePath(uid)); err != nil {
		return domain.E("friends.delete", domain.KindPersistence, err)
	}
	metrics.ProfileSyncs.WithLabelValues("delete").Inc()
	return nil
}
