package engagement

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/yalla-nemshi/nemshi/internal/domain"
	"github.com/yalla-nemshi/nemshi/internal/infra/metrics"
)

// achieveEpsilon absorbs float error when a metric lands exactly on a target.
const achieveEpsilon = 1e-9

// BadgeTag correlates badge pushes so a newer one replaces an older one.
const BadgeTag = "badge_notification"

// BadgeService evaluates a user's stats against the catalog and persists
// one BadgeState per catalog entry.
type BadgeService struct {
	store    domain.DocumentStore
	catalog  *Catalog
	notifier domain.Notifier
	now      func() time.Time
}

// NewBadgeService creates a badge evaluator. notifier may be nil.
func NewBadgeService(store domain.DocumentStore, catalog *Catalog, notifier domain.Notifier) *BadgeService {
	return &BadgeService{store: store, catalog: catalog, notifier: notifier, now: time.Now}
}

// WithClock overrides the time source.
func (b *BadgeService) WithClock(now func() time.Time) *BadgeService {
	b.now = now
	return b
}

// Catalog returns the catalog this service evaluates.
func (b *BadgeService) Catalog() *Catalog { return b.catalog }

// Evaluation is the outcome of one Evaluate call.
type Evaluation struct {
	Updated     []domain.BadgeState
	NewlyEarned []domain.BadgeDefinition
}

// Evaluate recomputes every badge for uid. All states are committed in one
// batch; a push goes out per newly earned badge only after the commit.
// Badges never un-earn: a previously achieved badge keeps its earnedAt.
func (b *BadgeService) Evaluate(ctx context.Context, uid string, stats domain.UserStats) (Evaluation, error) {
	const op = "badges.evaluate"
	metrics.BadgeEvaluations.Inc()

	docs, err := b.store.Query(ctx, domain.Query{Collection: domain.BadgesCollection(uid)})
	if err != nil {
		return Evaluation{}, domain.E(op, domain.KindPersistence, err)
	}
	existing := make(map[string]domain.BadgeState, len(docs))
	for _, d := range docs {
		existing[d.ID] = domain.DecodeBadgeState(d.ID, d.Data)
	}

	now := b.now().UTC()
	var res Evaluation
	batch := b.store.Batch()
	for _, def := range b.catalog.defs {
		var prev *domain.BadgeState
		if p, ok := existing[def.ID]; ok {
			prev = &p
		}
		state, earned := evaluateBadge(def, stats.MetricValue(def.Metric), prev, now)
		batch.Set(domain.BadgePath(uid, def.ID), state.Fields(), true)
		res.Updated = append(res.Updated, state)
		if earned {
			res.NewlyEarned = append(res.NewlyEarned, def)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return Evaluation{}, domain.E(op, domain.KindPersistence, err)
	}

	for _, def := range res.NewlyEarned {
		metrics.BadgesEarned.WithLabelValues(def.ID).Inc()
		log.Printf("[badges] %s earned %s", uid, def.ID)
		b.notify(ctx, uid, def)
	}
	return res, nil
}

func (b *BadgeService) notify(ctx context.Context, uid string, def domain.BadgeDefinition) {
	if b.notifier == nil {
		return
	}
	n := domain.Notification{
		Title: "🎉 Badge Earned!",
		Body:  fmt.Sprintf(`"%s" - %s`, def.Title, def.Description),
	}
	data := map[string]string{
		"action":     "badge_earned",
		"badgeId":    def.ID,
		"badgeTitle": def.Title,
	}
	if err := b.notifier.Send(ctx, uid, n, data, BadgeTag); err != nil {
		log.Printf("[badges] notify %s about %s: %v", uid, def.ID, err)
	}
}

// evaluateBadge computes the next state of one badge. earned reports a
// transition from not achieved to achieved.
func evaluateBadge(def domain.BadgeDefinition, value float64, prev *domain.BadgeState, now time.Time) (domain.BadgeState, bool) {
	progress := 0.0
	if def.Target > 0 {
		progress = value / def.Target
		if progress > 1 {
			progress = 1
		}
		if progress < 0 {
			progress = 0
		}
	}
	achieved := value >= def.Target-achieveEpsilon

	wasAchieved := prev != nil && prev.Achieved
	if wasAchieved {
		achieved = true
		if prev.Progress > progress {
			progress = prev.Progress
		}
	}

	var earnedAt *time.Time
	if achieved {
		if prev != nil && prev.EarnedAt != nil {
			t := *prev.EarnedAt
			earnedAt = &t
		} else {
			t := now
			earnedAt = &t
		}
	}

	return domain.BadgeState{
		BadgeID:     def.ID,
		Title:       def.Title,
		Description: def.Description,
		Metric:      def.Metric,
		Target:      def.Target,
		Progress:    progress,
		Achieved:    achieved,
		EarnedAt:    earnedAt,
		UpdatedAt:   now,
	}, achieved && !wasAchieved
}
