package engagement

import (
	"context"

	"github.com/yalla-nemshi/nemshi/internal/domain"
)

// Recorder runs the completion pipeline: stats first, then badges
// against the stats just written.
type Recorder struct {
	stats  *StatsService
	badges *BadgeService
}

// NewRecorder creates a completion pipeline.
func NewRecorder(stats *StatsService, badges *BadgeService) *Recorder {
	return &Recorder{stats: stats, badges: badges}
}

// Record applies c to uid's stats and re-evaluates badges. A duplicate
// completion stops before badge evaluation and returns the duplicate error.
func (r *Recorder) Record(ctx context.Context, uid string, c Completion) (domain.UserStats, Evaluation, error) {
	stats, err := r.stats.ApplyCompletion(ctx, uid, c)
	if err != nil {
		return stats, Evaluation{}, err
	}
	eval, err := r.badges.Evaluate(ctx, uid, stats)
	return stats, eval, err
}

// Reevaluate recomputes badges from the stored stats without counting a walk.
func (r *Recorder) Reevaluate(ctx context.Context, uid string) (Evaluation, error) {
	stats, err := r.stats.Get(ctx, uid)
	if err != nil {
		return Evaluation{}, err
	}
	return r.badges.Evaluate(ctx, uid, stats)
}
