// Package domain holds nemshi's typed records and the ports the app layer depends on.
// Stats accumulate per user on every completed walk; badges are evaluated
// against those totals.
package domain

import (
	"time"
)

// ─── Stats ──────────────────────────────────────────────────────────────────

// StatsDocID is the id of the stats document under users/{uid}/stats.
const StatsDocID = "walkStats"

// UserStats is the running total of a user's walking activity.
// Averages are nil until at least one walk is completed.
type UserStats struct {
	UserID                 string     `json:"userId"`
	TotalWalksCompleted    int        `json:"totalWalksCompleted"`
	TotalWalksJoined       int        `json:"totalWalksJoined"`
	TotalWalksHosted       int        `json:"totalWalksHosted"`
	TotalDistanceKm        float64    `json:"totalDistanceKm"`
	TotalDurationSeconds   int64      `json:"totalDuration"`
	TotalParticipants      int        `json:"totalParticipants"`
	AverageDistancePerWalk *float64   `json:"averageDistancePerWalk,omitempty"`
	AverageDurationPerWalk *float64   `json:"averageDurationPerWalk,omitempty"`
	LastWalkDate           *time.Time `json:"lastWalkDate,omitempty"`
	CreatedAt              *time.Time `json:"createdAt,omitempty"`
	LastUpdated            *time.Time `json:"lastUpdated,omitempty"`
}

// DecodeUserStats reads a stats document. Invalid numbers default to 0.
func DecodeUserStats(f Fields) UserStats {
	s := UserStats{
		UserID:               f.String("userId"),
		TotalWalksCompleted:  int(NumberOr(f.Get("totalWalksCompleted"), 0, 0)),
		TotalWalksJoined:     int(NumberOr(f.Get("totalWalksJoined"), 0, 0)),
		TotalWalksHosted:     int(NumberOr(f.Get("totalWalksHosted"), 0, 0)),
		TotalDistanceKm:      NumberOr(f.Get("totalDistanceKm"), 0, -1),
		TotalDurationSeconds: int64(NumberOr(f.Get("totalDuration"), 0, 0)),
		TotalParticipants:    int(NumberOr(f.Get("totalParticipants"), 0, 0)),
		LastWalkDate:         f.Time("lastWalkDate"),
		CreatedAt:            f.Time("createdAt"),
		LastUpdated:          f.Time("lastUpdated"),
	}
	s.AverageDistancePerWalk = NullableNumber(f.Get("averageDistancePerWalk"), -1)
	s.AverageDurationPerWalk = NullableNumber(f.Get("averageDurationPerWalk"), -1)
	return s
}

// MetricValue returns the counter a badge metric is measured against.
func (s UserStats) MetricValue(m BadgeMetric) float64 {
	switch m {
	case MetricWalksCompleted:
		return float64(s.TotalWalksCompleted)
	case MetricDistanceKm:
		return s.TotalDistanceKm
	case MetricWalksHosted:
		return float64(s.TotalWalksHosted)
	}
	return 0
}

// ─── Badges ─────────────────────────────────────────────────────────────────

// BadgeMetric names the stats counter a badge target is measured against.
type BadgeMetric string

const (
	MetricWalksCompleted BadgeMetric = "totalWalksCompleted"
	MetricDistanceKm     BadgeMetric = "totalDistanceKm"
	MetricWalksHosted    BadgeMetric = "totalWalksHosted"
)

// Valid reports whether m is a known metric.
func (m BadgeMetric) Valid() bool {
	switch m {
	case MetricWalksCompleted, MetricDistanceKm, MetricWalksHosted:
		return true
	}
	return false
}

// BadgeDefinition is one immutable catalog entry.
type BadgeDefinition struct {
	ID          string      `json:"id" toml:"id"`
	Title       string      `json:"title" toml:"title"`
	Description string      `json:"description" toml:"description"`
	Metric      BadgeMetric `json:"metric" toml:"metric"`
	Target      float64     `json:"target" toml:"target"`
}

// BadgeState is the per-user progress toward one badge,
// stored at users/{uid}/badges/{badgeId}.
type BadgeState struct {
	BadgeID     string      `json:"badgeId"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Metric      BadgeMetric `json:"metric"`
	Target      float64     `json:"target"`
	Progress    float64     `json:"progress"`
	Achieved    bool        `json:"achieved"`
	EarnedAt    *time.Time  `json:"earnedAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// DecodeBadgeState reads a stored badge document.
func DecodeBadgeState(id string, f Fields) BadgeState {
	st := BadgeState{
		BadgeID:     id,
		Title:       f.String("title"),
		Description: f.String("description"),
		Metric:      BadgeMetric(f.String("metric")),
		Target:      NumberOr(f.Get("target"), 0, -1),
		Progress:    NumberOr(f.Get("progress"), 0, -1),
		Achieved:    f.Bool("achieved"),
		EarnedAt:    f.Time("earnedAt"),
	}
	if t := f.Time("updatedAt"); t != nil {
		st.UpdatedAt = *t
	}
	return st
}

// Fields returns the document payload for a badge state.
// earnedAt is always written, as null while the badge is not achieved.
func (b BadgeState) Fields() map[string]any {
	var earnedAt any
	if b.EarnedAt != nil {
		earnedAt = *b.EarnedAt
	}
	return map[string]any{
		"title":       b.Title,
		"description": b.Description,
		"progress":    b.Progress,
		"target":      b.Target,
		"achieved":    b.Achieved,
		"earnedAt":    earnedAt,
		"metric":      string(b.Metric),
		"updatedAt":   b.UpdatedAt,
	}
}
