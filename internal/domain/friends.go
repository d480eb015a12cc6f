package domain

import "time"

// MaxWalkSummariesPerUser bounds friend_profiles/{uid}/walk_summaries.
const MaxWalkSummariesPerUser = 40

// ─── Roles & Categories ─────────────────────────────────────────────────────

// WalkRole is a user's relationship to a shared walk.
type WalkRole string

const (
	RoleHost        WalkRole = "host"
	RoleParticipant WalkRole = "participant"
)

// WalkCategory buckets a walk for friend timelines.
type WalkCategory string

const (
	CategoryUpcoming  WalkCategory = "upcoming"
	CategoryPast      WalkCategory = "past"
	CategoryCancelled WalkCategory = "cancelled"
	CategoryUnknown   WalkCategory = "unknown"
)

// ─── Friend Profile ─────────────────────────────────────────────────────────

// FriendProfile is the public projection of a user at friend_profiles/{uid}.
type FriendProfile struct {
	UID              string     `json:"uid"`
	DisplayName      string     `json:"displayName"`
	PhotoURL         *string    `json:"photoUrl"`
	Bio              *string    `json:"bio"`
	HostRating       *float64   `json:"hostRating"`
	TotalWalksHosted float64    `json:"totalWalksHosted"`
	TotalWalksJoined float64    `json:"totalWalksJoined"`
	TotalDistanceKm  float64    `json:"totalDistanceKm"`
	TotalMinutes     float64    `json:"totalMinutes"`
	LastActiveAt     *time.Time `json:"lastActiveAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Fields returns the document payload. Nullable fields are written as null.
func (p FriendProfile) Fields() map[string]any {
	return map[string]any{
		"uid":              p.UID,
		"displayName":      p.DisplayName,
		"photoUrl":         nullString(p.PhotoURL),
		"bio":              nullString(p.Bio),
		"hostRating":       nullFloat(p.HostRating),
		"totalWalksHosted": p.TotalWalksHosted,
		"totalWalksJoined": p.TotalWalksJoined,
		"totalDistanceKm":  p.TotalDistanceKm,
		"totalMinutes":     p.TotalMinutes,
		"lastActiveAt":     nullTime(p.LastActiveAt),
		"updatedAt":        p.UpdatedAt,
	}
}

// ─── Walk Summary ───────────────────────────────────────────────────────────

// WalkSummary is a friend-visible snapshot of one walk,
// stored at friend_profiles/{uid}/walk_summaries/{walkId}.
type WalkSummary struct {
	WalkID                   string       `json:"walkId"`
	Role                     WalkRole     `json:"role"`
	Title                    string       `json:"title"`
	Visibility               string       `json:"visibility"`
	Status                   *string      `json:"status"`
	MeetingPlaceName         *string      `json:"meetingPlaceName"`
	StartTime                *time.Time   `json:"startTime"`
	EndTime                  *time.Time   `json:"endTime"`
	Category                 WalkCategory `json:"category"`
	DistanceKm               float64      `json:"distanceKm"`
	EstimatedDurationMinutes *float64     `json:"estimatedDurationMinutes"`
	CoverPhotoURL            *string      `json:"coverPhotoUrl"`
	HostUID                  *string      `json:"hostUid"`
	UpdatedAt                time.Time    `json:"updatedAt"`
}

// Fields returns the document payload.
func (s WalkSummary) Fields() map[string]any {
	return map[string]any{
		"walkId":                   s.WalkID,
		"role":                     string(s.Role),
		"title":                    s.Title,
		"visibility":               s.Visibility,
		"status":                   nullString(s.Status),
		"meetingPlaceName":         nullString(s.MeetingPlaceName),
		"startTime":                nullTime(s.StartTime),
		"endTime":                  nullTime(s.EndTime),
		"category":                 string(s.Category),
		"distanceKm":               s.DistanceKm,
		"estimatedDurationMinutes": nullFloat(s.EstimatedDurationMinutes),
		"coverPhotoUrl":            nullString(s.CoverPhotoURL),
		"hostUid":                  nullString(s.HostUID),
		"updatedAt":                s.UpdatedAt,
	}
}

// DecodeWalkSummary reads a stored summary.
func DecodeWalkSummary(f Fields) WalkSummary {
	s := WalkSummary{
		WalkID:                   f.String("walkId"),
		Role:                     WalkRole(f.String("role")),
		Title:                    f.String("title"),
		Visibility:               f.String("visibility"),
		Status:                   SanitizeNullable(f.Get("status"), 0),
		MeetingPlaceName:         SanitizeNullable(f.Get("meetingPlaceName"), 0),
		StartTime:                f.Time("startTime"),
		EndTime:                  f.Time("endTime"),
		Category:                 WalkCategory(f.String("category")),
		DistanceKm:               NumberOr(f.Get("distanceKm"), 0, -1),
		EstimatedDurationMinutes: NullableNumber(f.Get("estimatedDurationMinutes"), -1),
		CoverPhotoURL:            SanitizeNullable(f.Get("coverPhotoUrl"), 0),
		HostUID:                  SanitizeNullable(f.Get("hostUid"), 0),
	}
	if t := f.Time("updatedAt"); t != nil {
		s.UpdatedAt = *t
	}
	return s
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
