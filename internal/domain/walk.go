package domain

import (
	"strings"
	"time"
)

// ─── Walk Status ────────────────────────────────────────────────────────────

// Walk and participation status values written by the app.
const (
	WalkStatusStarting  = "starting"
	WalkStatusActive    = "active"
	WalkStatusCompleted = "completed"
	WalkStatusPast      = "past"

	ParticipationActivelyWalking = "actively_walking"
	ParticipationCompleted       = "completed"
	ParticipationCompletedEarly  = "completed_early"

	VisibilityOpen    = "open"
	VisibilityPrivate = "private"
)

// Walk is the typed view of a walks/{walkId} document.
// Alias fields written by older app versions are folded in here.
type Walk struct {
	ID                     string
	Title                  string
	HostUID                string
	JoinedUIDs             []string // joinedUserUids followed by joinedUids
	Visibility             string   // defaults to "open"
	HideFromFriends        bool
	Cancelled              bool
	Completed              bool
	Status                 string
	ShareCode              string
	DateTime               *time.Time
	StartedAt              *time.Time
	CompletedAt            *time.Time
	PlannedDurationMinutes *float64

	raw Fields
}

// DecodeWalk reads a walk document. A nil payload yields nil.
func DecodeWalk(id string, f Fields) *Walk {
	if f == nil {
		return nil
	}
	w := &Walk{
		ID:              id,
		Title:           f.String("title"),
		HostUID:         f.String("hostUid"),
		Visibility:      f.String("visibility"),
		HideFromFriends: f.Bool("hideFromFriends"),
		Cancelled:       truthy(f.Get("cancelled")),
		Completed:       truthy(f.Get("completed")),
		Status:          f.String("status"),
		ShareCode:       f.String("shareCode"),
		DateTime:        f.Time("dateTime"),
		StartedAt:       f.Time("startedAt"),
		CompletedAt:     f.Time("completedAt"),
		raw:             f,
	}
	if w.Visibility == "" {
		w.Visibility = VisibilityOpen
	}
	w.JoinedUIDs = append(f.Strings("joinedUserUids"), f.Strings("joinedUids")...)
	w.PlannedDurationMinutes = NullableNumber(f.Get("plannedDurationMinutes"), -1)
	return w
}

// Raw returns the undecoded payload.
func (w *Walk) Raw() Fields {
	if w == nil {
		return nil
	}
	return w.raw
}

// Participants returns the joined uids excluding the host, de-duplicated.
func (w *Walk) Participants() []string {
	seen := make(map[string]bool)
	var out []string
	for _, uid := range w.JoinedUIDs {
		if uid == w.HostUID || seen[uid] {
			continue
		}
		seen[uid] = true
		out = append(out, uid)
	}
	return out
}

// StartTime resolves the scheduled or actual start of the walk.
func (w *Walk) StartTime() *time.Time {
	return CoerceTime(w.raw.Truthy("dateTime", "startTime", "startedAt", "startAt"))
}

// EndTime resolves the end of the walk.
func (w *Walk) EndTime() *time.Time {
	return CoerceTime(w.raw.Truthy("completedAt", "endTime", "endsAt"))
}

// StatusLower returns the status lower-cased.
func (w *Walk) StatusLower() string {
	return strings.ToLower(w.Status)
}

// ─── Participation ──────────────────────────────────────────────────────────

// Participation is the typed view of users/{uid}/walks/{walkId}.
type Participation struct {
	UserID           string
	WalkID           string
	Status           string
	ConfirmedAt      *time.Time
	CompletedAt      *time.Time
	ActualDistanceKm float64
}

// DecodeParticipation reads a participation document. A nil payload yields nil.
func DecodeParticipation(f Fields) *Participation {
	if f == nil {
		return nil
	}
	return &Participation{
		UserID:           f.String("userId"),
		WalkID:           f.String("walkId"),
		Status:           f.String("status"),
		ConfirmedAt:      f.Time("confirmedAt"),
		CompletedAt:      f.Time("completedAt"),
		ActualDistanceKm: NumberOr(f.Truthy("actualDistanceKm"), 0, -1),
	}
}
