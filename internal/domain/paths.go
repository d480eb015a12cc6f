package domain

import (
	"path"
	"strings"
)

// Collection names of the persisted layout.
const (
	CollUsers          = "users"
	CollWalks          = "walks"
	CollStats          = "stats"
	CollBadges         = "badges"
	CollFCMTokens      = "fcmTokens"
	CollStatsLedger    = "stats_ledger"
	CollFriendProfiles = "friend_profiles"
	CollWalkSummaries  = "walk_summaries"
	CollAllowed        = "allowed"
)

func UserPath(uid string) string { return CollUsers + "/" + uid }

func StatsPath(uid string) string { return UserPath(uid) + "/" + CollStats + "/" + StatsDocID }

func BadgesCollection(uid string) string { return UserPath(uid) + "/" + CollBadges }

func BadgePath(uid, badgeID string) string { return BadgesCollection(uid) + "/" + badgeID }

func FCMTokensCollection(uid string) string { return UserPath(uid) + "/" + CollFCMTokens }

// StatsLedgerPath is the tombstone recording that a walk was counted for uid.
func StatsLedgerPath(uid, walkID string) string {
	return UserPath(uid) + "/" + CollStatsLedger + "/" + walkID
}

func ParticipationPath(uid, walkID string) string {
	return UserPath(uid) + "/" + CollWalks + "/" + walkID
}

func WalkPath(walkID string) string { return CollWalks + "/" + walkID }

func WalkAllowedPath(walkID, uid string) string {
	return WalkPath(walkID) + "/" + CollAllowed + "/" + uid
}

func FriendProfilePath(uid string) string { return CollFriendProfiles + "/" + uid }

func WalkSummariesCollection(uid string) string {
	return FriendProfilePath(uid) + "/" + CollWalkSummaries
}

func WalkSummaryPath(uid, walkID string) string {
	return WalkSummariesCollection(uid) + "/" + walkID
}

// SplitDocPath validates a document path and returns its collection path
// and document id. Document paths have an even number of segments.
func SplitDocPath(p string) (collection, id string, err error) {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	if len(segs) < 2 || len(segs)%2 != 0 {
		return "", "", ErrInvalidPath
	}
	for _, s := range segs {
		if s == "" {
			return "", "", ErrInvalidPath
		}
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

// CollectionID returns the last segment of a collection path.
func CollectionID(collection string) string {
	return path.Base(collection)
}
