// Package invite lets a signed-in user unlock a private walk with its
// share code.
package invite

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/yalla-nemshi/nemshi/internal/domain"
)

// Request is the callable payload.
type Request struct {
	WalkID    string
	ShareCode string
}

// RequestFromData reads a request from a loosely typed callable payload.
// Non-string scalars are stringified; everything is trimmed.
func RequestFromData(data domain.Fields) Request {
	return Request{
		WalkID:    text(data.Get("walkId")),
		ShareCode: text(data.Get("shareCode")),
	}
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case bool:
		if !x {
			return ""
		}
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Service redeems walk invites.
type Service struct {
	store domain.DocumentStore
	now   func() time.Time
}

// NewService creates an invite service.
func NewService(store domain.DocumentStore) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Redeem grants uid read access to a private walk when the share code
// matches. Codes compare trimmed and case-insensitively. Redeeming twice
// is harmless.
func (s *Service) Redeem(ctx context.Context, uid string, req Request) error {
	const op = "invite.redeem"
	if uid == "" {
		return domain.E(op, domain.KindUnauthenticated, domain.ErrUnauthenticated)
	}
	walkID := strings.TrimSpace(req.WalkID)
	code := strings.ToUpper(strings.TrimSpace(req.ShareCode))
	if walkID == "" {
		return domain.E(op, domain.KindInvalidInput, domain.ErrMissingWalkID)
	}
	if code == "" {
		return domain.E(op, domain.KindInvalidInput, domain.ErrMissingShareCode)
	}

	doc, err := s.store.Get(ctx, domain.WalkPath(walkID))
	if err != nil {
		return domain.E(op, domain.KindPersistence, err)
	}
	if doc == nil {
		return domain.E(op, domain.KindNotFound, domain.ErrWalkNotFound)
	}
	if doc.Data.String("visibility") != domain.VisibilityPrivate {
		return domain.E(op, domain.KindFailedPrecondition, domain.ErrWalkNotPrivate)
	}
	stored := strings.ToUpper(text(doc.Data.Get("shareCode")))
	if stored == "" || stored != code {
		log.Printf("[invite] %s used a wrong code for walk %s", uid, walkID)
		return domain.E(op, domain.KindPermissionDenied, domain.ErrInvalidInviteCode)
	}

	err = s.store.Set(ctx, domain.WalkAllowedPath(walkID, uid), map[string]any{
		"uid":        uid,
		"walkId":     walkID,
		"redeemedAt": s.now().UTC(),
	}, true)
	if err != nil {
		return domain.E(op, domain.KindPersistence, err)
	}
	log.Printf("[invite] %s redeemed invite for walk %s", uid, walkID)
	return nil
}
