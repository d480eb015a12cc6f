package firebase

import (
	"errors"
	"testing"

	"github.com/yalla-nemshi/nemshi/internal/domain"
)

func TestBuildMulticast_Tagged(t *testing.T) {
	mm := buildMulticast(domain.PushMessage{
		Tokens: []string{"a", "b"},
		Title:  "🎉 Badge Earned!",
		Body:   `"First Steps" - Complete your first walk.`,
		Data:   map[string]string{"action": "badge_earned"},
		Tag:    "badge_notification",
	})
	if len(mm.Tokens) != 2 || mm.Notification.Title != "🎉 Badge Earned!" {
		t.Errorf("message = %+v", mm)
	}
	if mm.Android == nil || mm.Android.Notification.Tag != "badge_notification" {
		t.Error("android tag not set")
	}
	if mm.APNS == nil || mm.APNS.Headers["apns-collapse-id"] != "badge_notification" {
		t.Error("apns collapse id not set")
	}
	if mm.Data["action"] != "badge_earned" {
		t.Errorf("data = %v", mm.Data)
	}
}

func TestBuildMulticast_Untagged(t *testing.T) {
	mm := buildMulticast(domain.PushMessage{Tokens: []string{"a"}, Title: "t"})
	if mm.Android != nil || mm.APNS != nil || mm.Webpush != nil {
		t.Error("platform configs should be omitted without a tag")
	}
}

func TestIsDeadToken(t *testing.T) {
	if isDeadToken(nil) {
		t.Error("nil error is not dead")
	}
	if isDeadToken(errors.New("deadline exceeded")) {
		t.Error("plain errors are not dead tokens")
	}
}
