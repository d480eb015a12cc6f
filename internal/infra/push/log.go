// Package push provides a Messenger for local runs without FCM credentials.
package push

import (
	"context"
	"log"
	"strings"

	"github.com/yalla-nemshi/nemshi/internal/domain"
)

// LogMessenger logs every push and reports it delivered. Tokens listed in
// Dead are reported as unregistered, which lets dead-token cleanup be
// exercised end to end without a push service.
type LogMessenger struct {
	Dead map[string]bool
}

var _ domain.Messenger = (*LogMessenger)(nil)

// NewLogMessenger creates a log-only messenger.
func NewLogMessenger() *LogMessenger {
	return &LogMessenger{Dead: map[string]bool{}}
}

func (m *LogMessenger) SendMulticast(_ context.Context, msg domain.PushMessage) (domain.MulticastResult, error) {
	log.Printf("[push] %q %q tag=%s data=%v -> %s",
		msg.Title, msg.Body, msg.Tag, msg.Data, strings.Join(msg.Tokens, ","))
	res := domain.MulticastResult{Results: make([]domain.TokenResult, len(msg.Tokens))}
	for i, tok := range msg.Tokens {
		if m.Dead[tok] {
			res.Results[i] = domain.TokenResult{Token: tok, Dead: true}
			continue
		}
		res.Results[i] = domain.TokenResult{Token: tok, Success: true}
	}
	return res, nil
}
