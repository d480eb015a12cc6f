package firebase

import (
	"context"
	"fmt"

	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"github.com/yalla-nemshi/nemshi/internal/domain"
)

// Messenger sends pushes through Firebase Cloud Messaging.
type Messenger struct {
	client *messaging.Client
}

var _ domain.Messenger = (*Messenger)(nil)

// NewMessenger creates an FCM messenger from an initialized app.
func NewMessenger(ctx context.Context, app *fb.App) (*Messenger, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging client: %w", err)
	}
	return &Messenger{client: client}, nil
}

// SendMulticast delivers msg to every token. Per-token failures are
// reported in the result; a token is dead when FCM says it is
// unregistered or malformed.
func (m *Messenger) SendMulticast(ctx context.Context, msg domain.PushMessage) (domain.MulticastResult, error) {
	resp, err := m.client.SendEachForMulticast(ctx, buildMulticast(msg))
	if err != nil {
		return domain.MulticastResult{}, err
	}
	res := domain.MulticastResult{Results: make([]domain.TokenResult, len(msg.Tokens))}
	for i, tok := range msg.Tokens {
		r := domain.TokenResult{Token: tok}
		if i < len(resp.Responses) && resp.Responses[i] != nil {
			sr := resp.Responses[i]
			r.Success = sr.Success
			r.Err = sr.Error
			r.Dead = !sr.Success && isDeadToken(sr.Error)
		}
		res.Results[i] = r
	}
	return res, nil
}

func buildMulticast(msg domain.PushMessage) *messaging.MulticastMessage {
	mm := &messaging.MulticastMessage{
		Tokens: msg.Tokens,
		Data:   msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
	}
	if msg.Tag != "" {
		mm.Android = &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{Tag: msg.Tag},
		}
		mm.APNS = &messaging.APNSConfig{
			Headers: map[string]string{"apns-collapse-id": msg.Tag},
		}
		mm.Webpush = &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{Tag: msg.Tag},
		}
	}
	return mm
}

func isDeadToken(err error) bool {
	if err == nil {
		return false
	}
	return messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err)
}
