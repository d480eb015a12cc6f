// Package notify delivers pushes to every registered device of a user and
// retires tokens the push service reports as dead.
package notify

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/yalla-nemshi/nemshi/internal/domain"
	"github.com/yalla-nemshi/nemshi/internal/infra/metrics"
)

// MaxTokensPerMulticast is the push service's per-request token limit.
const MaxTokensPerMulticast = 500

const fanOutLimit = 8

// Dispatcher resolves a user's tokens from users/{uid}/fcmTokens and
// multicasts through a Messenger.
type Dispatcher struct {
	store     domain.DocumentStore
	messenger domain.Messenger
}

var _ domain.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher.
func NewDispatcher(store domain.DocumentStore, messenger domain.Messenger) *Dispatcher {
	return &Dispatcher{store: store, messenger: messenger}
}

// Tokens returns the user's distinct push tokens and, per token, the
// documents holding it. A token document without a token field uses its
// document id as the token.
func (d *Dispatcher) Tokens(ctx context.Context, uid string) ([]string, map[string][]string, error) {
	docs, err := d.store.Query(ctx, domain.Query{Collection: domain.FCMTokensCollection(uid)})
	if err != nil {
		return nil, nil, err
	}
	var tokens []string
	paths := make(map[string][]string)
	for _, doc := range docs {
		token, ok := domain.SanitizeString(doc.Data.Get("token"), 0)
		if !ok {
			token = doc.ID
		}
		if _, seen := paths[token]; !seen {
			tokens = append(tokens, token)
		}
		paths[token] = append(paths[token], doc.Path)
	}
	return tokens, paths, nil
}

// Send pushes n to every device of uid. A user without tokens is a no-op.
// Dead tokens are deleted after the send. An error is returned when the
// transport fails or no device accepted the push.
func (d *Dispatcher) Send(ctx context.Context, uid string, n domain.Notification, data map[string]string, tag string) error {
	const op = "notify.send"

	tokens, paths, err := d.Tokens(ctx, uid)
	if err != nil {
		return domain.E(op, domain.KindPersistence, err)
	}
	if len(tokens) == 0 {
		log.Printf("[notify] %s has no push tokens, skipping", uid)
		return nil
	}

	var (
		results []domain.TokenResult
		sendErr error
	)
	for start := 0; start < len(tokens); start += MaxTokensPerMulticast {
		end := min(start+MaxTokensPerMulticast, len(tokens))
		res, err := d.messenger.SendMulticast(ctx, domain.PushMessage{
			Tokens: tokens[start:end],
			Title:  n.Title,
			Body:   n.Body,
			Data:   data,
			Tag:    tag,
		})
		if err != nil {
			sendErr = err
			continue
		}
		results = append(results, res.Results...)
	}

	var dead []string
	success := 0
	for _, r := range results {
		if r.Success {
			success++
			continue
		}
		if r.Dead {
			dead = append(dead, r.Token)
		}
	}
	metrics.PushSent.WithLabelValues("success").Add(float64(success))
	metrics.PushSent.WithLabelValues("failure").Add(float64(len(results) - success))

	if len(dead) > 0 {
		if err := d.retire(ctx, dead, paths); err != nil {
			log.Printf("[notify] retire %d tokens for %s: %v", len(dead), uid, err)
		} else {
			log.Printf("[notify] retired %d dead tokens for %s", len(dead), uid)
		}
	}

	if sendErr != nil {
		return domain.E(op, domain.KindDispatch, sendErr)
	}
	if success == 0 {
		return domain.E(op, domain.KindDispatch, fmt.Errorf("%w (%d tokens)", domain.ErrPushFailed, len(tokens)))
	}
	log.Printf("[notify] sent %q to %s (%d/%d devices)", tag, uid, success, len(tokens))
	return nil
}

// SendToUsers sends the same push to several users concurrently. Failures
// are logged per user and do not stop the others. Returns how many sends
// succeeded.
func (d *Dispatcher) SendToUsers(ctx context.Context, uids []string, n domain.Notification, data map[string]string, tag string) int {
	var (
		g       errgroup.Group
		reached atomic.Int64
	)
	g.SetLimit(fanOutLimit)
	for _, uid := range uids {
		g.Go(func() error {
			if err := d.Send(ctx, uid, n, data, tag); err != nil {
				log.Printf("[notify] send to %s: %v", uid, err)
				return nil
			}
			reached.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(reached.Load())
}

func (d *Dispatcher) retire(ctx context.Context, dead []string, paths map[string][]string) error {
	batch := d.store.Batch()
	for _, token := range dead {
		for _, p := range paths[token] {
			batch.Delete(p)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return err
	}
	metrics.PushTokensRetired.Add(float64(len(dead)))
	return nil
}
