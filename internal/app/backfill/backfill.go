// Package backfill rebuilds derived documents for the whole user base:
// friend profiles, walk summaries, and the lower-cased display name used
// for search. Every job pages through its collection by document id and
// may be re-run safely.
package backfill

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yalla-nemshi/nemshi/internal/app/friends"
	"github.com/yalla-nemshi/nemshi/internal/domain"
)

// Page sizes.
const (
	UsersPageSize       = 200
	WalksPageSize       = 100
	DisplayNamePageSize = 400

	fanOut = 16
)

// Runner executes backfill jobs.
type Runner struct {
	store   domain.DocumentStore
	friends *friends.Service
}

// NewRunner creates a backfill runner.
func NewRunner(store domain.DocumentStore, views *friends.Service) *Runner {
	return &Runner{store: store, friends: views}
}

// ProfileReport summarizes a profile backfill.
type ProfileReport struct {
	Profiles      int // users refreshed
	ProfileErrors int
	Walks         int // walks with at least one shareable role
	SummaryErrors int
	UsersTouched  int // users that received walk summaries
	Pruned        int
}

// Profiles refreshes every friend profile, upserts a summary of every
// shareable walk for each of its users, and finally enforces the summary
// cap for every user touched. Per-document failures are logged and counted.
func (r *Runner) Profiles(ctx context.Context) (ProfileReport, error) {
	var rep ProfileReport
	log.Printf("[backfill] refreshing friend profiles")
	err := r.pages(ctx, domain.CollUsers, UsersPageSize, func(docs []domain.Document) {
		var (
			g      errgroup.Group
			mu     sync.Mutex
			failed int
		)
		g.SetLimit(fanOut)
		for _, doc := range docs {
			g.Go(func() error {
				if err := r.friends.RefreshProfile(ctx, doc.ID); err != nil {
					log.Printf("[backfill] profile %s: %v", doc.ID, err)
					mu.Lock()
					failed++
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
		rep.Profiles += len(docs)
		rep.ProfileErrors += failed
		log.Printf("[backfill] profiles processed: %d", rep.Profiles)
	})
	if err != nil {
		return rep, err
	}

	log.Printf("[backfill] rebuilding walk summaries")
	touched := make(map[string]bool)
	err = r.pages(ctx, domain.CollWalks, WalksPageSize, func(docs []domain.Document) {
		for _, doc := range docs {
			w := domain.DecodeWalk(doc.ID, doc.Data)
			roles := friends.ShareableRoles(w)
			if len(roles) == 0 {
				continue
			}
			var g errgroup.Group
			for uid, role := range roles {
				touched[uid] = true
				g.Go(func() error {
					return r.friends.UpsertSummary(ctx, uid, w, role)
				})
			}
			if err := g.Wait(); err != nil {
				log.Printf("[backfill] summaries for walk %s: %v", doc.ID, err)
				rep.SummaryErrors++
			}
			rep.Walks++
			if rep.Walks%50 == 0 {
				log.Printf("[backfill] walks processed: %d", rep.Walks)
			}
		}
	})
	if err != nil {
		return rep, err
	}
	rep.UsersTouched = len(touched)

	uids := make([]string, 0, len(touched))
	for uid := range touched {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(fanOut)
	for _, uid := range uids {
		g.Go(func() error {
			n, err := r.friends.EnforceWalkSummaryLimit(ctx, uid)
			if err != nil {
				log.Printf("[backfill] prune %s: %v", uid, err)
			}
			mu.Lock()
			rep.Pruned += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("[backfill] profiles done: %d profiles, %d walks, %d users, %d pruned",
		rep.Profiles, rep.Walks, rep.UsersTouched, rep.Pruned)
	return rep, nil
}

// NameReport summarizes a displayNameLower backfill.
type NameReport struct {
	Processed int
	Updated   int
	Skipped   int
}

// DisplayNameLower sets users' displayNameLower to their trimmed,
// lower-cased display name. Users without a display name, or already up
// to date, are skipped. With dryRun set nothing is written.
func (r *Runner) DisplayNameLower(ctx context.Context, dryRun bool) (NameReport, error) {
	var (
		rep       NameReport
		commitErr error
	)
	err := r.pages(ctx, domain.CollUsers, DisplayNamePageSize, func(docs []domain.Document) {
		batch := r.store.Batch()
		for _, doc := range docs {
			rep.Processed++
			normalized := strings.ToLower(strings.TrimSpace(asText(doc.Data.Truthy("displayName"))))
			if normalized == "" || asText(doc.Data.Truthy("displayNameLower")) == normalized {
				rep.Skipped++
				continue
			}
			batch.Set(doc.Path, map[string]any{"displayNameLower": normalized}, true)
			rep.Updated++
		}
		if batch.Len() > 0 && !dryRun && commitErr == nil {
			commitErr = batch.Commit(ctx)
		}
		log.Printf("[backfill] page processed: processed=%d updated=%d skipped=%d",
			rep.Processed, rep.Updated, rep.Skipped)
	})
	if err == nil {
		err = commitErr
	}
	if err != nil {
		return rep, domain.E("backfill.display_name_lower", domain.KindPersistence, err)
	}
	log.Printf("[backfill] displayNameLower done: processed=%d updated=%d skipped=%d",
		rep.Processed, rep.Updated, rep.Skipped)
	return rep, nil
}

// pages walks a top-level collection by document id, size documents at a
// time, stopping early when ctx is cancelled.
func (r *Runner) pages(ctx context.Context, collection string, size int, fn func([]domain.Document)) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		docs, err := r.store.Query(ctx, domain.Query{
			Collection: collection,
			Limit:      size,
			StartAfter: cursor,
		})
		if err != nil {
			return fmt.Errorf("page %s after %q: %w", collection, cursor, err)
		}
		if len(docs) == 0 {
			return nil
		}
		fn(docs)
		if len(docs) < size {
			return nil
		}
		cursor = docs[len(docs)-1].ID
	}
}

func asText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}
	return fmt.Sprint(v)
}
