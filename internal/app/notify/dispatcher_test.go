package notify_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/yalla-nemshi/nemshi/internal/app/notify"
	"github.com/yalla-nemshi/nemshi/internal/domain"
	"github.com/yalla-nemshi/nemshi/internal/infra/sqlite"
)

func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fakeMessenger delivers to every token except those listed as dead or failing.
type fakeMessenger struct {
	mu      sync.Mutex
	dead    map[string]bool
	failing map[string]bool
	err     error
	calls   []domain.PushMessage
}

func (f *fakeMessenger) SendMulticast(_ context.Context, msg domain.PushMessage) (domain.MulticastResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	if f.err != nil {
		return domain.MulticastResult{}, f.err
	}
	var res domain.MulticastResult
	for _, tok := range msg.Tokens {
		r := domain.TokenResult{Token: tok, Success: true}
		switch {
		case f.dead[tok]:
			r = domain.TokenResult{Token: tok, Dead: true, Err: errors.New("unregistered")}
		case f.failing[tok]:
			r = domain.TokenResult{Token: tok, Err: errors.New("unavailable")}
		}
		res.Results = append(res.Results, r)
	}
	return res, nil
}

func addToken(t *testing.T, db *sqlite.DB, uid, docID, token string) {
	t.Helper()
	data := map[string]any{"createdAt": "2025-01-01T00:00:00Z"}
	if token != "" {
		data["token"] = token
	}
	if err := db.Set(context.Background(), domain.FCMTokensCollection(uid)+"/"+docID, data, false); err != nil {
		t.Fatalf("add token: %v", err)
	}
}

var hello = domain.Notification{Title: "Hi", Body: "there"}

func TestTokens_FallbackAndDedup(t *testing.T) {
	db := testDB(t)
	addToken(t, db, "u1", "a", "tok-a")
	addToken(t, db, "u1", "b", "")      // id is the token
	addToken(t, db, "u1", "c", "tok-a") // same token, second device record

	d := notify.NewDispatcher(db, &fakeMessenger{})
	tokens, paths, err := d.Tokens(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Tokens() error: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "tok-a" || tokens[1] != "b" {
		t.Errorf("tokens = %v, want [tok-a b]", tokens)
	}
	if len(paths["tok-a"]) != 2 {
		t.Errorf("paths[tok-a] = %v, want 2 docs", paths["tok-a"])
	}
}

func TestSend_DeliversWithTagAndData(t *testing.T) {
	db := testDB(t)
	addToken(t, db, "u1", "a", "tok-a")
	m := &fakeMessenger{}
	d := notify.NewDispatcher(db, m)

	err := d.Send(context.Background(), "u1", hello, map[string]string{"action": "badge_earned"}, "badge_notification")
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(m.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(m.calls))
	}
	msg := m.calls[0]
	if msg.Title != "Hi" || msg.Body != "there" || msg.Tag != "badge_notification" || msg.Data["action"] != "badge_earned" {
		t.Errorf("message = %+v", msg)
	}
}

func TestSend_NoTokensIsNoop(t *testing.T) {
	m := &fakeMessenger{}
	d := notify.NewDispatcher(testDB(t), m)
	if err := d.Send(context.Background(), "ghost", hello, nil, ""); err != nil {
		t.Errorf("Send() error: %v", err)
	}
	if len(m.calls) != 0 {
		t.Error("messenger should not be called without tokens")
	}
}

func TestSend_RetiresOnlyDeadTokens(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	addToken(t, db, "u1", "good", "tok-good")
	addToken(t, db, "u1", "dead", "tok-dead")
	addToken(t, db, "u1", "flaky", "tok-flaky")

	m := &fakeMessenger{
		dead:    map[string]bool{"tok-dead": true},
		failing: map[string]bool{"tok-flaky": true},
	}
	d := notify.NewDispatcher(db, m)
	if err := d.Send(ctx, "u1", hello, nil, ""); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if doc, _ := db.Get(ctx, domain.FCMTokensCollection("u1")+"/dead"); doc != nil {
		t.Error("dead token should be deleted")
	}
	if doc, _ := db.Get(ctx, domain.FCMTokensCollection("u1")+"/flaky"); doc == nil {
		t.Error("transiently failing token should be kept")
	}
	if doc, _ := db.Get(ctx, domain.FCMTokensCollection("u1")+"/good"); doc == nil {
		t.Error("good token should be kept")
	}
}

func TestSend_AllFailed(t *testing.T) {
	db := testDB(t)
	addToken(t, db, "u1", "a", "tok-a")
	d := notify.NewDispatcher(db, &fakeMessenger{dead: map[string]bool{"tok-a": true}})

	err := d.Send(context.Background(), "u1", hello, nil, "")
	if !errors.Is(err, domain.ErrPushFailed) {
		t.Errorf("err = %v, want ErrPushFailed", err)
	}
	if domain.KindOf(err) != domain.KindDispatch {
		t.Errorf("kind = %s, want dispatch", domain.KindOf(err))
	}
}

func TestSend_TransportError(t *testing.T) {
	db := testDB(t)
	addToken(t, db, "u1", "a", "tok-a")
	d := notify.NewDispatcher(db, &fakeMessenger{err: errors.New("connection reset")})

	err := d.Send(context.Background(), "u1", hello, nil, "")
	if domain.KindOf(err) != domain.KindDispatch || !domain.Retryable(err) {
		t.Errorf("err = %v, want retryable dispatch error", err)
	}
}

func TestSend_ChunksLargeTokenSets(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	b := db.Batch()
	for i := 0; i < notify.MaxTokensPerMulticast+20; i++ {
		b.Set(fmt.Sprintf("%s/d%04d", domain.FCMTokensCollection("u1"), i), map[string]any{"token": fmt.Sprintf("t%04d", i)}, false)
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("seed tokens: %v", err)
	}

	m := &fakeMessenger{}
	if err := notify.NewDispatcher(db, m).Send(ctx, "u1", hello, nil, ""); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(m.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(m.calls))
	}
	if len(m.calls[0].Tokens) != notify.MaxTokensPerMulticast || len(m.calls[1].Tokens) != 20 {
		t.Errorf("chunk sizes = %d, %d", len(m.calls[0].Tokens), len(m.calls[1].Tokens))
	}
}

func TestSendToUsers(t *testing.T) {
	db := testDB(t)
	addToken(t, db, "u1", "a", "tok-1")
	addToken(t, db, "u2", "a", "tok-2")
	addToken(t, db, "u3", "a", "tok-3")
	m := &fakeMessenger{dead: map[string]bool{"tok-3": true}}

	reached := notify.NewDispatcher(db, m).SendToUsers(context.Background(), []string{"u1", "u2", "u3"}, hello, nil, "")
	if reached != 2 {
		t.Errorf("reached = %d, want 2", reached)
	}
	if len(m.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(m.calls))
	}
}
