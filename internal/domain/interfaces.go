package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Document is a single stored document.
type Document struct {
	Path string // full slash-separated path, e.g. "users/u1/badges/first_walk"
	ID   string // last path segment
	Data Fields
}

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter is an equality filter on a top-level or dotted field.
type Filter struct {
	Field string
	Value any
}

// Query lists documents of one collection, or of every collection sharing
// the same id when Group is set.
type Query struct {
	Collection string // collection path, or collection id when Group is true
	Group      bool
	Where      []Filter
	OrderBy    string // "" orders by document id
	Direction  Direction
	Offset     int
	Limit      int    // 0 means no limit
	StartAfter string // document id; only valid when ordering by document id
}

// DocumentStore abstracts the document database.
// Implemented by infra/firestore.Store and infra/sqlite.DB.
type DocumentStore interface {
	// Get reads one document. Returns (nil, nil) if it does not exist.
	Get(ctx context.Context, path string) (*Document, error)

	// Set writes a document, merging into the existing one when merge is true.
	Set(ctx context.Context, path string, data map[string]any, merge bool) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error

	// Query lists documents.
	Query(ctx context.Context, q Query) ([]Document, error)

	// Batch starts an atomic multi-document write.
	Batch() WriteBatch

	Close() error
}

// WriteBatch collects writes that are committed all-or-nothing.
type WriteBatch interface {
	Set(path string, data map[string]any, merge bool)
	Delete(path string)
	Len() int
	Commit(ctx context.Context) error
}

// ─── Push ───────────────────────────────────────────────────────────────────

// PushMessage is a multicast push to a set of device tokens.
type PushMessage struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
	Tag    string // correlation tag; replaces an earlier notification with the same tag
}

// TokenResult is the delivery outcome for one token of a multicast.
type TokenResult struct {
	Token   string
	Success bool
	Dead    bool // token is unregistered or malformed and should be retired
	Err     error
}

// MulticastResult holds per-token outcomes in the order of PushMessage.Tokens.
type MulticastResult struct {
	Results []TokenResult
}

// SuccessCount returns how many tokens were delivered to.
func (r MulticastResult) SuccessCount() int {
	n := 0
	for _, t := range r.Results {
		if t.Success {
			n++
		}
	}
	return n
}

// Messenger abstracts the push transport (FCM in production).
type Messenger interface {
	SendMulticast(ctx context.Context, msg PushMessage) (MulticastResult, error)
}

// Notification is the user-visible part of a push.
type Notification struct {
	Title string
	Body  string
}

// Notifier sends a push to every active device of a user.
// Implemented by app/notify.Dispatcher.
type Notifier interface {
	Send(ctx context.Context, uid string, n Notification, data map[string]string, tag string) error
}
