// Package firestore implements domain.DocumentStore on Cloud Firestore.
package firestore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yalla-nemshi/nemshi/internal/domain"
)

// maxBatchWrites is Firestore's per-commit write limit.
const maxBatchWrites = 500

// Store is a Firestore-backed document store.
type Store struct {
	client *firestore.Client
}

var _ domain.DocumentStore = (*Store)(nil)

// New creates a Firestore client for projectID.
// credentialsFile may be empty to use application default credentials.
func New(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get reads one document. Returns (nil, nil) if it does not exist.
func (s *Store) Get(ctx context.Context, path string) (*domain.Document, error) {
	ref, err := s.doc(path)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toDocument(snap), nil
}

// Set writes a document, merging when merge is true.
func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	if merge {
		_, err = ref.Set(ctx, data, firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, data)
	}
	return err
}

// Delete removes a document. Firestore treats missing documents as deleted.
func (s *Store) Delete(ctx context.Context, path string) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// Query lists documents matching q.
func (s *Store) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	var query firestore.Query
	if q.Group {
		query = s.client.CollectionGroup(q.Collection).Query
	} else {
		query = s.client.Collection(strings.Trim(q.Collection, "/")).Query
	}

	for _, f := range q.Where {
		query = query.Where(f.Field, "==", f.Value)
	}

	dir := firestore.Asc
	if q.Direction == domain.Desc {
		dir = firestore.Desc
	}
	if q.OrderBy == "" {
		query = query.OrderBy(firestore.DocumentID, dir)
		if q.StartAfter != "" {
			query = query.StartAfter(q.StartAfter)
		}
	} else {
		query = query.OrderBy(q.OrderBy, dir)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, *toDocument(snap))
	}
	return docs, nil
}

// Batch starts an atomic multi-document write.
func (s *Store) Batch() domain.WriteBatch {
	return &batch{store: s}
}

type batchOp struct {
	path   string
	data   map[string]any
	merge  bool
	delete bool
}

type batch struct {
	store *Store
	ops   []batchOp
}

func (b *batch) Set(path string, data map[string]any, merge bool) {
	b.ops = append(b.ops, batchOp{path: path, data: data, merge: merge})
}

func (b *batch) Delete(path string) {
	b.ops = append(b.ops, batchOp{path: path, delete: true})
}

func (b *batch) Len() int { return len(b.ops) }

// Commit writes the batch. Batches above Firestore's write limit are
// rejected rather than split, so a commit stays all-or-nothing.
func (b *batch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	if len(b.ops) > maxBatchWrites {
		return fmt.Errorf("batch of %d writes exceeds limit %d", len(b.ops), maxBatchWrites)
	}
	wb := b.store.client.Batch()
	for _, op := range b.ops {
		ref, err := b.store.doc(op.path)
		if err != nil {
			return err
		}
		switch {
		case op.delete:
			wb.Delete(ref)
		case op.merge:
			wb.Set(ref, op.data, firestore.MergeAll)
		default:
			wb.Set(ref, op.data)
		}
	}
	_, err := wb.Commit(ctx)
	return err
}

func (s *Store) doc(path string) (*firestore.DocumentRef, error) {
	if _, _, err := domain.SplitDocPath(path); err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}
	return s.client.Doc(strings.Trim(path, "/")), nil
}

func toDocument(snap *firestore.DocumentSnapshot) *domain.Document {
	// Path relative to the database root: drop "projects/p/databases/d/documents/".
	p := snap.Ref.Path
	if i := strings.Index(p, "/documents/"); i >= 0 {
		p = p[i+len("/documents/"):]
	}
	data := snap.Data()
	if data == nil {
		data = map[string]any{}
	}
	return &domain.Document{Path: p, ID: snap.Ref.ID, Data: domain.Fields(data)}
}
