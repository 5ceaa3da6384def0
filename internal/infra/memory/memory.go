// Package memory provides an in-process document-store driver. It backs
// unit tests and single-instance deployments, and is the reference
// implementation for query and watch semantics.
package memory

import (
	"context"
	"sync"

	"github.com/steward-app/steward/internal/docstore"
)

// Store implements docstore.Driver and docstore.Watcher over plain maps.
type Store struct {
	mu        sync.RWMutex
	data      map[string]map[string]map[string]any // collection -> id -> fields
	listeners map[string]map[int]chan struct{}     // collection -> listener id -> notify
	nextID    int
}

var (
	_ docstore.Driver  = (*Store)(nil)
	_ docstore.Watcher = (*Store)(nil)
)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		data:      make(map[string]map[string]map[string]any),
		listeners: make(map[string]map[int]chan struct{}),
	}
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.data[collection][id]
	if !ok {
		return nil, nil
	}
	return &docstore.Document{ID: id, Fields: copyFields(fields)}, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	s.setLocked(collection, id, fields)
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	if err := s.updateLocked(collection, id, fields); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	delete(s.data[collection], id)
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	docs := make([]docstore.Document, 0, len(s.data[collection]))
	for id, fields := range s.data[collection] {
		docs = append(docs, docstore.Document{ID: id, Fields: copyFields(fields)})
	}
	s.mu.RUnlock()

	return docstore.EvaluateQuery(docs, q)
}

// ApplyBatch applies all ops under one lock: every op is validated before
// anything mutates, so the batch succeeds or fails as a unit.
func (s *Store) ApplyBatch(ctx context.Context, ops []docstore.BatchOp) error {
	s.mu.Lock()

	for _, op := range ops {
		if op.Type == docstore.BatchUpdate {
			if _, ok := s.data[op.Collection][op.ID]; !ok {
				s.mu.Unlock()
				return docstore.Errorf("batch", docstore.KindNotFound,
					"document %s/%s does not exist", op.Collection, op.ID)
			}
		}
	}

	touched := make(map[string]struct{})
	for _, op := range ops {
		switch op.Type {
		case docstore.BatchSet:
			s.setLocked(op.Collection, op.ID, op.Fields)
		case docstore.BatchUpdate:
			// Existence checked above; updateLocked cannot fail here.
			_ = s.updateLocked(op.Collection, op.ID, op.Fields)
		case docstore.BatchDelete:
			delete(s.data[op.Collection], op.ID)
		}
		touched[op.Collection] = struct{}{}
	}
	s.mu.Unlock()

	for collection := range touched {
		s.notify(collection)
	}
	return nil
}

func (s *Store) setLocked(collection, id string, fields map[string]any) {
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]map[string]any)
	}
	s.data[collection][id] = copyFields(fields)
}

func (s *Store) updateLocked(collection, id string, fields map[string]any) error {
	existing, ok := s.data[collection][id]
	if !ok {
		return docstore.Errorf("update", docstore.KindNotFound,
			"document %s/%s does not exist", collection, id)
	}
	for k, v := range fields {
		existing[k] = v
	}
	return nil
}

// Watch opens a live query. The stream delivers the current snapshot
// first, then a fresh snapshot after every commit to the collection.
func (s *Store) Watch(ctx context.Context, collection string, q docstore.Query) (docstore.WatchStream, error) {
	notify := make(chan struct{}, 1)

	s.mu.Lock()
	if s.listeners[collection] == nil {
		s.listeners[collection] = make(map[int]chan struct{})
	}
	id := s.nextID
	s.nextID++
	s.listeners[collection][id] = notify
	s.mu.Unlock()

	return &watchStream{
		store:      s,
		collection: collection,
		query:      q,
		listenerID: id,
		notify:     notify,
	}, nil
}

// notify wakes every listener on collection, coalescing pending signals.
func (s *Store) notify(collection string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.listeners[collection] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

type watchStream struct {
	store      *Store
	collection string
	query      docstore.Query
	listenerID int
	notify     chan struct{}
	delivered  bool
	closeOnce  sync.Once
}

func (w *watchStream) Next(ctx context.Context) ([]docstore.Document, error) {
	if !w.delivered {
		w.delivered = true
		return w.store.Query(ctx, w.collection, w.query)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.notify:
		return w.store.Query(ctx, w.collection, w.query)
	}
}

func (w *watchStream) Close() error {
	w.closeOnce.Do(func() {
		w.store.mu.Lock()
		delete(w.store.listeners[w.collection], w.listenerID)
		w.store.mu.Unlock()
	})
	return nil
}

// Len reports the number of documents in a collection, for tests.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[collection])
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
