package docstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrWatchUnsupported is returned when the configured driver has no
// live-query capability.
var ErrWatchUnsupported = errors.New("docstore: driver does not support live queries")

// Event is one subscription delivery: either a fresh snapshot of the
// matching records or a stream error, never both.
type Event[T any] struct {
	Items []T
	Err   error
}

// Subscription is a live query handle. Events are delivered on Events()
// until Unsubscribe is called or the stream fails terminally.
// Unsubscribe is idempotent; extra calls are no-ops.
type Subscription[T any] struct {
	events chan Event[T]
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Events returns the delivery channel. It is closed after Unsubscribe.
func (s *Subscription[T]) Events() <-chan Event[T] { return s.events }

// Unsubscribe closes the stream. Safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Manager opens live query subscriptions against a collection. No
// caching applies: every delivered snapshot is live. Concurrent
// subscriptions are independent; callers own their lifetimes.
type Manager[T any] struct {
	collection string
	driver     Driver
	codec      Codec[T]
	log        *slog.Logger
}

// NewManager creates a subscription manager for one collection. It
// fails fast when the driver cannot watch.
func NewManager[T any](collection string, driver Driver, codec Codec[T], log *slog.Logger) (*Manager[T], error) {
	if _, ok := driver.(Watcher); !ok {
		return nil, ErrWatchUnsupported
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager[T]{
		collection: collection,
		driver:     driver,
		codec:      codec,
		log:        log.With("collection", collection),
	}, nil
}

// Open starts a live query and returns its event-stream handle.
func (m *Manager[T]) Open(ctx context.Context, q Query) (*Subscription[T], error) {
	watcher := m.driver.(Watcher)

	ctx, cancel := context.WithCancel(ctx)
	stream, err := watcher.Watch(ctx, m.collection, q)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription[T]{
		events: make(chan Event[T], 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go m.pump(ctx, stream, sub)
	return sub, nil
}

func (m *Manager[T]) pump(ctx context.Context, stream WatchStream, sub *Subscription[T]) {
	defer close(sub.done)
	defer close(sub.events)
	defer stream.Close()

	for {
		docs, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Error("Subscription stream failed", "error", err)
			sub.deliver(ctx, Event[T]{Err: err})
			return
		}

		items := make([]T, 0, len(docs))
		decodeFailed := false
		for _, doc := range docs {
			entity, decErr := m.codec.Decode(doc)
			if decErr != nil {
				m.log.Error("Subscription snapshot decode failed", "id", doc.ID, "error", decErr)
				sub.deliver(ctx, Event[T]{Err: decErr})
				decodeFailed = true
				break
			}
			items = append(items, entity)
		}
		if decodeFailed {
			continue
		}

		metricSubscriptionEvents.WithLabelValues(m.collection).Inc()
		sub.deliver(ctx, Event[T]{Items: items})
	}
}

func (s *Subscription[T]) deliver(ctx context.Context, ev Event[T]) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// Subscribe adapts the event stream to a callback contract: onUpdate
// receives every snapshot, onError every stream failure. The returned
// cancel func closes the subscription and is idempotent.
func (m *Manager[T]) Subscribe(ctx context.Context, q Query, onUpdate func(items []T), onError func(err error)) (context.CancelFunc, error) {
	sub, err := m.Open(ctx, q)
	if err != nil {
		return nil, err
	}

	go func() {
		for ev := range sub.Events() {
			if ev.Err != nil {
				if onError != nil {
					onError(ev.Err)
				}
				continue
			}
			if onUpdate != nil {
				onUpdate(ev.Items)
			}
		}
	}()

	return sub.Unsubscribe, nil
}
