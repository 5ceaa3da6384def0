package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/steward-app/steward/internal/docstore"
)

// Driver implements docstore.Driver and docstore.Watcher on a Client.
type Driver struct {
	client *Client
}

var (
	_ docstore.Driver  = (*Driver)(nil)
	_ docstore.Watcher = (*Driver)(nil)
)

// NewDriver creates a document-store driver over an established client.
func NewDriver(client *Client) *Driver {
	return &Driver{client: client}
}

func (d *Driver) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	raw, err := d.client.rdb.HGet(ctx, collectionKey(collection), id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, docstore.NewError("get", docstore.KindUnavailable, err)
	}
	return decodeDoc(id, raw)
}

func (d *Driver) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return docstore.NewError("set", docstore.KindInvalidArgument, err)
	}
	if err := d.client.rdb.HSet(ctx, collectionKey(collection), id, raw).Err(); err != nil {
		return docstore.NewError("set", docstore.KindUnavailable, err)
	}
	d.publish(ctx, collection)
	return nil
}

// Update merges fields into an existing document using an optimistic
// WATCH transaction so a concurrent overwrite restarts the merge.
func (d *Driver) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	key := collectionKey(collection)

	err := d.client.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, id).Result()
		if err == redis.Nil {
			return docstore.Errorf("update", docstore.KindNotFound,
				"document %s/%s does not exist", collection, id)
		}
		if err != nil {
			return docstore.NewError("update", docstore.KindUnavailable, err)
		}

		var existing map[string]any
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return docstore.NewError("update", docstore.KindUnknown, err)
		}
		for k, v := range fields {
			existing[k] = v
		}
		merged, err := json.Marshal(existing)
		if err != nil {
			return docstore.NewError("update", docstore.KindInvalidArgument, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, merged)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if docstore.KindOf(err) != docstore.KindUnknown {
			return err
		}
		return docstore.NewError("update", docstore.KindUnavailable, err)
	}

	d.publish(ctx, collection)
	return nil
}

func (d *Driver) Delete(ctx context.Context, collection, id string) error {
	if err := d.client.rdb.HDel(ctx, collectionKey(collection), id).Err(); err != nil {
		return docstore.NewError("delete", docstore.KindUnavailable, err)
	}
	d.publish(ctx, collection)
	return nil
}

// Query loads the collection hash and evaluates the query in process.
// Suited to the modest per-collection cardinality this layer serves;
// there is no server-side query execution on Redis hashes.
func (d *Driver) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	raw, err := d.client.rdb.HGetAll(ctx, collectionKey(collection)).Result()
	if err != nil {
		return nil, docstore.NewError("query", docstore.KindUnavailable, err)
	}

	docs := make([]docstore.Document, 0, len(raw))
	for id, val := range raw {
		doc, err := decodeDoc(id, val)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docstore.EvaluateQuery(docs, q)
}

// ApplyBatch merges and validates every op, then applies all writes in
// one MULTI/EXEC pipeline so they commit as a unit. The whole
// read-merge-write runs inside an optimistic WATCH over every touched
// collection key, so a concurrent write landing between an update's
// read-back and the commit aborts the batch instead of being overwritten
// by the stale merge.
func (d *Driver) ApplyBatch(ctx context.Context, ops []docstore.BatchOp) error {
	if len(ops) == 0 {
		return nil
	}

	touched := make(map[string]struct{}, len(ops))
	keys := make([]string, 0, len(ops))
	for _, op := range ops {
		if _, ok := touched[op.Collection]; !ok {
			touched[op.Collection] = struct{}{}
			keys = append(keys, collectionKey(op.Collection))
		}
	}

	err := d.client.rdb.Watch(ctx, func(tx *redis.Tx) error {
		type write struct {
			key    string
			id     string
			raw    []byte
			delete bool
		}
		writes := make([]write, 0, len(ops))

		for _, op := range ops {
			key := collectionKey(op.Collection)
			switch op.Type {
			case docstore.BatchSet, docstore.BatchUpdate:
				fields := op.Fields
				if op.Type == docstore.BatchUpdate {
					raw, err := tx.HGet(ctx, key, op.ID).Result()
					if err == redis.Nil {
						return docstore.Errorf("batch", docstore.KindNotFound,
							"document %s/%s does not exist", op.Collection, op.ID)
					}
					if err != nil {
						return docstore.NewError("batch", docstore.KindUnavailable, err)
					}
					var existing map[string]any
					if err := json.Unmarshal([]byte(raw), &existing); err != nil {
						return docstore.NewError("batch", docstore.KindUnknown, err)
					}
					for k, v := range op.Fields {
						existing[k] = v
					}
					fields = existing
				}
				data, err := json.Marshal(fields)
				if err != nil {
					return docstore.NewError("batch", docstore.KindInvalidArgument, err)
				}
				writes = append(writes, write{key: key, id: op.ID, raw: data})
			case docstore.BatchDelete:
				writes = append(writes, write{key: key, id: op.ID, delete: true})
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range writes {
				if w.delete {
					pipe.HDel(ctx, w.key, w.id)
				} else {
					pipe.HSet(ctx, w.key, w.id, w.raw)
				}
			}
			return nil
		})
		return err
	}, keys...)
	if err != nil {
		if docstore.KindOf(err) != docstore.KindUnknown {
			return err
		}
		return docstore.NewError("batch", docstore.KindUnavailable, err)
	}

	for collection := range touched {
		d.publish(ctx, collection)
	}
	return nil
}

// Watch subscribes to the collection's change channel and re-runs the
// query after every published write.
func (d *Driver) Watch(ctx context.Context, collection string, q docstore.Query) (docstore.WatchStream, error) {
	pubsub := d.client.rdb.Subscribe(ctx, changeChannel(collection))
	// Force the subscription to establish before the first snapshot.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, docstore.NewError("watch", docstore.KindUnavailable, err)
	}

	return &watchStream{
		driver:     d,
		collection: collection,
		query:      q,
		pubsub:     pubsub,
		messages:   pubsub.Channel(),
	}, nil
}

func (d *Driver) publish(ctx context.Context, collection string) {
	// Change notifications are best effort; subscribers resync on the
	// next write and queries always read through to the hash.
	_ = d.client.rdb.Publish(ctx, changeChannel(collection), "changed").Err()
}

type watchStream struct {
	driver     *Driver
	collection string
	query      docstore.Query
	pubsub     *redis.PubSub
	messages   <-chan *redis.Message
	delivered  bool
	closeOnce  sync.Once
}

func (w *watchStream) Next(ctx context.Context) ([]docstore.Document, error) {
	if !w.delivered {
		w.delivered = true
		return w.driver.Query(ctx, w.collection, w.query)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case _, ok := <-w.messages:
		if !ok {
			return nil, docstore.Errorf("watch", docstore.KindUnavailable, "change channel closed")
		}
		return w.driver.Query(ctx, w.collection, w.query)
	}
}

func (w *watchStream) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.pubsub.Close()
	})
	return err
}

func decodeDoc(id, raw string) (*docstore.Document, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, docstore.NewError("get", docstore.KindUnknown,
			fmt.Errorf("corrupt document %s: %w", id, err))
	}
	return &docstore.Document{ID: id, Fields: fields}, nil
}
