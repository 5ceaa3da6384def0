package docstore

import "context"

// Document is the raw stored record exchanged with a Driver. It never
// escapes past the accessor layer; a Codec maps it to domain types.
// Timestamps live in Fields under "createdAt"/"updatedAt" and are stamped
// by the accessor, which owns record lifecycle.
type Document struct {
	ID     string
	Fields map[string]any
}

// BatchOpType identifies a batch write operation.
type BatchOpType int

const (
	BatchSet BatchOpType = iota
	BatchUpdate
	BatchDelete
)

// BatchOp is one write inside an atomic batch.
type BatchOp struct {
	Type       BatchOpType
	Collection string
	ID         string
	Fields     map[string]any
}

// Driver is the inbound store boundary: per-collection point reads and
// writes, filtered/ordered/cursor query execution, and atomic multi-record
// batches. Implementations report failures as *Error with the appropriate
// Kind so retry classification can act on them.
type Driver interface {
	// Get returns the document, or (nil, nil) when the id does not exist.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Set writes a full document, creating or overwriting it.
	Set(ctx context.Context, collection, id string, fields map[string]any) error

	// Update merges fields into an existing document. A missing id is a
	// KindNotFound failure.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes a document. Deleting a missing id is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Query executes a filtered, ordered, cursor-limited query.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// ApplyBatch applies all ops atomically: all succeed or none do.
	ApplyBatch(ctx context.Context, ops []BatchOp) error
}

// WatchStream delivers live query snapshots. Next blocks until the next
// snapshot, a stream error, or ctx cancellation. Close is idempotent.
type WatchStream interface {
	Next(ctx context.Context) ([]Document, error)
	Close() error
}

// Watcher is the optional live-query capability of a Driver.
type Watcher interface {
	Watch(ctx context.Context, collection string, q Query) (WatchStream, error)
}
