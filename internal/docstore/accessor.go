package docstore

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field names stamped by the accessor on every write.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Cache key prefixes. Writes invalidate every list/search key of the
// same collection, so stale query pages are a guaranteed miss.
const (
	keyPrefixGet    = "get_"
	keyPrefixList   = "list_"
	keyPrefixSearch = "search_"
)

// Codec maps raw store documents to a closed domain type and back. The
// raw document never escapes past the accessor.
type Codec[T any] interface {
	Decode(doc Document) (T, error)
	Encode(entity T) (map[string]any, error)
}

// Accessor provides CRUD, batch, pagination and search primitives over
// one logical collection, with per-accessor caching and retry. Construct
// one per collection; the cache is owned by the accessor, never shared
// process-wide.
type Accessor[T any] struct {
	collection string
	driver     Driver
	codec      Codec[T]
	cache      *Cache
	retry      *Retryer
	log        *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewAccessor creates an accessor for one collection.
func NewAccessor[T any](collection string, driver Driver, codec Codec[T], cacheCfg CacheConfig, retryCfg RetryConfig, log *slog.Logger) *Accessor[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Accessor[T]{
		collection: collection,
		driver:     driver,
		codec:      codec,
		cache:      NewCache(cacheCfg),
		retry:      NewRetryer(retryCfg),
		log:        log.With("collection", collection),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Collection returns the logical collection name.
func (a *Accessor[T]) Collection() string { return a.collection }

// Driver exposes the underlying driver, for composing subscriptions.
func (a *Accessor[T]) Driver() Driver { return a.driver }

// GetByID fetches one record. A missing id is a success with zero Data,
// not an error. With useCache, a fresh cached copy short-circuits the
// store call and the envelope reports Cached.
func (a *Accessor[T]) GetByID(ctx context.Context, id string, useCache bool) Result[T] {
	key := keyPrefixGet + id
	if useCache {
		if data, ok := a.cache.Get(key); ok {
			metricCacheHits.WithLabelValues(a.collection).Inc()
			return OkCached(data.(T))
		}
		metricCacheMisses.WithLabelValues(a.collection).Inc()
	}

	start := a.now()
	doc, err := DoValue(ctx, a.retry, func(ctx context.Context) (*Document, error) {
		return a.driver.Get(ctx, a.collection, id)
	})
	a.observe("get", start, err)
	if err != nil {
		return a.fail("get", id, err)
	}

	var entity T
	if doc != nil {
		entity, err = a.codec.Decode(*doc)
		if err != nil {
			return a.fail("get", id, err)
		}
		a.cache.Set(key, entity)
	}
	return Ok(entity)
}

// Create writes a new record, generating an id unless customID is given
// and stamping createdAt/updatedAt. Cached query pages for the
// collection are invalidated.
func (a *Accessor[T]) Create(ctx context.Context, entity T, customID string) Result[T] {
	fields, err := a.codec.Encode(entity)
	if err != nil {
		return a.fail("create", customID, err)
	}

	id := customID
	if id == "" {
		id = a.newID()
	}
	now := a.now()
	fields[FieldCreatedAt] = now
	fields[FieldUpdatedAt] = now

	start := a.now()
	err = a.retry.Do(ctx, func(ctx context.Context) error {
		return a.driver.Set(ctx, a.collection, id, fields)
	})
	a.observe("create", start, err)
	if err != nil {
		return a.fail("create", id, err)
	}

	a.invalidateWrites(id)

	created, err := a.codec.Decode(Document{ID: id, Fields: fields})
	if err != nil {
		return a.fail("create", id, err)
	}
	return Ok(created)
}

// Update merges partial fields into a record, stamps updatedAt, and
// returns the authoritative post-update state from an uncached re-read.
func (a *Accessor[T]) Update(ctx context.Context, id string, partial map[string]any) Result[T] {
	fields := make(map[string]any, len(partial)+1)
	for k, v := range partial {
		fields[k] = v
	}
	fields[FieldUpdatedAt] = a.now()

	start := a.now()
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		return a.driver.Update(ctx, a.collection, id, fields)
	})
	a.observe("update", start, err)
	if err != nil {
		return a.fail("update", id, err)
	}

	a.invalidateWrites(id)
	return a.GetByID(ctx, id, false)
}

// Delete removes a record and invalidates its cached reads.
func (a *Accessor[T]) Delete(ctx context.Context, id string) Result[bool] {
	start := a.now()
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		return a.driver.Delete(ctx, a.collection, id)
	})
	a.observe("delete", start, err)
	if err != nil {
		a.logFailure("delete", id, err)
		return Fail[bool](err)
	}

	a.invalidateWrites(id)
	return Ok(true)
}

// BatchCreate writes all items as one atomic batch. Ids are generated
// per item; the created records are returned in input order.
func (a *Accessor[T]) BatchCreate(ctx context.Context, items []T) Result[[]T] {
	now := a.now()
	ops := make([]BatchOp, 0, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		fields, err := a.codec.Encode(item)
		if err != nil {
			return a.failSlice("batch_create", err)
		}
		fields[FieldCreatedAt] = now
		fields[FieldUpdatedAt] = now
		id := a.newID()
		ids = append(ids, id)
		ops = append(ops, BatchOp{Type: BatchSet, Collection: a.collection, ID: id, Fields: fields})
	}

	start := a.now()
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		return a.driver.ApplyBatch(ctx, ops)
	})
	a.observe("batch_create", start, err)
	if err != nil {
		return a.failSlice("batch_create", err)
	}

	a.invalidateWrites(ids...)

	created := make([]T, 0, len(ops))
	for _, op := range ops {
		entity, err := a.codec.Decode(Document{ID: op.ID, Fields: op.Fields})
		if err != nil {
			return a.failSlice("batch_create", err)
		}
		created = append(created, entity)
	}
	return Ok(created)
}

// BatchUpdate merges partial fields into many records as one atomic
// batch, keyed by record id.
func (a *Accessor[T]) BatchUpdate(ctx context.Context, updates map[string]map[string]any) Result[bool] {
	now := a.now()
	ops := make([]BatchOp, 0, len(updates))
	ids := make([]string, 0, len(updates))
	for id, partial := range updates {
		fields := make(map[string]any, len(partial)+1)
		for k, v := range partial {
			fields[k] = v
		}
		fields[FieldUpdatedAt] = now
		ids = append(ids, id)
		ops = append(ops, BatchOp{Type: BatchUpdate, Collection: a.collection, ID: id, Fields: fields})
	}

	start := a.now()
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		return a.driver.ApplyBatch(ctx, ops)
	})
	a.observe("batch_update", start, err)
	if err != nil {
		a.logFailure("batch_update", "", err)
		return Fail[bool](err)
	}

	a.invalidateWrites(ids...)
	return Ok(true)
}

// List executes a filtered, ordered, cursor-paged query. HasMore is the
// page-full heuristic (len(items) >= limit), not an exact server count.
func (a *Accessor[T]) List(ctx context.Context, q Query, useCache bool) Result[Page[T]] {
	key := keyPrefixList + q.CacheKey()
	if useCache {
		if data, ok := a.cache.Get(key); ok {
			metricCacheHits.WithLabelValues(a.collection).Inc()
			return OkCached(data.(Page[T]))
		}
		metricCacheMisses.WithLabelValues(a.collection).Inc()
	}

	start := a.now()
	docs, err := DoValue(ctx, a.retry, func(ctx context.Context) ([]Document, error) {
		return a.driver.Query(ctx, a.collection, q)
	})
	a.observe("list", start, err)
	if err != nil {
		return a.failPage("list", err)
	}

	page, err := a.buildPage(docs, q)
	if err != nil {
		return a.failPage("list", err)
	}

	a.cache.Set(key, page)
	return Ok(page)
}

// Search runs List with the given filters, then applies a case-insensitive
// substring match of term against each named string field in memory. The
// store has no text search: results are bounded by the inner page fetch
// and are not paginated further (HasMore is always false).
func (a *Accessor[T]) Search(ctx context.Context, term string, searchFields []string, q Query, useCache bool) Result[Page[T]] {
	key := keyPrefixSearch + term + "|" + strings.Join(searchFields, ",") + "|" + q.CacheKey()
	if useCache {
		if data, ok := a.cache.Get(key); ok {
			metricCacheHits.WithLabelValues(a.collection).Inc()
			return OkCached(data.(Page[T]))
		}
		metricCacheMisses.WithLabelValues(a.collection).Inc()
	}

	start := a.now()
	docs, err := DoValue(ctx, a.retry, func(ctx context.Context) ([]Document, error) {
		return a.driver.Query(ctx, a.collection, q)
	})
	a.observe("search", start, err)
	if err != nil {
		return a.failPage("search", err)
	}

	lowered := strings.ToLower(term)
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		if !matchesTerm(doc, lowered, searchFields) {
			continue
		}
		entity, decErr := a.codec.Decode(doc)
		if decErr != nil {
			return a.failPage("search", decErr)
		}
		items = append(items, entity)
	}

	page := Page[T]{Items: items, HasMore: false}
	a.cache.Set(key, page)
	return Ok(page)
}

func matchesTerm(doc Document, loweredTerm string, fields []string) bool {
	for _, field := range fields {
		if s, ok := doc.Fields[field].(string); ok {
			if strings.Contains(strings.ToLower(s), loweredTerm) {
				return true
			}
		}
	}
	return false
}

// HealthCheck performs one minimal uncached read and reports status
// plus observed latency.
func (a *Accessor[T]) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	_, err := a.driver.Query(ctx, a.collection, Query{Limit: 1})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		a.log.Warn("Health check failed", "error", err)
		return HealthStatus{Status: HealthDegraded, LatencyMs: latency}
	}
	return HealthStatus{Status: HealthOK, LatencyMs: latency}
}

// Cache exposes the accessor's cache, mainly for tests and diagnostics.
func (a *Accessor[T]) Cache() *Cache { return a.cache }

func (a *Accessor[T]) buildPage(docs []Document, q Query) (Page[T], error) {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		entity, err := a.codec.Decode(doc)
		if err != nil {
			return Page[T]{}, err
		}
		items = append(items, entity)
	}

	page := Page[T]{Items: items}
	if q.Limit > 0 && len(docs) >= q.Limit {
		page.HasMore = true
	}
	if len(docs) > 0 {
		page.LastCursor = EncodeCursor(docs[len(docs)-1], q.OrderBy)
	}
	return page, nil
}

// invalidateWrites drops the point-read keys for ids plus every cached
// list/search page of the collection.
func (a *Accessor[T]) invalidateWrites(ids ...string) {
	for _, id := range ids {
		a.cache.Invalidate(keyPrefixGet + id)
	}
	a.cache.InvalidateByPrefix(keyPrefixList)
	a.cache.InvalidateByPrefix(keyPrefixSearch)
}

func (a *Accessor[T]) observe(op string, start time.Time, err error) {
	metricOpDuration.WithLabelValues(a.collection, op).Observe(time.Since(start).Seconds())
	if err != nil {
		metricOpErrors.WithLabelValues(a.collection, op, KindOf(err).String()).Inc()
	}
}

func (a *Accessor[T]) logFailure(op, id string, err error) {
	a.log.Warn("Store operation failed", "op", op, "id", id, "kind", KindOf(err).String(), "error", err)
}

func (a *Accessor[T]) fail(op, id string, err error) Result[T] {
	a.logFailure(op, id, err)
	return Fail[T](err)
}

func (a *Accessor[T]) failSlice(op string, err error) Result[[]T] {
	a.logFailure(op, "", err)
	return Fail[[]T](err)
}

func (a *Accessor[T]) failPage(op string, err error) Result[Page[T]] {
	a.logFailure(op, "", err)
	return Fail[Page[T]](err)
}
