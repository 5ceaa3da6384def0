package docstore

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
)

type testItem struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// mockDriver is a single-collection driver with scripted failures.
// Each driver call pops one scripted error before doing anything.
type mockDriver struct {
	mu   sync.Mutex
	docs map[string]map[string]any

	getCalls   int
	setCalls   int
	queryCalls int
	batchCalls int

	nextErrs []error
}

func newMockDriver() *mockDriver {
	return &mockDriver{docs: make(map[string]map[string]any)}
}

func (m *mockDriver) scriptErr(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextErrs = append(m.nextErrs, errs...)
}

func (m *mockDriver) popErr() error {
	if len(m.nextErrs) == 0 {
		return nil
	}
	err := m.nextErrs[0]
	m.nextErrs = m.nextErrs[1:]
	return err
}

func (m *mockDriver) Get(ctx context.Context, collection, id string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if err := m.popErr(); err != nil {
		return nil, err
	}
	fields, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return &Document{ID: id, Fields: out}, nil
}

func (m *mockDriver) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if err := m.popErr(); err != nil {
		return err
	}
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	m.docs[id] = copied
	return nil
}

func (m *mockDriver) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popErr(); err != nil {
		return err
	}
	existing, ok := m.docs[id]
	if !ok {
		return Errorf("update", KindNotFound, "document %s does not exist", id)
	}
	for k, v := range fields {
		existing[k] = v
	}
	return nil
}

func (m *mockDriver) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popErr(); err != nil {
		return err
	}
	delete(m.docs, id)
	return nil
}

func (m *mockDriver) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	m.mu.Lock()
	m.queryCalls++
	if err := m.popErr(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	docs := make([]Document, 0, len(m.docs))
	for id, fields := range m.docs {
		out := make(map[string]any, len(fields))
		for k, v := range fields {
			out[k] = v
		}
		docs = append(docs, Document{ID: id, Fields: out})
	}
	m.mu.Unlock()
	return EvaluateQuery(docs, q)
}

func (m *mockDriver) ApplyBatch(ctx context.Context, ops []BatchOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	if err := m.popErr(); err != nil {
		return err
	}
	for _, op := range ops {
		if op.Type == BatchUpdate {
			if _, ok := m.docs[op.ID]; !ok {
				return Errorf("batch", KindNotFound, "document %s does not exist", op.ID)
			}
		}
	}
	for _, op := range ops {
		switch op.Type {
		case BatchSet:
			copied := make(map[string]any, len(op.Fields))
			for k, v := range op.Fields {
				copied[k] = v
			}
			m.docs[op.ID] = copied
		case BatchUpdate:
			for k, v := range op.Fields {
				m.docs[op.ID][k] = v
			}
		case BatchDelete:
			delete(m.docs, op.ID)
		}
	}
	return nil
}

func newTestAccessor(t *testing.T, driver Driver) *Accessor[*testItem] {
	t.Helper()
	a := NewAccessor[*testItem]("items", driver, JSONCodec[*testItem]{},
		CacheConfig{Enabled: true, TTL: time.Minute, MaxSize: 50},
		RetryConfig{Enabled: true, MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2},
		nil)
	seq := 0
	a.newID = func() string {
		seq++
		return "gen-" + strconv.Itoa(seq)
	}
	return a
}

func TestAccessor_GetByID_CachesSecondRead(t *testing.T) {
	driver := newMockDriver()
	driver.docs["c1"] = map[string]any{"name": "Ann", "score": 4.0}
	a := newTestAccessor(t, driver)

	ctx := context.Background()

	res := a.GetByID(ctx, "c1", true)
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if res.Cached {
		t.Error("first read must not be cached")
	}
	if res.Data == nil || res.Data.Name != "Ann" {
		t.Fatalf("unexpected data: %+v", res.Data)
	}

	res2 := a.GetByID(ctx, "c1", true)
	if !res2.Success || !res2.Cached {
		t.Errorf("expected cached hit, got success=%v cached=%v", res2.Success, res2.Cached)
	}
	if driver.getCalls != 1 {
		t.Errorf("expected 1 driver Get, got %d", driver.getCalls)
	}
}

func TestAccessor_GetByID_MissingIsNotAnError(t *testing.T) {
	a := newTestAccessor(t, newMockDriver())

	res := a.GetByID(context.Background(), "nope", true)
	if !res.Success {
		t.Fatalf("missing record must be a success envelope, got %s", res.Error)
	}
	if res.Data != nil {
		t.Errorf("expected nil data, got %+v", res.Data)
	}
}

func TestAccessor_Create_StampsAndInvalidates(t *testing.T) {
	driver := newMockDriver()
	a := newTestAccessor(t, driver)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	ctx := context.Background()

	// Warm a list page so we can observe invalidation
	if res := a.List(ctx, Query{}, true); !res.Success {
		t.Fatalf("list failed: %s", res.Error)
	}
	if res := a.List(ctx, Query{}, true); !res.Cached {
		t.Fatal("expected warmed list cache")
	}
	queriesBefore := driver.queryCalls

	res := a.Create(ctx, &testItem{Name: "Ann"}, "")
	if !res.Success {
		t.Fatalf("create failed: %s", res.Error)
	}
	if res.Data.ID == "" {
		t.Error("expected generated id")
	}

	stored := driver.docs[res.Data.ID]
	if stored[FieldCreatedAt] != now || stored[FieldUpdatedAt] != now {
		t.Errorf("expected timestamps stamped, got %v / %v", stored[FieldCreatedAt], stored[FieldUpdatedAt])
	}

	// The cached list page must now be a guaranteed miss
	if res := a.List(ctx, Query{}, true); res.Cached {
		t.Error("list cache must be invalidated by create")
	}
	if driver.queryCalls != queriesBefore+1 {
		t.Errorf("expected list to hit the driver after create, calls %d -> %d", queriesBefore, driver.queryCalls)
	}
}

func TestAccessor_Create_CustomID(t *testing.T) {
	driver := newMockDriver()
	a := newTestAccessor(t, driver)

	res := a.Create(context.Background(), &testItem{Name: "Bob"}, "custom-7")
	if !res.Success {
		t.Fatalf("create failed: %s", res.Error)
	}
	if res.Data.ID != "custom-7" {
		t.Errorf("expected custom id, got %s", res.Data.ID)
	}
	if _, ok := driver.docs["custom-7"]; !ok {
		t.Error("expected document stored under custom id")
	}
}

func TestAccessor_Update_ReturnsAuthoritativeState(t *testing.T) {
	driver := newMockDriver()
	driver.docs["c1"] = map[string]any{"name": "Ann", "score": 4.0}
	a := newTestAccessor(t, driver)

	ctx := context.Background()

	// Prime the point-read cache with the old state
	a.GetByID(ctx, "c1", true)

	res := a.Update(ctx, "c1", map[string]any{"score": 4.5})
	if !res.Success {
		t.Fatalf("update failed: %s", res.Error)
	}
	if res.Data.Score != 4.5 {
		t.Errorf("expected authoritative post-update score 4.5, got %v", res.Data.Score)
	}
	if res.Cached {
		t.Error("post-update re-read must bypass the cache")
	}
}

func TestAccessor_Update_InvalidatesListAndSearch(t *testing.T) {
	driver := newMockDriver()
	driver.docs["c1"] = map[string]any{"name": "Ann Smith", "score": 4.0}
	a := newTestAccessor(t, driver)

	ctx := context.Background()

	if res := a.List(ctx, Query{}, true); !res.Success {
		t.Fatalf("list failed: %s", res.Error)
	}
	if res := a.Search(ctx, "smith", []string{"name"}, Query{}, true); !res.Success {
		t.Fatalf("search failed: %s", res.Error)
	}
	if res := a.List(ctx, Query{}, true); !res.Cached {
		t.Fatal("expected warmed list cache")
	}
	if res := a.Search(ctx, "smith", []string{"name"}, Query{}, true); !res.Cached {
		t.Fatal("expected warmed search cache")
	}

	if res := a.Update(ctx, "c1", map[string]any{"score": 4.5}); !res.Success {
		t.Fatalf("update failed: %s", res.Error)
	}

	if res := a.List(ctx, Query{}, true); res.Cached {
		t.Error("list cache must be invalidated by update")
	}
	if res := a.Search(ctx, "smith", []string{"name"}, Query{}, true); res.Cached {
		t.Error("search cache must be invalidated by update")
	}
}

func TestAccessor_Delete_InvalidatesListAndSearch(t *testing.T) {
	driver := newMockDriver()
	driver.docs["c1"] = map[string]any{"name": "Ann Smith"}
	a := newTestAccessor(t, driver)

	ctx := context.Background()

	if res := a.List(ctx, Query{}, true); !res.Success {
		t.Fatalf("list failed: %s", res.Error)
	}
	if res := a.Search(ctx, "smith", []string{"name"}, Query{}, true); !res.Success {
		t.Fatalf("search failed: %s", res.Error)
	}

	if res := a.Delete(ctx, "c1"); !res.Success {
		t.Fatalf("delete failed: %s", res.Error)
	}

	if res := a.List(ctx, Query{}, true); res.Cached {
		t.Error("list cache must be invalidated by delete")
	}
	if res := a.Search(ctx, "smith", []string{"name"}, Query{}, true); res.Cached {
		t.Error("search cache must be invalidated by delete")
	}
}

func TestAccessor_Update_MissingFailsEnvelope(t *testing.T) {
	a := newTestAccessor(t, newMockDriver())

	res := a.Update(context.Background(), "ghost", map[string]any{"score": 1.0})
	if res.Success {
		t.Fatal("expected failure envelope")
	}
	if res.Error == "" {
		t.Error("expected error message in envelope")
	}
}

func TestAccessor_Delete_InvalidatesPointRead(t *testing.T) {
	driver := newMockDriver()
	driver.docs["c1"] = map[string]any{"name": "Ann"}
	a := newTestAccessor(t, driver)

	ctx := context.Background()
	a.GetByID(ctx, "c1", true)

	if res := a.Delete(ctx, "c1"); !res.Success {
		t.Fatalf("delete failed: %s", res.Error)
	}

	res := a.GetByID(ctx, "c1", true)
	if !res.Success || res.Data != nil {
		t.Errorf("expected uncached miss after delete, got success=%v data=%+v", res.Success, res.Data)
	}
}

func TestAccessor_BatchCreate_AllOrNothing(t *testing.T) {
	driver := newMockDriver()
	a := newTestAccessor(t, driver)

	driver.scriptErr(Errorf("batch", KindUnavailable, "commit failed"))
	// Exhaust retries so the batch fails for good
	driver.scriptErr(Errorf("batch", KindUnavailable, "commit failed"))
	driver.scriptErr(Errorf("batch", KindUnavailable, "commit failed"))

	res := a.BatchCreate(context.Background(), []*testItem{{Name: "A"}, {Name: "B"}})
	if res.Success {
		t.Fatal("expected batch failure envelope")
	}
	if len(driver.docs) != 0 {
		t.Errorf("failed batch must write nothing, found %d docs", len(driver.docs))
	}

	res2 := a.BatchCreate(context.Background(), []*testItem{{Name: "A"}, {Name: "B"}})
	if !res2.Success {
		t.Fatalf("batch failed: %s", res2.Error)
	}
	if len(res2.Data) != 2 || len(driver.docs) != 2 {
		t.Errorf("expected 2 created docs, envelope %d stored %d", len(res2.Data), len(driver.docs))
	}
}

func TestAccessor_BatchUpdate_MissingIDFailsWhole(t *testing.T) {
	driver := newMockDriver()
	driver.docs["c1"] = map[string]any{"name": "Ann", "score": 4.0}
	a := newTestAccessor(t, driver)

	res := a.BatchUpdate(context.Background(), map[string]map[string]any{
		"c1":    {"score": 5.0},
		"ghost": {"score": 1.0},
	})
	if res.Success {
		t.Fatal("expected failure for batch containing a missing id")
	}
	if driver.docs["c1"]["score"] != 4.0 {
		t.Errorf("failed batch must not partially apply, score=%v", driver.docs["c1"]["score"])
	}
}

func TestAccessor_Search_SubstringCaseInsensitive(t *testing.T) {
	driver := newMockDriver()
	driver.docs["1"] = map[string]any{"name": "Ann Smith"}
	driver.docs["2"] = map[string]any{"name": "Bob Lee"}
	a := newTestAccessor(t, driver)

	res := a.Search(context.Background(), "smith", []string{"name"}, Query{}, true)
	if !res.Success {
		t.Fatalf("search failed: %s", res.Error)
	}
	if len(res.Data.Items) != 1 || res.Data.Items[0].Name != "Ann Smith" {
		t.Fatalf("expected only Ann Smith, got %+v", res.Data.Items)
	}
	if res.Data.HasMore {
		t.Error("search results are never paginated further")
	}
}

func TestAccessor_List_HasMoreHeuristic(t *testing.T) {
	driver := newMockDriver()
	for _, id := range []string{"1", "2", "3"} {
		driver.docs[id] = map[string]any{"name": id}
	}
	a := newTestAccessor(t, driver)

	res := a.List(context.Background(), Query{}.WithLimit(2), false)
	if !res.Success {
		t.Fatalf("list failed: %s", res.Error)
	}
	if len(res.Data.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Data.Items))
	}
	if !res.Data.HasMore {
		t.Error("full page implies HasMore")
	}
	if res.Data.LastCursor == "" {
		t.Error("expected a cursor on a non-empty page")
	}

	res2 := a.List(context.Background(), Query{}.WithLimit(10), false)
	if res2.Data.HasMore {
		t.Error("short page implies no more results")
	}
}

func TestAccessor_TransientFailureRetried(t *testing.T) {
	driver := newMockDriver()
	driver.docs["c1"] = map[string]any{"name": "Ann"}
	driver.scriptErr(Errorf("get", KindUnavailable, "blip"))
	a := newTestAccessor(t, driver)

	res := a.GetByID(context.Background(), "c1", false)
	if !res.Success {
		t.Fatalf("expected retry to recover, got %s", res.Error)
	}
	if driver.getCalls != 2 {
		t.Errorf("expected 2 attempts, got %d", driver.getCalls)
	}
}

func TestAccessor_NonRetryableFailureSingleAttempt(t *testing.T) {
	driver := newMockDriver()
	driver.scriptErr(Errorf("get", KindPermissionDenied, "denied"))
	a := newTestAccessor(t, driver)

	res := a.GetByID(context.Background(), "c1", false)
	if res.Success {
		t.Fatal("expected failure envelope")
	}
	if driver.getCalls != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", driver.getCalls)
	}
}

func TestAccessor_HealthCheck(t *testing.T) {
	driver := newMockDriver()
	a := newTestAccessor(t, driver)

	status := a.HealthCheck(context.Background())
	if status.Status != HealthOK {
		t.Errorf("expected healthy, got %s", status.Status)
	}
	if status.LatencyMs < 0 {
		t.Errorf("latency must be non-negative, got %d", status.LatencyMs)
	}

	driver.scriptErr(Errorf("query", KindUnavailable, "down"))
	status = a.HealthCheck(context.Background())
	if status.Status != HealthDegraded {
		t.Errorf("expected unhealthy, got %s", status.Status)
	}
}
