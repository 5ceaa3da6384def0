package docstore

import (
	"testing"
)

func testDocs() []Document {
	return []Document{
		{ID: "a", Fields: map[string]any{"rating": 4.5, "area": "north", "available": true, "skills": []any{"plumbing", "heating"}}},
		{ID: "b", Fields: map[string]any{"rating": 3.0, "area": "south", "available": true, "skills": []any{"electrical"}}},
		{ID: "c", Fields: map[string]any{"rating": 4.8, "area": "north", "available": false, "skills": []any{"plumbing"}}},
		{ID: "d", Fields: map[string]any{"rating": 4.5, "area": "north", "available": true, "skills": []any{"roofing"}}},
	}
}

func idsOf(docs []Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func assertIDs(t *testing.T, docs []Document, want ...string) {
	t.Helper()
	got := idsOf(docs)
	if len(got) != len(want) {
		t.Fatalf("expected ids %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected ids %v, got %v", want, got)
		}
	}
}

func TestEvaluateQuery_Filters(t *testing.T) {
	q := Query{}.
		Where("available", OpEqual, true).
		Where("rating", OpGreaterOrEqual, 4.0)

	got, err := EvaluateQuery(testDocs(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, got, "a", "d")
}

func TestEvaluateQuery_ArrayContains(t *testing.T) {
	q := Query{}.Where("skills", OpArrayContains, "plumbing")

	got, err := EvaluateQuery(testDocs(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, got, "a", "c")
}

func TestEvaluateQuery_In(t *testing.T) {
	q := Query{}.Where("area", OpIn, []any{"south", "east"})

	got, err := EvaluateQuery(testDocs(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, got, "b")
}

func TestEvaluateQuery_OrderAndTieBreak(t *testing.T) {
	q := Query{}.OrderedBy("rating", true)

	got, err := EvaluateQuery(testDocs(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// a and d tie on rating; id breaks the tie
	assertIDs(t, got, "c", "a", "d", "b")
}

func TestEvaluateQuery_CursorPaging(t *testing.T) {
	q := Query{}.OrderedBy("rating", true).WithLimit(2)

	page1, err := EvaluateQuery(testDocs(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, page1, "c", "a")

	cursor := EncodeCursor(page1[len(page1)-1], q.OrderBy)
	page2, err := EvaluateQuery(testDocs(), q.After(cursor))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, page2, "d", "b")
}

func TestEvaluateQuery_CursorSurvivesAnchorDeletion(t *testing.T) {
	q := Query{}.OrderedBy("rating", true).WithLimit(2)

	page1, err := EvaluateQuery(testDocs(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, page1, "c", "a")
	cursor := EncodeCursor(page1[len(page1)-1], q.OrderBy)

	// The anchor document is deleted between pages; resume must position
	// by the encoded order-key values, not re-deliver page 1.
	remaining := make([]Document, 0, 3)
	for _, d := range testDocs() {
		if d.ID != "a" {
			remaining = append(remaining, d)
		}
	}
	page2, err := EvaluateQuery(remaining, q.After(cursor))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, page2, "d", "b")
}

func TestEvaluateQuery_CursorSurvivesAnchorNoLongerMatching(t *testing.T) {
	q := Query{}.
		Where("available", OpEqual, true).
		OrderedBy("rating", true).
		WithLimit(1)

	page1, err := EvaluateQuery(testDocs(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, page1, "a")
	cursor := EncodeCursor(page1[0], q.OrderBy)

	// The anchor flips to unavailable, dropping out of the filter; the
	// cursor values still position past it.
	changed := testDocs()
	changed[0].Fields["available"] = false // id "a"
	page2, err := EvaluateQuery(changed, q.After(cursor))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, page2, "d")
}

func TestEvaluateQuery_CursorAnchorDeletedNoOrder(t *testing.T) {
	// Without order keys the sort is by id, and so is cursor positioning.
	cursor := EncodeCursor(Document{ID: "b"}, nil)

	docs := []Document{
		{ID: "a", Fields: map[string]any{}},
		{ID: "c", Fields: map[string]any{}},
		{ID: "d", Fields: map[string]any{}},
	}
	got, err := EvaluateQuery(docs, Query{}.After(cursor))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, got, "c", "d")
}

func TestEvaluateQuery_MalformedCursor(t *testing.T) {
	_, err := EvaluateQuery(testDocs(), Query{StartAfter: "%%%not-base64%%%"})
	if err == nil {
		t.Fatal("expected error for malformed cursor")
	}
	if KindOf(err) != KindInvalidArgument {
		t.Errorf("expected invalid-argument, got %v", KindOf(err))
	}
}

func TestCursor_RoundTrip(t *testing.T) {
	doc := Document{ID: "x", Fields: map[string]any{"rating": 4.2}}
	cursor := EncodeCursor(doc, []Order{{Field: "rating", Desc: true}})

	id, values, err := DecodeCursor(cursor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "x" {
		t.Errorf("expected id x, got %s", id)
	}
	if values["rating"] != 4.2 {
		t.Errorf("expected rating 4.2, got %v", values["rating"])
	}
}

func TestQuery_CacheKeyDeterministic(t *testing.T) {
	build := func() Query {
		return Query{}.
			Where("available", OpEqual, true).
			Where("rating", OpGreaterOrEqual, 4.0).
			OrderedBy("rating", true).
			WithLimit(10)
	}
	if build().CacheKey() != build().CacheKey() {
		t.Error("identical queries must produce identical cache keys")
	}

	other := build().Where("area", OpEqual, "north")
	if build().CacheKey() == other.CacheKey() {
		t.Error("different queries must produce different cache keys")
	}
}
