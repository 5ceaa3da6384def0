package docstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEqual          Op = "=="
	OpNotEqual       Op = "!="
	OpLess           Op = "<"
	OpLessOrEqual    Op = "<="
	OpGreater        Op = ">"
	OpGreaterOrEqual Op = ">="
	OpArrayContains  Op = "array-contains"
	OpIn             Op = "in"
)

// Filter is one field constraint.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order is one sort key.
type Order struct {
	Field string
	Desc  bool
}

// Query describes a filtered, ordered, cursor-limited collection read.
type Query struct {
	Filters    []Filter
	OrderBy    []Order
	Limit      int
	StartAfter string // opaque cursor from a previous Page
}

// Where appends an equality or comparison filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderedBy appends a sort key.
func (q Query) OrderedBy(field string, desc bool) Query {
	q.OrderBy = append(q.OrderBy, Order{Field: field, Desc: desc})
	return q
}

// WithLimit sets the page size.
func (q Query) WithLimit(limit int) Query {
	q.Limit = limit
	return q
}

// After sets the pagination cursor.
func (q Query) After(cursor string) Query {
	q.StartAfter = cursor
	return q
}

// CacheKey produces a deterministic serialization of the query, used as
// the accessor cache key suffix. Filters and order keys serialize in
// declaration order; values go through JSON for stability.
func (q Query) CacheKey() string {
	var b strings.Builder
	for _, f := range q.Filters {
		fmt.Fprintf(&b, "%s%s%s;", f.Field, f.Op, jsonValue(f.Value))
	}
	b.WriteString("|")
	for _, o := range q.OrderBy {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, "%s:%s;", o.Field, dir)
	}
	fmt.Fprintf(&b, "|limit=%d|after=%s", q.Limit, q.StartAfter)
	return b.String()
}

func jsonValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// cursorPayload carries the order-key values and id of the last item of a
// page, enough to resume "starting after" it.
type cursorPayload struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values,omitempty"`
}

// EncodeCursor builds an opaque cursor pointing just past doc for the
// given order keys.
func EncodeCursor(doc Document, orderBy []Order) string {
	payload := cursorPayload{ID: doc.ID}
	if len(orderBy) > 0 {
		payload.Values = make(map[string]any, len(orderBy))
		for _, o := range orderBy {
			payload.Values[o.Field] = doc.Fields[o.Field]
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(cursor string) (id string, values map[string]any, err error) {
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var payload cursorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", nil, fmt.Errorf("malformed cursor: %w", err)
	}
	return payload.ID, payload.Values, nil
}

// EvaluateQuery applies q to docs in process: filter, order, cursor,
// limit. Drivers without native query execution (memory, redis) share
// this evaluator so all backends agree on semantics.
func EvaluateQuery(docs []Document, q Query) ([]Document, error) {
	matched := make([]Document, 0, len(docs))
	for _, d := range docs {
		ok, err := matches(d, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, d)
		}
	}

	sortDocs(matched, q.OrderBy)

	if q.StartAfter != "" {
		afterID, afterValues, err := DecodeCursor(q.StartAfter)
		if err != nil {
			return nil, NewError("query", KindInvalidArgument, err)
		}
		idx := -1
		for i, d := range matched {
			if d.ID == afterID {
				idx = i
				break
			}
		}
		if idx >= 0 {
			matched = matched[idx+1:]
		} else {
			// The anchor document no longer appears in the result (deleted
			// or filtered out since the last page). Position by the encoded
			// order-key values instead so resume skips everything at or
			// before where the anchor sorted.
			matched = skipPastCursor(matched, afterID, afterValues, q.OrderBy)
		}
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// skipPastCursor drops every document sorting at or before the cursor
// position. docs must already be sorted by orderBy.
func skipPastCursor(docs []Document, afterID string, afterValues map[string]any, orderBy []Order) []Document {
	for i, d := range docs {
		if cursorCompare(d, afterID, afterValues, orderBy) > 0 {
			return docs[i:]
		}
	}
	return nil
}

// cursorCompare orders doc against a cursor position using the same
// chain as sortDocs: order keys first, id as the tie break.
func cursorCompare(doc Document, afterID string, afterValues map[string]any, orderBy []Order) int {
	for _, o := range orderBy {
		cmp, err := compareValues(doc.Fields[o.Field], afterValues[o.Field])
		if err != nil || cmp == 0 {
			continue
		}
		if o.Desc {
			return -cmp
		}
		return cmp
	}
	return strings.Compare(doc.ID, afterID)
}

func matches(doc Document, filters []Filter) (bool, error) {
	for _, f := range filters {
		val, ok := doc.Fields[f.Field]
		switch f.Op {
		case OpEqual:
			if !ok || !valuesEqual(val, f.Value) {
				return false, nil
			}
		case OpNotEqual:
			if ok && valuesEqual(val, f.Value) {
				return false, nil
			}
		case OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
			if !ok {
				return false, nil
			}
			cmp, err := compareValues(val, f.Value)
			if err != nil {
				return false, NewError("query", KindInvalidArgument, err)
			}
			switch f.Op {
			case OpLess:
				if cmp >= 0 {
					return false, nil
				}
			case OpLessOrEqual:
				if cmp > 0 {
					return false, nil
				}
			case OpGreater:
				if cmp <= 0 {
					return false, nil
				}
			case OpGreaterOrEqual:
				if cmp < 0 {
					return false, nil
				}
			}
		case OpArrayContains:
			if !ok || !arrayContains(val, f.Value) {
				return false, nil
			}
		case OpIn:
			if !ok || !arrayContains(f.Value, val) {
				return false, nil
			}
		default:
			return false, Errorf("query", KindInvalidArgument, "unsupported operator %q", f.Op)
		}
	}
	return true, nil
}

func sortDocs(docs []Document, orderBy []Order) {
	if len(orderBy) == 0 {
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range orderBy {
			cmp, err := compareValues(docs[i].Fields[o.Field], docs[j].Fields[o.Field])
			if err != nil || cmp == 0 {
				continue
			}
			if o.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return docs[i].ID < docs[j].ID
	})
}

func valuesEqual(a, b any) bool {
	if cmp, err := compareValues(a, b); err == nil {
		return cmp == 0
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareValues orders two field values. Numeric types compare as
// float64 regardless of width so JSON round-trips stay consistent.
func compareValues(a, b any) (int, error) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), nil
	}

	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		switch {
		case ab == bb:
			return 0, nil
		case !ab:
			return -1, nil
		default:
			return 1, nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func arrayContains(haystack any, needle any) bool {
	switch items := haystack.(type) {
	case []any:
		for _, item := range items {
			if valuesEqual(item, needle) {
				return true
			}
		}
	case []string:
		for _, item := range items {
			if valuesEqual(item, needle) {
				return true
			}
		}
	}
	return false
}
