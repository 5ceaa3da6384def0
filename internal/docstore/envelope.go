package docstore

import "time"

// Result is the uniform envelope returned by every non-subscription
// operation. Exactly one of Data/Error is meaningful depending on Success.
type Result[T any] struct {
	Success   bool      `json:"success"`
	Data      T         `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Cached    bool      `json:"cached,omitempty"`
}

// Ok builds a successful envelope.
func Ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data, Timestamp: time.Now()}
}

// OkCached builds a successful envelope for a cache hit.
func OkCached[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data, Timestamp: time.Now(), Cached: true}
}

// Fail builds a failed envelope from err.
func Fail[T any](err error) Result[T] {
	return Result[T]{Success: false, Error: err.Error(), Timestamp: time.Now()}
}

// Page is one page of an ordered, cursor-limited query.
type Page[T any] struct {
	Items      []T    `json:"items"`
	HasMore    bool   `json:"has_more"`
	LastCursor string `json:"last_cursor,omitempty"`
	TotalCount *int   `json:"total_count,omitempty"`
}

// HealthStatus is the result of a minimal diagnostic read.
type HealthStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
}

const (
	HealthOK       = "healthy"
	HealthDegraded = "unhealthy"
)
