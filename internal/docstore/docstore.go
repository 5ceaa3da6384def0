// Package docstore is a generic data-access layer over a remote document
// store. It layers per-accessor caching, retry with exponential backoff,
// cursor-based pagination, batch writes, and live query subscriptions on
// top of a pluggable Driver.
//
// Every non-subscription operation returns a uniform Result envelope and
// never lets a store failure escape as a raised error; subscriptions
// instead deliver failures through their event stream.
package docstore
