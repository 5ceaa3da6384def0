package docstore

import (
	"encoding/json"
	"fmt"
)

// JSONCodec converts documents to a domain type through a JSON
// round-trip of the field map. The document id maps to the entity's
// "id" json key; field values normalize to JSON types on the way in,
// so every driver agrees on what a decoded entity looks like.
type JSONCodec[T any] struct{}

// Decode maps a raw document into the domain type.
func (JSONCodec[T]) Decode(doc Document) (T, error) {
	var entity T
	merged := make(map[string]any, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		merged[k] = v
	}
	merged["id"] = doc.ID

	data, err := json.Marshal(merged)
	if err != nil {
		return entity, fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal(data, &entity); err != nil {
		return entity, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return entity, nil
}

// Encode maps a domain entity to a raw field map. The id is the
// document key, not a field, and is stripped here.
func (JSONCodec[T]) Encode(entity T) (map[string]any, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode entity fields: %w", err)
	}
	delete(fields, "id")
	return fields, nil
}
