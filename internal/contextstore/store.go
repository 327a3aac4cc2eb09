// Package contextstore persists per-chat conversation context.
//
// A context is a JSON object keyed by chat id. Every stored record carries
// its own "id" property. Missing records and properties are reported as
// empty values, never as errors; errors mean the backend failed.
package contextstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
)

// Record is one chat's context: a JSON object.
type Record map[string]any

// IDKey is the reserved property holding the record's own id.
const IDKey = "id"

// Store is the context store contract shared by every backend.
type Store interface {
	// Get returns the record for id, or an empty Record if there is none.
	Get(ctx context.Context, id string) (Record, error)

	// Set replaces the record for id and returns id. A nil or empty rec is
	// a no-op that returns "".
	Set(ctx context.Context, id string, rec Record) (string, error)

	// Remove deletes the record and returns id, or "" if it did not exist.
	Remove(ctx context.Context, id string) (string, error)

	// GetProp returns one property, or nil if the record or key is missing.
	GetProp(ctx context.Context, id, key string) (any, error)

	// SetProp sets one property, creating the record if needed, and returns
	// the updated record.
	SetProp(ctx context.Context, id, key string, value any) (Record, error)

	// RemoveProp deletes one property and returns the updated record, or
	// nil if the record did not exist.
	RemoveProp(ctx context.Context, id, key string) (Record, error)

	// FindByProp returns every record whose key equals value.
	FindByProp(ctx context.Context, key string, value any) ([]Record, error)

	Close() error
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ID returns the record's id property, or "".
func (r Record) ID() string {
	id, _ := r[IDKey].(string)
	return id
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		// Values that cannot round-trip keep a shallow copy.
		return maps.Clone(r)
	}
	out, err := decodeRecord(data)
	if err != nil {
		return maps.Clone(r)
	}
	return out
}

// withID returns a copy of rec stamped with id.
func withID(id string, rec Record) Record {
	out := make(Record, len(rec)+1)
	maps.Copy(out, rec)
	out[IDKey] = id
	return out
}

// writableKey reports whether key may be changed through SetProp/RemoveProp.
// The id property is owned by the store.
func writableKey(key string) bool {
	return key != "" && key != IDKey
}

func encodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, nil
}

// propEqual compares a stored property with a query value by their JSON
// encodings, so 3, int64(3) and float64(3) are all equal.
func propEqual(stored, want any) bool {
	a, err := json.Marshal(stored)
	if err != nil {
		return false
	}
	b, err := json.Marshal(want)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// matchProp reports whether rec has key equal to value.
func matchProp(rec Record, key string, value any) bool {
	stored, ok := rec[key]
	return ok && propEqual(stored, value)
}
