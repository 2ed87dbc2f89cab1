package models

import "encoding/json"

// OrderedMap is a string-keyed map that preserves insertion order, used for
// NodeExecutionContext.InputData/OutputData so downstream consumers observe
// deterministic iteration order.
type OrderedMap struct {
	keys   []string
	values map[string]interface{}
}

// NewOrderedMap creates an empty OrderedMap.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]interface{})}
}

// Set inserts or updates a key. Updating an existing key does not change its
// position.
func (m *OrderedMap) Set(key string, value interface{}) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present.
func (m *OrderedMap) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns keys in insertion order.
func (m *OrderedMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int {
	return len(m.keys)
}

// ToMap returns a plain map copy, losing order (for JSON marshaling or
// expression-evaluator environments that only need lookups).
func (m *OrderedMap) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Clone returns a deep-enough copy (values are shared, the key/value
// structure is independent) so downstream consumers get an immutable
// snapshot per spec.md §5's "downstream consumers receive an immutable
// snapshot" guarantee.
func (m *OrderedMap) Clone() *OrderedMap {
	clone := NewOrderedMap()
	for _, k := range m.keys {
		clone.Set(k, m.values[k])
	}
	return clone
}

// MarshalJSON emits the map as a JSON object, preserving key order is not
// possible with encoding/json's map handling so this falls back to the
// standard unordered object; callers needing stable JSON order should use
// ToMap with a manual encoder if that ever matters.
func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

// UnmarshalJSON decodes a JSON object into the OrderedMap. Key order after
// unmarshaling follows Go's map iteration (not preserved across the wire);
// this is acceptable since OrderedMap's ordering guarantee only matters
// within a single running process.
func (m *OrderedMap) UnmarshalJSON(data []byte) error {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.keys = nil
	m.values = make(map[string]interface{})
	for k, v := range raw {
		m.Set(k, v)
	}
	return nil
}
