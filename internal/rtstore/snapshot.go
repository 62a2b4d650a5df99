package rtstore

import (
	"encoding/json"
	"sort"
)

// Snapshot is an immutable point-in-time view of a subtree. The zero
// value is an empty snapshot.
type Snapshot struct {
	val any // decoded JSON: map[string]any, []any, string, float64, bool, nil
}

// NewSnapshot wraps an already-decoded JSON value. Intended for store
// implementations.
func NewSnapshot(val any) Snapshot {
	return Snapshot{val: val}
}

// Exists reports whether any value is present at the snapshot's path.
func (s Snapshot) Exists() bool {
	return s.val != nil
}

// Child returns the named child snapshot, empty if absent.
func (s Snapshot) Child(name string) Snapshot {
	m, ok := s.val.(map[string]any)
	if !ok {
		return Snapshot{}
	}
	return Snapshot{val: m[name]}
}

// Keys returns the child keys in lexicographic order.
func (s Snapshot) Keys() []string {
	m, ok := s.val.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Each visits every child in key order. The walk stops early if fn
// returns false.
func (s Snapshot) Each(fn func(key string, child Snapshot) bool) {
	for _, k := range s.Keys() {
		if !fn(k, s.Child(k)) {
			return
		}
	}
}

// Decode unmarshals the snapshot value into v via JSON.
func (s Snapshot) Decode(v any) error {
	if s.val == nil {
		return nil
	}
	data, err := json.Marshal(s.val)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Bool returns the snapshot as a bool, false when absent or mistyped.
func (s Snapshot) Bool() bool {
	b, _ := s.val.(bool)
	return b
}

// String returns the snapshot as a string, "" when absent or mistyped.
func (s Snapshot) String() string {
	str, _ := s.val.(string)
	return str
}

// Int64 returns the snapshot as an int64, 0 when absent or mistyped.
func (s Snapshot) Int64() int64 {
	f, _ := s.val.(float64)
	return int64(f)
}

// normalize round-trips an arbitrary Go value through JSON so every
// snapshot holds the same decoded shape regardless of what was written.
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveTimestamps replaces {".sv":"timestamp"} placeholders anywhere in
// a decoded JSON tree with the given Unix ms value.
func resolveTimestamps(val any, nowMS int64) any {
	m, ok := val.(map[string]any)
	if !ok {
		return val
	}
	if sv, ok := m[".sv"].(string); ok && sv == "timestamp" && len(m) == 1 {
		return float64(nowMS)
	}
	for k, v := range m {
		m[k] = resolveTimestamps(v, nowMS)
	}
	return m
}
