package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Metadata is an insertion-ordered string-keyed map of scalar values
// (string, float64, bool, nil). Mappers park any provider JSON field they do
// not consume here so unknown extensions survive a round trip through the
// cache. Non-scalar leftovers are kept as raw JSON.
type Metadata struct {
	keys []string
	vals map[string]any
}

// Set stores val under key, keeping first-insertion order for existing keys.
func (m *Metadata) Set(key string, val any) {
	if m.vals == nil {
		m.vals = make(map[string]any)
	}
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = val
}

// Get returns the value stored under key.
func (m *Metadata) Get(key string) (any, bool) {
	v, ok := m.vals[key]
	return v, ok
}

// GetString returns the value under key when it is a string.
func (m *Metadata) GetString(key string) string {
	if s, ok := m.vals[key].(string); ok {
		return s
	}
	return ""
}

// Keys returns the keys in insertion order. The slice is shared; do not mutate.
func (m *Metadata) Keys() []string { return m.keys }

// Len returns the number of stored keys.
func (m *Metadata) Len() int { return len(m.keys) }

// MarshalJSON emits an object with keys in insertion order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if len(m.keys) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.vals[k])
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, preserving document key order. Scalars are
// stored typed; nested objects and arrays are kept as json.RawMessage.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	m.keys = nil
	m.vals = nil
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("metadata: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("metadata: non-string key %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("metadata %q: %w", key, err)
		}
		m.Set(key, decodeScalar(raw))
	}
	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// decodeScalar maps a raw JSON value to its scalar Go form, or returns the
// raw bytes unchanged for objects/arrays.
func decodeScalar(raw json.RawMessage) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case '{', '[':
		return raw
	case '"':
		var s string
		if json.Unmarshal(trimmed, &s) == nil {
			return s
		}
	case 't', 'f':
		var b bool
		if json.Unmarshal(trimmed, &b) == nil {
			return b
		}
	case 'n':
		return nil
	default:
		var f float64
		if json.Unmarshal(trimmed, &f) == nil {
			return f
		}
	}
	return raw
}
