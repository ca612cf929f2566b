package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// TypeKey is the annotation key naming its render/edit kind.
const TypeKey = "type"

// Annotation is an insertion-ordered mapping from key to value.
type Annotation struct {
	keys   []string
	values map[string]any
}

// NewAnnotation builds an annotation from alternating keys and values.
// It panics if a key is not a string or a value is missing.
func NewAnnotation(keyvals ...any) *Annotation {
	if len(keyvals)%2 != 0 {
		panic("models: NewAnnotation needs key/value pairs")
	}
	a := &Annotation{values: make(map[string]any, len(keyvals)/2)}
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			panic(fmt.Sprintf("models: annotation key %v is not a string", keyvals[i]))
		}
		a.Set(k, keyvals[i+1])
	}
	return a
}

// Type returns the value of the type key as a string.
func (a *Annotation) Type() string {
	v, ok := a.values[TypeKey]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Len returns the number of keys.
func (a *Annotation) Len() int { return len(a.keys) }

// Keys returns a copy of the keys in insertion order.
func (a *Annotation) Keys() []string { return slices.Clone(a.keys) }

// Has reports whether key is present.
func (a *Annotation) Has(key string) bool {
	_, ok := a.values[key]
	return ok
}

// Get returns the value stored under key.
func (a *Annotation) Get(key string) (any, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Set stores value under key. New keys are appended; existing keys keep
// their position.
func (a *Annotation) Set(key string, value any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Delete removes key and reports whether it was present.
func (a *Annotation) Delete(key string) bool {
	if _, ok := a.values[key]; !ok {
		return false
	}
	delete(a.values, key)
	a.keys = slices.DeleteFunc(a.keys, func(k string) bool { return k == key })
	return true
}

// Clone returns a copy with its own key order and value map.
func (a *Annotation) Clone() *Annotation {
	if a == nil {
		return NewAnnotation()
	}
	return &Annotation{
		keys:   slices.Clone(a.keys),
		values: maps.Clone(a.values),
	}
}

// UnmarshalYAML keeps the mapping's key order.
func (a *Annotation) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("annotation: line %d: expected a mapping", value.Line)
	}
	a.keys = nil
	a.values = make(map[string]any, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var key string
		if err := value.Content[i].Decode(&key); err != nil {
			return fmt.Errorf("annotation: line %d: %w", value.Content[i].Line, err)
		}
		var v any
		if err := value.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("annotation: key %q: %w", key, err)
		}
		a.Set(key, v)
	}
	return nil
}

// MarshalYAML emits the keys in order.
func (a *Annotation) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range a.keys {
		var kn, vn yaml.Node
		kn.SetString(k)
		if err := vn.Encode(a.values[k]); err != nil {
			return nil, fmt.Errorf("annotation: key %q: %w", k, err)
		}
		n.Content = append(n.Content, &kn, &vn)
	}
	return n, nil
}

// MarshalJSON emits the keys in order.
func (a *Annotation) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(a.values[k])
		if err != nil {
			return nil, fmt.Errorf("annotation: key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the object's key order.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("annotation: expected a JSON object")
	}
	a.keys = nil
	a.values = make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("annotation: unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("annotation: key %q: %w", key, err)
		}
		a.Set(key, v)
	}
	_, err = dec.Token()
	return err
}
