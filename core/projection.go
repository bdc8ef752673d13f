package core

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// Field is one key of a Projection.
type Field struct {
	Key   string
	Value interface{}
}

// Projection is the canonical dictionary form of an entity. Keys keep their declared order.
type Projection []Field

// Projector is implemented by every entity that can be rendered.
type Projector interface {
	Projection() Projection
}

// Get returns the value stored under key.
func (p Projection) Get(key string) (interface{}, bool) {
	for _, f := range p {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in declared order.
func (p Projection) Keys() []string {
	keys := make([]string, len(p))
	for i, f := range p {
		keys[i] = f.Key
	}
	return keys
}

// Sparse returns a copy without nil values, empty strings and empty lists.
// Nested projections and maps are cleaned recursively, including maps held in lists.
func (p Projection) Sparse() Projection {
	out := make(Projection, 0, len(p))
	for _, f := range p {
		v, keep := sparseValue(f.Value)
		if !keep {
			continue
		}
		out = append(out, Field{Key: f.Key, Value: v})
	}
	return out
}

// Map converts the projection into a plain map. Nested projections are converted too.
func (p Projection) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(p))
	for _, f := range p {
		if nested, ok := f.Value.(Projection); ok {
			m[f.Key] = nested.Map()
			continue
		}
		m[f.Key] = f.Value
	}
	return m
}

// MarshalJSON renders the projection as a JSON object in declared key order.
func (p Projection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := marshalNoEscape(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func sparseValue(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case string:
		return val, val != ""
	case time.Time:
		return val, !val.IsZero()
	case Projection:
		return val.Sparse(), true
	case []Projection:
		if len(val) == 0 {
			return nil, false
		}
		out := make([]Projection, len(val))
		for i, item := range val {
			out[i] = item.Sparse()
		}
		return out, true
	case map[string]interface{}:
		if val == nil {
			return nil, false
		}
		return sparseMap(val), true
	case []interface{}:
		if len(val) == 0 {
			return nil, false
		}
		out := make([]interface{}, len(val))
		for i, item := range val {
			if m, ok := item.(map[string]interface{}); ok {
				out[i] = sparseMap(m)
				continue
			}
			out[i] = item
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map:
		if rv.IsNil() {
			return nil, false
		}
	case reflect.Slice:
		if rv.IsNil() || rv.Len() == 0 {
			return nil, false
		}
	}
	return v, true
}

func sparseMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		cleaned, keep := sparseValue(v)
		if !keep {
			continue
		}
		out[k] = cleaned
	}
	return out
}

// Render returns the sparse, indented JSON form of an entity. Nil entities render as "".
func Render(p Projector) string {
	if isNilProjector(p) {
		return ""
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(p.Projection().Sparse()); err != nil {
		logger().Errorf("Failed to render %T: %v", p, err)
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}

// nested embeds an entity as its rendered string, the way audit logs expect it.
func nested(p Projector) interface{} {
	if isNilProjector(p) {
		return nil
	}
	return Render(p)
}

func nestedList[T Projector](items []T) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if isNilProjector(item) {
			continue
		}
		out = append(out, Render(item))
	}
	return out
}

func isNilProjector(p Projector) bool {
	if p == nil {
		return true
	}
	rv := reflect.ValueOf(p)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
