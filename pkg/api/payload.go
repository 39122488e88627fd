package api

import (
	"reflect"
	"strings"

	"github.com/huandu/go-clone"
)

// ErrorField is the reserved payload field a catch target receives the
// failure detail under.
const ErrorField = "error"

// Payload is the schema-less document that flows through every step of an
// execution. Values are treated as immutable: the mutating helpers return a
// new Payload and never touch the receiver.
//
// Paths are dot separated ("currentConsumer.type"). An empty path or "$"
// addresses the whole payload.
type Payload map[string]any

// Clone returns a deep copy of p. Nested maps and slices are copied so that
// concurrent branches can never observe each other's writes.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// Get resolves path against p.
func (p Payload) Get(path string) (any, bool) {
	if isRootPath(path) {
		return p, true
	}
	var cur any = p
	for _, part := range splitPath(path) {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether path resolves to a value.
func (p Payload) Has(path string) bool {
	_, ok := p.Get(path)
	return ok
}

// String returns the value at path if it is a string.
func (p Payload) String(path string) (string, bool) {
	v, ok := p.Get(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// With returns a copy of p with v stored at path. Intermediate objects are
// created (or copied) as needed. Writing to the root path requires v to be an
// object and replaces the whole payload.
func (p Payload) With(path string, v any) Payload {
	if isRootPath(path) {
		if m, ok := AsPayload(v); ok {
			return m.Clone()
		}
		return Payload{"value": cloneValue(v)}
	}
	out := p.Clone()
	parts := splitPath(path)
	cur := map[string]any(out)
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(cur[part])
		if !ok {
			next = map[string]any{}
		} else {
			next = copyMap(next)
		}
		cur[part] = next
		cur = next
	}
	cur[parts[len(parts)-1]] = v
	return out
}

// Select returns the object found at path as a Payload. Scalars are wrapped
// under the "value" key so that every task receives an object.
func (p Payload) Select(path string) (Payload, bool) {
	v, ok := p.Get(path)
	if !ok {
		return nil, false
	}
	if m, ok := AsPayload(v); ok {
		return m.Clone(), true
	}
	return Payload{"value": cloneValue(v)}, true
}

// AsPayload converts v to a Payload when it is an object.
func AsPayload(v any) (Payload, bool) {
	switch t := v.(type) {
	case Payload:
		return t, true
	case map[string]any:
		return Payload(t), true
	default:
		return nil, false
	}
}

// AsList converts v to a []any when it is any kind of slice or array.
func AsList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// TopLevel returns the first segment of path, i.e. the payload field a write
// to path touches.
func TopLevel(path string) string {
	if isRootPath(path) {
		return "$"
	}
	return splitPath(path)[0]
}

// CloneValue deep-copies v, including typed maps and slices such as
// []string or map[string]string.
func CloneValue(v any) any {
	return cloneValue(v)
}

func isRootPath(path string) bool {
	return path == "" || path == "$"
}

func splitPath(path string) []string {
	return strings.Split(strings.TrimPrefix(path, "$."), ".")
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case Payload:
		return t, true
	case map[string]any:
		return t, true
	default:
		return nil, false
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// cloneValue copies every map, slice, array and pointer reachable from v,
// whatever its element type, so collaborators may mutate their input.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	return clone.Clone(v)
}
