package formdata

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Object is an insertion-ordered string-keyed map.
type Object struct {
	keys   []string
	values map[string]any
}

// List is an ordered sequence of values, produced by "[n]" path segments.
type List []any

// New returns an empty Object.
func New() *Object {
	return &Object{values: make(map[string]any)}
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Set stores v under key. Existing keys keep their position.
func (o *Object) Set(key string, v any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Delete removes key, if present.
func (o *Object) Delete(key string) {
	if o == nil {
		return
	}
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// String returns the value under key as text, or "" when absent or not a scalar.
func (o *Object) String(key string) string {
	v, _ := o.Get(key)
	s, _ := Text(v)
	return s
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	out := New()
	for _, k := range o.keys {
		out.Set(k, cloneValue(o.values[k]))
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Object:
		return t.Clone()
	case List:
		l := make(List, len(t))
		for i, e := range t {
			l[i] = cloneValue(e)
		}
		return l
	default:
		return v
	}
}

// Merge overlays src onto o. Nested objects merge recursively and lists
// merge element by element; any other value in src replaces the one in o.
// Keys new to o are appended.
func (o *Object) Merge(src *Object) {
	if src == nil {
		return
	}
	for _, k := range src.keys {
		o.Set(k, mergeValue(o.values[k], src.values[k]))
	}
}

func mergeValue(dst, src any) any {
	switch s := src.(type) {
	case *Object:
		if d, ok := dst.(*Object); ok {
			d.Merge(s)
			return d
		}
	case List:
		if d, ok := dst.(List); ok {
			out := make(List, max(len(d), len(s)))
			copy(out, d)
			for i, e := range s {
				if e == nil {
					continue
				}
				out[i] = mergeValue(out[i], e)
			}
			return out
		}
	}
	return cloneValue(src)
}

// Lookup resolves a dot path such as "a.b[0].c".
func (o *Object) Lookup(path string) (any, bool) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false
	}

	var cur any = o
	for _, s := range segs {
		switch node := cur.(type) {
		case *Object:
			if s.IsIndex {
				return nil, false
			}
			v, ok := node.Get(s.Key)
			if !ok {
				return nil, false
			}
			cur = v
		case List:
			if !s.IsIndex || s.Index >= len(node) {
				return nil, false
			}
			cur = node[s.Index]
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetPath writes v at path, creating intermediate objects and lists.
func (o *Object) SetPath(path string, v any) error {
	segs, err := ParsePath(path)
	if err != nil {
		return err
	}
	_, err = setIn(o, segs, v, path)
	return err
}

func setIn(cur any, segs []Segment, v any, path string) (any, error) {
	if len(segs) == 0 {
		if obj, ok := cur.(*Object); ok {
			if src, ok := v.(*Object); ok {
				obj.Merge(src)
				return obj, nil
			}
		}
		return v, nil
	}

	s := segs[0]
	if s.IsIndex {
		var list List
		switch t := cur.(type) {
		case nil:
		case List:
			list = t
		default:
			return nil, fmt.Errorf("%w: %q indexes a non-list value", ErrInvalidPath, path)
		}
		for len(list) <= s.Index {
			list = append(list, nil)
		}
		child, err := setIn(list[s.Index], segs[1:], v, path)
		if err != nil {
			return nil, err
		}
		list[s.Index] = child
		return list, nil
	}

	var obj *Object
	switch t := cur.(type) {
	case nil:
		obj = New()
	case *Object:
		obj = t
	default:
		return nil, fmt.Errorf("%w: %q descends into a scalar", ErrInvalidPath, path)
	}
	existing, _ := obj.Get(s.Key)
	child, err := setIn(existing, segs[1:], v, path)
	if err != nil {
		return nil, err
	}
	obj.Set(s.Key, child)
	return obj, nil
}

// Field is one flattened leaf.
type Field struct {
	Path  string
	Value any
}

// Flatten lists every leaf of o with its dot path, in document order.
func (o *Object) Flatten() []Field {
	var out []Field
	flattenInto(&out, nil, o)
	return out
}

func flattenInto(out *[]Field, prefix []Segment, v any) {
	switch t := v.(type) {
	case *Object:
		for _, k := range t.keys {
			flattenInto(out, append(append([]Segment(nil), prefix...), Segment{Key: k}), t.values[k])
		}
	case List:
		for i, e := range t {
			flattenInto(out, append(append([]Segment(nil), prefix...), Segment{Index: i, IsIndex: true}), e)
		}
	default:
		*out = append(*out, Field{Path: JoinPath(prefix), Value: v})
	}
}

// Expand turns an object whose keys may be dot paths into a fully nested
// object. Nested values are expanded as well; key order is preserved.
func Expand(flat *Object) (*Object, error) {
	out := New()
	if flat == nil {
		return out, nil
	}
	for _, k := range flat.keys {
		v := flat.values[k]
		if child, ok := v.(*Object); ok {
			expanded, err := Expand(child)
			if err != nil {
				return nil, err
			}
			v = expanded
		}
		if err := out.SetPath(k, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Unflatten builds a nested object from flat path/value pairs.
func Unflatten(fields []Field) (*Object, error) {
	out := New()
	for _, f := range fields {
		if err := out.SetPath(f.Path, f.Value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// IsEmpty reports whether v is a leaf the serializer must omit.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case json.Number:
		return t == ""
	}
	return false
}

// Text renders a scalar leaf as XML text. ok is false for branches.
func Text(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case fmt.Stringer:
		return t.String(), true
	}
	return "", false
}
