// Package value provides a closed JSON value type for event properties.
//
// A Value is exactly one of null, bool, number, string, list, or object.
// Objects keep their keys in insertion order so encoding is deterministic
// and matches what the caller built.
package value

import (
	"fmt"
	"math"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	// KindNull is the zero Kind; the zero Value is null.
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindObject
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an immutable JSON value.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list []Value
	obj  *Object
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, n: f} }

// Int returns a numeric value from an integer.
func Int(i int64) Value { return Value{kind: KindNumber, n: float64(i)} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns a list value holding a copy of items.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// FromObject wraps an object. The object is cloned so later Set calls on
// obj do not leak into the returned Value.
func FromObject(obj *Object) Value {
	if obj == nil {
		obj = NewObject()
	}
	return Value{kind: KindObject, obj: obj.Clone()}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and true if v is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number and true if v is a number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsInt returns the number as an int64 if v is an integral number.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber || v.n != math.Trunc(v.n) || math.Abs(v.n) > maxSafeInt {
		return 0, false
	}
	return int64(v.n), true
}

// AsString returns the string and true if v is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns a copy of the list items and true if v is a list.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp, true
}

// AsObject returns a copy of the object and true if v is an object.
func (v Value) AsObject() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj.Clone(), true
}

// Equal reports structural equality. Object key order is ignored.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(other.obj)
	}
	return false
}

// GoString renders v for debugging.
func (v Value) GoString() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("value.Value(%s: %v)", v.kind, err)
	}
	return string(b)
}

// Object is an insertion-ordered string-keyed map of values.
type Object struct {
	keys   []string
	fields map[string]Value
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// Set stores val under key. Re-setting an existing key keeps its position.
// The zero Object is ready to use.
func (o *Object) Set(key string, val Value) *Object {
	if o.fields == nil {
		o.fields = make(map[string]Value)
	}
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = val
	return o
}

// Get returns the value for key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.fields[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	cp := make([]string, len(o.keys))
	copy(cp, o.keys)
	return cp
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Clone returns a shallow copy. Values are immutable, so this is enough.
func (o *Object) Clone() *Object {
	cp := NewObject()
	if o == nil {
		return cp
	}
	for _, k := range o.keys {
		cp.Set(k, o.fields[k])
	}
	return cp
}

// Equal reports whether both objects hold equal values for the same keys.
func (o *Object) Equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	for _, k := range o.Keys() {
		ov, ok := other.Get(k)
		if !ok {
			return false
		}
		if v, _ := o.Get(k); !v.Equal(ov) {
			return false
		}
	}
	return true
}
