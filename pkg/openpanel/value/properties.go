package value

import (
	"fmt"
	"sort"
)

// Properties maps property names to values. A nil Properties is empty.
// encoding/json sorts map keys, so the encoded form is canonical.
type Properties map[string]Value

// PropertiesFromMap converts a map of Go values. Every value must be
// accepted by FromAny.
func PropertiesFromMap(m map[string]any) (Properties, error) {
	if m == nil {
		return nil, nil
	}
	props := make(Properties, len(m))
	for k, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		props[k] = v
	}
	return props, nil
}

// Clone returns a copy of p. Cloning nil returns nil.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	cp := make(Properties, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// Keys returns the property names sorted.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Object converts p to an object value with sorted keys.
func (p Properties) Object() Value {
	obj := NewObject()
	for _, k := range p.Keys() {
		obj.Set(k, p[k])
	}
	return Value{kind: KindObject, obj: obj}
}

// Equal reports whether both maps hold equal values for the same keys.
func (p Properties) Equal(other Properties) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Merge returns a new map holding base overlaid with overlay; overlay wins
// on key collision. The result is nil only when both inputs are empty.
func Merge(base, overlay Properties) Properties {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	out := make(Properties, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
